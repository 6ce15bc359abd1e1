package domain

import "time"

// QuoteStatus tracks the quote approval lifecycle.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "DRAFT"
	QuoteStatusApproved QuoteStatus = "APPROVED"
)

// Quote carries the minimal quote state this core needs: approval status
// and the link to the client account provisioned for it.
type Quote struct {
	ID           string
	Reference    string
	ContactEmail string
	ContactName  string
	Status       QuoteStatus
	// ClientAccountID is set once provisioning has linked an account.
	ClientAccountID *string
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProvisioningRequest is the ephemeral input consumed once per quote.
type ProvisioningRequest struct {
	SourceQuoteID  string
	CandidateEmail string
	CandidateName  string
}

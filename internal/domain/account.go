package domain

import "time"

// Role enumerates the portal roles. Exactly one role per account.
type Role string

const (
	RoleClient Role = "CLIENT"
	RoleWorker Role = "WORKER"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether the role is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleWorker, RoleAdmin:
		return true
	}
	return false
}

// AccountStatus represents lifecycle states for an account.
// Accounts are never deleted; deactivation is a status flag.
type AccountStatus string

const (
	AccountStatusActive      AccountStatus = "ACTIVE"
	AccountStatusDeactivated AccountStatus = "DEACTIVATED"
)

// Account is the durable identity record shared by all three portals.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Status       AccountStatus
	// Invited marks provisioned accounts that have not yet set credentials.
	Invited     bool
	InviteToken *string
	// EmailOptIn gates non-transactional email delivery.
	EmailOptIn bool
	// PendingNotification marks accounts whose onboarding events could not
	// be emitted; the reconciliation sweep re-emits them.
	PendingNotification bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a != nil && a.Status == AccountStatusActive
}

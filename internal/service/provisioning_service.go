package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/events"
	"github.com/spec-kit/portal-service/internal/repository"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// ProvisionResult reports the outcome of a provisioning call.
type ProvisionResult struct {
	AccountID string
	// Created is false when an account with the same contact address
	// already existed.
	Created bool
}

// ProvisioningService idempotently ensures a client account exists for an
// approved quote. The contact address is the idempotency key; the unique
// constraint in the store arbitrates concurrent calls.
type ProvisioningService struct {
	accounts repository.AccountRepository
	quotes   repository.QuoteRepository
	bus      events.Dispatcher
	logger   *zap.Logger
}

// NewProvisioningService builds the service.
func NewProvisioningService(accounts repository.AccountRepository, quotes repository.QuoteRepository, bus events.Dispatcher, logger *zap.Logger) *ProvisioningService {
	return &ProvisioningService{accounts: accounts, quotes: quotes, bus: bus, logger: logger}
}

// ProvisionClientForQuote ensures a client account exists for the quote's
// contact. Existing accounts are returned untouched with no events emitted.
// New accounts are created invited with a one-time credential-setup token,
// then AccountCreated and InvitationIssued are emitted in that order.
func (s *ProvisioningService) ProvisionClientForQuote(ctx context.Context, req domain.ProvisioningRequest) (ProvisionResult, error) {
	email, err := normalizeEmail(req.CandidateEmail)
	if err != nil {
		return ProvisionResult{}, apperrors.NewInvalidContact(map[string]any{"email": req.CandidateEmail})
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		s.linkQuote(ctx, req.SourceQuoteID, existing.ID)
		return ProvisionResult{AccountID: existing.ID, Created: false}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ProvisionResult{}, apperrors.NewProvisioningFailed(err)
	}

	token := uuid.NewString()
	account := &domain.Account{
		Name:        strings.TrimSpace(req.CandidateName),
		Email:       email,
		Role:        domain.RoleClient,
		Status:      domain.AccountStatusActive,
		Invited:     true,
		InviteToken: &token,
		EmailOptIn:  true,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateContact) {
			// Lost the create race to a concurrent provisioning call;
			// the winner owns the events.
			winner, lookupErr := s.accounts.GetByEmail(ctx, email)
			if lookupErr != nil {
				return ProvisionResult{}, apperrors.NewProvisioningFailed(lookupErr)
			}
			s.linkQuote(ctx, req.SourceQuoteID, winner.ID)
			return ProvisionResult{AccountID: winner.ID, Created: false}, nil
		}
		return ProvisionResult{}, apperrors.NewProvisioningFailed(err)
	}

	s.linkQuote(ctx, req.SourceQuoteID, account.ID)

	if err := s.emitOnboarding(ctx, account, token); err != nil {
		// Creation stands; the account is flagged so the reconciliation
		// sweep can re-emit.
		s.logger.Error("onboarding emission failed; marking account pending notification",
			zap.String("account_id", account.ID), zap.Error(err))
		account.PendingNotification = true
		if updateErr := s.accounts.Update(ctx, account); updateErr != nil {
			s.logger.Error("failed to flag account pending notification",
				zap.String("account_id", account.ID), zap.Error(updateErr))
		}
	}

	return ProvisionResult{AccountID: account.ID, Created: true}, nil
}

// emitOnboarding publishes AccountCreated then InvitationIssued. Event IDs
// are derived from the account ID so a reconciliation re-emission carries
// the same IDs and the dispatcher's record constraint absorbs it.
func (s *ProvisioningService) emitOnboarding(ctx context.Context, account *domain.Account, token string) error {
	now := time.Now()

	created := events.Event{
		ID:           onboardingEventID(account.ID, events.EventAccountCreated),
		Type:         events.EventAccountCreated,
		SubjectID:    account.ID,
		RecipientIDs: []string{account.ID},
		Timestamp:    now,
		Payload: events.AccountCreatedPayload{
			AccountID: account.ID,
			Email:     account.Email,
			Name:      account.Name,
		},
	}
	if err := s.bus.Publish(ctx, created); err != nil {
		return err
	}

	invited := events.Event{
		ID:           onboardingEventID(account.ID, events.EventInvitationIssued),
		Type:         events.EventInvitationIssued,
		SubjectID:    account.ID,
		RecipientIDs: []string{account.ID},
		Timestamp:    now,
		Payload: events.InvitationIssuedPayload{
			AccountID: account.ID,
			Email:     account.Email,
			Token:     token,
		},
	}
	return s.bus.Publish(ctx, invited)
}

// linkQuote records quote -> account; a failure here is recoverable via the
// reconciliation sweep, so it only logs.
func (s *ProvisioningService) linkQuote(ctx context.Context, quoteID, accountID string) {
	if quoteID == "" || s.quotes == nil {
		return
	}
	if err := s.quotes.LinkClientAccount(ctx, quoteID, accountID); err != nil {
		s.logger.Warn("failed to link quote to client account",
			zap.String("quote_id", quoteID),
			zap.String("account_id", accountID),
			zap.Error(err))
	}
}

// Reconcile closes the gaps crash or emission failures leave behind:
// approved quotes with no linked account are re-provisioned, and accounts
// flagged pending notification get their onboarding events re-emitted.
func (s *ProvisioningService) Reconcile(ctx context.Context) {
	quotes, err := s.quotes.ListApprovedUnprovisioned(ctx, 50)
	if err != nil {
		s.logger.Error("reconciliation quote scan failed", zap.Error(err))
	} else {
		for _, quote := range quotes {
			if _, err := s.ProvisionClientForQuote(ctx, domain.ProvisioningRequest{
				SourceQuoteID:  quote.ID,
				CandidateEmail: quote.ContactEmail,
				CandidateName:  quote.ContactName,
			}); err != nil {
				s.logger.Warn("reconciliation provisioning failed",
					zap.String("quote_id", quote.ID), zap.Error(err))
			}
		}
	}

	accounts, err := s.accounts.ListPendingNotification(ctx)
	if err != nil {
		s.logger.Error("reconciliation pending-notification scan failed", zap.Error(err))
		return
	}
	for i := range accounts {
		account := &accounts[i]
		token := ""
		if account.InviteToken != nil {
			token = *account.InviteToken
		}
		if err := s.emitOnboarding(ctx, account, token); err != nil {
			s.logger.Warn("reconciliation emission failed",
				zap.String("account_id", account.ID), zap.Error(err))
			continue
		}
		account.PendingNotification = false
		if err := s.accounts.Update(ctx, account); err != nil {
			s.logger.Warn("failed to clear pending-notification flag",
				zap.String("account_id", account.ID), zap.Error(err))
		}
	}
}

// ReconcileLoop runs Reconcile on the given interval until ctx is cancelled.
func (s *ProvisioningService) ReconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}

// onboardingEventID is a stable UUIDv5 over (account, event type): one
// AccountCreated and one InvitationIssued per provisioned account, ever.
func onboardingEventID(accountID string, eventType events.EventType) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(accountID+":"+string(eventType))).String()
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", errors.New("empty email")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", err
	}
	return email, nil
}

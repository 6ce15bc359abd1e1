package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/events"
	"github.com/spec-kit/portal-service/internal/repository"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// QuoteService owns the approval action: mark approved, provision the
// client synchronously, then emit QuoteValidated.
type QuoteService struct {
	quotes       repository.QuoteRepository
	accounts     repository.AccountRepository
	provisioning *ProvisioningService
	bus          events.Dispatcher
	logger       *zap.Logger
}

// NewQuoteService builds the service.
func NewQuoteService(quotes repository.QuoteRepository, accounts repository.AccountRepository, provisioning *ProvisioningService, bus events.Dispatcher, logger *zap.Logger) *QuoteService {
	return &QuoteService{quotes: quotes, accounts: accounts, provisioning: provisioning, bus: bus, logger: logger}
}

// Create registers a draft quote.
func (s *QuoteService) Create(ctx context.Context, reference, contactEmail, contactName string) (*domain.Quote, error) {
	quote := &domain.Quote{
		Reference:    reference,
		ContactEmail: contactEmail,
		ContactName:  contactName,
		Status:       domain.QuoteStatusDraft,
	}
	if err := s.quotes.Create(ctx, quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// Approve marks the quote approved and provisions the client. Provisioning
// failure never fails the approval: it is logged and left to the
// reconciliation sweep.
func (s *QuoteService) Approve(ctx context.Context, quoteID, actorID string) (*domain.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("quote", nil)
		}
		return nil, err
	}
	if quote.Status == domain.QuoteStatusApproved {
		return nil, apperrors.NewConflict("quote already approved", nil)
	}

	if err := s.quotes.MarkApproved(ctx, quoteID); err != nil {
		return nil, err
	}
	quote.Status = domain.QuoteStatusApproved
	now := time.Now()
	quote.ApprovedAt = &now

	result, provErr := s.provisioning.ProvisionClientForQuote(ctx, domain.ProvisioningRequest{
		SourceQuoteID:  quoteID,
		CandidateEmail: quote.ContactEmail,
		CandidateName:  quote.ContactName,
	})
	if provErr != nil {
		s.logger.Error("client provisioning failed; approval stands",
			zap.String("quote_id", quoteID), zap.Error(provErr))
	} else {
		quote.ClientAccountID = &result.AccountID
	}

	s.emitQuoteValidated(ctx, quote, actorID)
	return quote, nil
}

func (s *QuoteService) emitQuoteValidated(ctx context.Context, quote *domain.Quote, actorID string) {
	recipients := []string{}
	if quote.ClientAccountID != nil {
		recipients = append(recipients, *quote.ClientAccountID)
	}
	admins, err := s.accounts.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		s.logger.Warn("admin recipient lookup failed", zap.Error(err))
	}
	for _, admin := range admins {
		if admin.ID != actorID {
			recipients = append(recipients, admin.ID)
		}
	}

	event := events.Event{
		ID:           uuid.NewString(),
		Type:         events.EventQuoteValidated,
		SubjectID:    quote.ID,
		ActorID:      actorID,
		RecipientIDs: recipients,
		Timestamp:    time.Now(),
		Payload: events.QuoteValidatedPayload{
			QuoteID:        quote.ID,
			QuoteReference: quote.Reference,
			ClientID:       quote.ClientAccountID,
		},
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Warn("quote validated emission failed",
			zap.String("quote_id", quote.ID), zap.Error(err))
	}
}

// Get returns a quote by id.
func (s *QuoteService) Get(ctx context.Context, quoteID string) (*domain.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("quote", nil)
		}
		return nil, err
	}
	return quote, nil
}

package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/events"
)

func newQuoteFixture() (*QuoteService, *memAccountRepo, *memQuoteRepo, *captureBus) {
	accounts := newMemAccountRepo()
	quotes := newMemQuoteRepo()
	bus := &captureBus{}
	provisioning := NewProvisioningService(accounts, quotes, bus, zap.NewNop())
	svc := NewQuoteService(quotes, accounts, provisioning, bus, zap.NewNop())
	return svc, accounts, quotes, bus
}

func TestApproveProvisionsClientAndEmitsQuoteValidated(t *testing.T) {
	svc, accounts, quotes, bus := newQuoteFixture()
	_ = quotes.Create(context.Background(), &domain.Quote{
		ID: "q123", Reference: "Q123", ContactEmail: "a@x.com", ContactName: "Acme",
		Status: domain.QuoteStatusDraft,
	})

	quote, err := svc.Approve(context.Background(), "q123", "admin-1")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if quote.Status != domain.QuoteStatusApproved {
		t.Errorf("expected APPROVED, got %s", quote.Status)
	}
	if quote.ClientAccountID == nil {
		t.Fatal("expected a provisioned client account")
	}

	account, err := accounts.GetByID(context.Background(), *quote.ClientAccountID)
	if err != nil {
		t.Fatalf("provisioned account missing: %v", err)
	}
	if account.Role != domain.RoleClient || !account.Invited {
		t.Errorf("expected invited client account, got role=%s invited=%v", account.Role, account.Invited)
	}

	published := bus.published()
	if len(published) != 3 {
		t.Fatalf("expected AccountCreated, InvitationIssued, QuoteValidated; got %d events", len(published))
	}
	if published[0].Type != events.EventAccountCreated ||
		published[1].Type != events.EventInvitationIssued ||
		published[2].Type != events.EventQuoteValidated {
		t.Errorf("unexpected event sequence: %s, %s, %s", published[0].Type, published[1].Type, published[2].Type)
	}
}

func TestApproveSucceedsWhenProvisioningFails(t *testing.T) {
	svc, _, quotes, _ := newQuoteFixture()
	_ = quotes.Create(context.Background(), &domain.Quote{
		ID: "q1", Reference: "Q1", ContactEmail: "broken", ContactName: "Bad Contact",
		Status: domain.QuoteStatusDraft,
	})

	quote, err := svc.Approve(context.Background(), "q1", "admin-1")
	if err != nil {
		t.Fatalf("approval must succeed despite provisioning failure: %v", err)
	}
	if quote.Status != domain.QuoteStatusApproved {
		t.Errorf("expected APPROVED, got %s", quote.Status)
	}
	if quote.ClientAccountID != nil {
		t.Error("no account should be linked when provisioning failed")
	}
}

func TestApproveIsRejectedForApprovedQuote(t *testing.T) {
	svc, _, quotes, _ := newQuoteFixture()
	_ = quotes.Create(context.Background(), &domain.Quote{
		ID: "q1", Reference: "Q1", ContactEmail: "a@x.com",
		Status: domain.QuoteStatusApproved,
	})

	if _, err := svc.Approve(context.Background(), "q1", "admin-1"); err == nil {
		t.Fatal("expected conflict approving an already-approved quote")
	}
}

package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/events"
	"github.com/spec-kit/portal-service/internal/repository"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

// memAccountRepo enforces the contact uniqueness constraint in memory the
// way the Postgres unique index does.
type memAccountRepo struct {
	mu         sync.Mutex
	byID       map[string]*domain.Account
	seq        int
	createErr  error
	creates    int
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{byID: make(map[string]*domain.Account)}
}

func (r *memAccountRepo) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, account.Email) {
			return repository.ErrDuplicateContact
		}
	}
	r.seq++
	account.ID = "acc-" + strconv.Itoa(r.seq)
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	clone := *account
	r.byID[account.ID] = &clone
	r.creates++
	return nil
}

func (r *memAccountRepo) Update(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[account.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *account
	r.byID[account.ID] = &clone
	return nil
}

func (r *memAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *account
	return &clone, nil
}

func (r *memAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.byID {
		if strings.EqualFold(account.Email, email) {
			clone := *account
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAccountRepo) GetByInviteToken(_ context.Context, token string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.byID {
		if account.InviteToken != nil && *account.InviteToken == token {
			clone := *account
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memAccountRepo) ListByRole(_ context.Context, role domain.Role) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, account := range r.byID {
		if account.Role == role && account.Status == domain.AccountStatusActive {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (r *memAccountRepo) ListPendingNotification(_ context.Context) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, account := range r.byID {
		if account.PendingNotification {
			out = append(out, *account)
		}
	}
	return out, nil
}

type memQuoteRepo struct {
	mu            sync.Mutex
	quotes        map[string]*domain.Quote
	links         map[string]string
}

func newMemQuoteRepo() *memQuoteRepo {
	return &memQuoteRepo{quotes: make(map[string]*domain.Quote), links: make(map[string]string)}
}

func (r *memQuoteRepo) Create(_ context.Context, quote *domain.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if quote.ID == "" {
		quote.ID = "quote-" + strconv.Itoa(len(r.quotes)+1)
	}
	clone := *quote
	r.quotes[quote.ID] = &clone
	return nil
}

func (r *memQuoteRepo) GetByID(_ context.Context, id string) (*domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	quote, ok := r.quotes[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *quote
	return &clone, nil
}

func (r *memQuoteRepo) MarkApproved(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	quote, ok := r.quotes[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	quote.Status = domain.QuoteStatusApproved
	quote.ApprovedAt = &now
	return nil
}

func (r *memQuoteRepo) LinkClientAccount(_ context.Context, quoteID, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[quoteID] = accountID
	if quote, ok := r.quotes[quoteID]; ok {
		quote.ClientAccountID = &accountID
	}
	return nil
}

func (r *memQuoteRepo) ListApprovedUnprovisioned(_ context.Context, limit int) ([]domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Quote
	for _, quote := range r.quotes {
		if quote.Status == domain.QuoteStatusApproved && quote.ClientAccountID == nil {
			out = append(out, *quote)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// captureBus records published events and can fail on demand.
type captureBus struct {
	mu       sync.Mutex
	events   []events.Event
	failNext int
}

func (b *captureBus) Publish(_ context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext > 0 {
		b.failNext--
		return errors.New("bus unavailable")
	}
	b.events = append(b.events, event)
	return nil
}

func (b *captureBus) Subscribe(events.EventType, events.EventHandler) {}

func (b *captureBus) published() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.events))
	copy(out, b.events)
	return out
}

func newProvisioningFixture() (*ProvisioningService, *memAccountRepo, *memQuoteRepo, *captureBus) {
	accounts := newMemAccountRepo()
	quotes := newMemQuoteRepo()
	bus := &captureBus{}
	svc := NewProvisioningService(accounts, quotes, bus, zap.NewNop())
	return svc, accounts, quotes, bus
}

func TestProvisionCreatesInvitedClientAndEmitsOrderedEvents(t *testing.T) {
	svc, accounts, quotes, bus := newProvisioningFixture()
	_ = quotes.Create(context.Background(), &domain.Quote{ID: "q123", Reference: "Q123"})

	result, err := svc.ProvisionClientForQuote(context.Background(), domain.ProvisioningRequest{
		SourceQuoteID:  "q123",
		CandidateEmail: " A@X.com ",
		CandidateName:  "Acme Contact",
	})
	if err != nil {
		t.Fatalf("provisioning failed: %v", err)
	}
	if !result.Created {
		t.Fatal("expected Created outcome for new contact")
	}

	account, err := accounts.GetByID(context.Background(), result.AccountID)
	if err != nil {
		t.Fatalf("account not persisted: %v", err)
	}
	if account.Role != domain.RoleClient {
		t.Errorf("expected CLIENT role, got %s", account.Role)
	}
	if !account.Invited {
		t.Error("expected account flagged invited")
	}
	if account.InviteToken == nil || *account.InviteToken == "" {
		t.Error("expected a credential-setup token")
	}
	if account.Email != "a@x.com" {
		t.Errorf("expected normalized email, got %q", account.Email)
	}

	published := bus.published()
	if len(published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(published))
	}
	if published[0].Type != events.EventAccountCreated || published[1].Type != events.EventInvitationIssued {
		t.Fatalf("events out of order: %s then %s", published[0].Type, published[1].Type)
	}

	if linked := quotes.links["q123"]; linked != result.AccountID {
		t.Errorf("quote not linked to account: %q", linked)
	}
}

func TestProvisionIsIdempotentAcrossQuotes(t *testing.T) {
	svc, accounts, _, bus := newProvisioningFixture()

	first, err := svc.ProvisionClientForQuote(context.Background(), domain.ProvisioningRequest{
		SourceQuoteID: "q1", CandidateEmail: "client@example.com", CandidateName: "Client",
	})
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	second, err := svc.ProvisionClientForQuote(context.Background(), domain.ProvisioningRequest{
		SourceQuoteID: "q2", CandidateEmail: "Client@Example.com", CandidateName: "Client",
	})
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}

	if !first.Created {
		t.Error("first call should create")
	}
	if second.Created {
		t.Error("second call must return Existing")
	}
	if first.AccountID != second.AccountID {
		t.Errorf("calls resolved to different accounts: %s vs %s", first.AccountID, second.AccountID)
	}
	if accounts.creates != 1 {
		t.Errorf("expected exactly 1 account created, got %d", accounts.creates)
	}
	if got := len(bus.published()); got != 2 {
		t.Errorf("expected 2 events total regardless of repeat calls, got %d", got)
	}
}

func TestProvisionRejectsInvalidContact(t *testing.T) {
	svc, accounts, _, bus := newProvisioningFixture()

	for _, email := range []string{"", "   ", "not-an-address"} {
		_, err := svc.ProvisionClientForQuote(context.Background(), domain.ProvisioningRequest{
			SourceQuoteID: "q1", CandidateEmail: email,
		})
		var domainErr *apperrors.DomainError
		if !errors.As(err, &domainErr) || domainErr.Code != "INVALID_CONTACT" {
			t.Errorf("email %q: expected INVALID_CONTACT, got %v", email, err)
		}
	}
	if accounts.creates != 0 {
		t.Errorf("no account should be created, got %d", accounts.creates)
	}
	if len(bus.published()) != 0 {
		t.Error("no events should be emitted for invalid contact")
	}
}

func TestProvisionConcurrentCallsCreateExactlyOneAccount(t *testing.T) {
	svc, accounts, _, bus := newProvisioningFixture()

	const n = 16
	results := make([]ProvisionResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.ProvisionClientForQuote(context.Background(), domain.ProvisioningRequest{
				SourceQuoteID:  "q-" + strconv.Itoa(i),
				CandidateEmail: "race@example.com",
				CandidateName:  "Race",
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d failed: %v", i, errs[i])
		}
		if results[i].Created {
			created++
		}
		if results[i].AccountID != results[0].AccountID {
			t.Fatalf("calls resolved to different accounts")
		}
	}
	if created != 1 {
		t.Errorf("expected exactly 1 Created result, got %d", created)
	}
	if accounts.creates != 1 {
		t.Errorf("expected exactly 1 stored account, got %d", accounts.creates)
	}

	published := bus.published()
	if len(published) != 2 {
		t.Fatalf("expected exactly 2 events total, got %d", len(published))
	}
	if published[0].Type != events.EventAccountCreated || published[1].Type != events.EventInvitationIssued {
		t.Errorf("events out of order under concurrency: %s then %s", published[0].Type, published[1].Type)
	}
}

func TestProvisionStoreFailureReturnsProvisioningFailed(t *testing.T) {
	svc, accounts, _, bus := newProvisioningFixture()
	accounts.createErr = errors.New("connection refused")

	_, err := svc.ProvisionClientForQuote(context.Background(), domain.ProvisioningRequest{
		SourceQuoteID: "q1", CandidateEmail: "client@example.com",
	})
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "PROVISIONING_FAILED" {
		t.Fatalf("expected PROVISIONING_FAILED, got %v", err)
	}
	if len(bus.published()) != 0 {
		t.Error("no events may be emitted when the store write fails")
	}
}

func TestProvisionEmissionFailureFlagsAccountForReconciliation(t *testing.T) {
	svc, accounts, _, bus := newProvisioningFixture()
	bus.failNext = 1

	result, err := svc.ProvisionClientForQuote(context.Background(), domain.ProvisioningRequest{
		SourceQuoteID: "q1", CandidateEmail: "client@example.com", CandidateName: "Client",
	})
	if err != nil {
		t.Fatalf("creation must stand despite emission failure: %v", err)
	}
	if !result.Created {
		t.Fatal("expected Created outcome")
	}

	account, err := accounts.GetByID(context.Background(), result.AccountID)
	if err != nil {
		t.Fatalf("account lookup failed: %v", err)
	}
	if !account.PendingNotification {
		t.Fatal("account must be flagged pending notification for the sweep")
	}
}

func TestReconcileProvisionsUnlinkedQuotesAndReEmitsPending(t *testing.T) {
	svc, accounts, quotes, bus := newProvisioningFixture()

	// An approved quote that never got a client account.
	now := time.Now()
	_ = quotes.Create(context.Background(), &domain.Quote{
		ID: "q-orphan", Reference: "Q9", ContactEmail: "orphan@example.com",
		ContactName: "Orphan", Status: domain.QuoteStatusApproved, ApprovedAt: &now,
	})

	svc.Reconcile(context.Background())

	if accounts.creates != 1 {
		t.Fatalf("reconcile should provision the orphaned quote, creates=%d", accounts.creates)
	}
	if got := len(bus.published()); got != 2 {
		t.Fatalf("expected onboarding events from reconcile, got %d", got)
	}

	// An account whose emission failed earlier: re-emitted with stable IDs.
	firstIDs := []string{bus.published()[0].ID, bus.published()[1].ID}
	accountID := bus.published()[0].SubjectID
	account, _ := accounts.GetByID(context.Background(), accountID)
	account.PendingNotification = true
	_ = accounts.Update(context.Background(), account)

	svc.Reconcile(context.Background())

	published := bus.published()
	if len(published) != 4 {
		t.Fatalf("expected re-emission, got %d events", len(published))
	}
	if published[2].ID != firstIDs[0] || published[3].ID != firstIDs[1] {
		t.Error("re-emitted events must carry the same IDs so delivery stays deduplicated")
	}

	account, _ = accounts.GetByID(context.Background(), accountID)
	if account.PendingNotification {
		t.Error("pending-notification flag must clear after successful re-emission")
	}
}

package service

import (
	"context"
	"testing"

	"github.com/spec-kit/portal-service/internal/config"
	"github.com/spec-kit/portal-service/internal/domain"
)

func newAccountFixture() (*AccountService, *memAccountRepo) {
	accounts := newMemAccountRepo()
	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 5
	cfg.Auth.BcryptCost = 4
	return NewAccountService(cfg, accounts), accounts
}

func TestAdminCreationBypassesProvisioning(t *testing.T) {
	svc, accounts := newAccountFixture()

	account, err := svc.CreateByAdmin(context.Background(), "Worker One", "w1@example.com", "secret", domain.RoleWorker)
	if err != nil {
		t.Fatalf("admin creation failed: %v", err)
	}
	if account.Role != domain.RoleWorker {
		t.Errorf("expected WORKER role, got %s", account.Role)
	}
	if account.Invited {
		t.Error("directly created accounts are not invited")
	}
	if account.InviteToken != nil {
		t.Error("directly created accounts carry no credential-setup token")
	}
	if accounts.creates != 1 {
		t.Errorf("expected 1 account, got %d", accounts.creates)
	}
}

func TestAdminCannotCreateClientAccounts(t *testing.T) {
	svc, _ := newAccountFixture()

	if _, err := svc.CreateByAdmin(context.Background(), "C", "c@example.com", "secret", domain.RoleClient); err == nil {
		t.Fatal("client accounts must come from registration or provisioning")
	}
}

func TestAcceptInviteActivatesProvisionedAccount(t *testing.T) {
	svc, accounts := newAccountFixture()

	token := "one-time-token"
	seed := &domain.Account{
		Name: "Invited", Email: "invited@example.com", Role: domain.RoleClient,
		Status: domain.AccountStatusActive, Invited: true, InviteToken: &token,
	}
	if err := accounts.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	account, err := svc.AcceptInvite(context.Background(), token, "new-password")
	if err != nil {
		t.Fatalf("accept invite failed: %v", err)
	}
	if account.Invited {
		t.Error("invited flag must clear")
	}
	if account.InviteToken != nil {
		t.Error("token is one-time and must be consumed")
	}

	// Consuming the same token twice must fail.
	if _, err := svc.AcceptInvite(context.Background(), token, "another"); err == nil {
		t.Fatal("expected second token use to fail")
	}

	// The account can now log in.
	logged, _, _, err := svc.Login(context.Background(), "invited@example.com", "new-password")
	if err != nil {
		t.Fatalf("login after activation failed: %v", err)
	}
	if logged.ID != account.ID {
		t.Error("login resolved to a different account")
	}
}

func TestLoginRejectsInvitedAndDeactivatedAccounts(t *testing.T) {
	svc, accounts := newAccountFixture()

	token := "tok"
	invited := &domain.Account{
		Name: "Pending", Email: "pending@example.com", Role: domain.RoleClient,
		Status: domain.AccountStatusActive, Invited: true, InviteToken: &token,
	}
	_ = accounts.Create(context.Background(), invited)
	if _, _, _, err := svc.Login(context.Background(), "pending@example.com", "whatever"); err == nil {
		t.Error("invited accounts cannot log in before activation")
	}

	account, err := svc.CreateByAdmin(context.Background(), "W", "w@example.com", "secret", domain.RoleWorker)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := svc.Deactivate(context.Background(), account.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, _, _, err := svc.Login(context.Background(), "w@example.com", "secret"); err == nil {
		t.Error("deactivated accounts cannot log in")
	}
}

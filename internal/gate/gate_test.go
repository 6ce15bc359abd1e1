package gate

import (
	"testing"

	"github.com/spec-kit/portal-service/internal/domain"
)

func rolePtr(r domain.Role) *domain.Role {
	return &r
}

func TestAuthorizeAllowsOwnPortal(t *testing.T) {
	g := New(domain.DefaultPortals)

	cases := []struct {
		path string
		role domain.Role
	}{
		{"/client/quotes/42", domain.RoleClient},
		{"/worker/tasks/7/complete", domain.RoleWorker},
		{"/admin/accounts", domain.RoleAdmin},
		{"/client", domain.RoleClient},
	}
	for _, tc := range cases {
		decision := g.Authorize(tc.path, rolePtr(tc.role))
		if decision.Kind != Allow {
			t.Errorf("Authorize(%q, %s): expected Allow, got %v", tc.path, tc.role, decision.Kind)
		}
	}
}

func TestAuthorizeRedirectsCrossPortalToOwnNamespace(t *testing.T) {
	g := New(domain.DefaultPortals)

	cases := []struct {
		path     string
		role     domain.Role
		redirect string
	}{
		{"/admin/accounts", domain.RoleWorker, "/worker"},
		{"/admin/quotes/1/approve", domain.RoleClient, "/client"},
		{"/client/quotes/1", domain.RoleWorker, "/worker"},
		{"/worker/tasks", domain.RoleAdmin, "/admin"},
	}
	for _, tc := range cases {
		decision := g.Authorize(tc.path, rolePtr(tc.role))
		if decision.Kind != Redirect {
			t.Fatalf("Authorize(%q, %s): expected Redirect, got %v", tc.path, tc.role, decision.Kind)
		}
		if decision.RedirectTo != tc.redirect {
			t.Errorf("Authorize(%q, %s): expected redirect to %q, got %q", tc.path, tc.role, tc.redirect, decision.RedirectTo)
		}
		// A redirect into the requested portal would loop forever.
		if decision.RedirectTo == tc.path {
			t.Errorf("Authorize(%q, %s): redirect loops back to requested path", tc.path, tc.role)
		}
	}
}

func TestAuthorizeDeniesUnauthenticatedPortalPaths(t *testing.T) {
	g := New(domain.DefaultPortals)

	for _, path := range []string{"/client/quotes/1", "/worker/tasks", "/admin/accounts"} {
		decision := g.Authorize(path, nil)
		if decision.Kind != Deny {
			t.Errorf("Authorize(%q, unauthenticated): expected Deny, got %v", path, decision.Kind)
		}
	}
}

func TestAuthorizeAllowsPathsOutsidePortalScope(t *testing.T) {
	g := New(domain.DefaultPortals)

	for _, path := range []string{"/health/live", "/auth/login", "/static/app.css", "/clientele"} {
		if decision := g.Authorize(path, nil); decision.Kind != Allow {
			t.Errorf("Authorize(%q, unauthenticated): expected Allow for non-portal path, got %v", path, decision.Kind)
		}
		if decision := g.Authorize(path, rolePtr(domain.RoleWorker)); decision.Kind != Allow {
			t.Errorf("Authorize(%q, worker): expected Allow for non-portal path, got %v", path, decision.Kind)
		}
	}
}

func TestAuthorizeDeniesUnknownRole(t *testing.T) {
	g := New(domain.DefaultPortals)

	unknown := domain.Role("TEAM")
	decision := g.Authorize("/admin/accounts", &unknown)
	if decision.Kind != Deny {
		t.Errorf("expected Deny for unknown role, got %v", decision.Kind)
	}
}

func TestAuthorizeLongestPrefixWins(t *testing.T) {
	portals := []domain.PortalNamespace{
		{Name: domain.NamespaceClient, Prefix: "/app", Role: domain.RoleClient},
		{Name: domain.NamespaceAdmin, Prefix: "/app/admin", Role: domain.RoleAdmin},
		{Name: domain.NamespaceWorker, Prefix: "/work", Role: domain.RoleWorker},
	}
	g := New(portals)

	decision := g.Authorize("/app/admin/settings", rolePtr(domain.RoleAdmin))
	if decision.Kind != Allow {
		t.Fatalf("expected Allow under longest matching prefix, got %v", decision.Kind)
	}
	if decision.Namespace != domain.NamespaceAdmin {
		t.Errorf("expected admin namespace match, got %s", decision.Namespace)
	}

	decision = g.Authorize("/app/quotes", rolePtr(domain.RoleAdmin))
	if decision.Kind != Redirect || decision.RedirectTo != "/app/admin" {
		t.Errorf("expected redirect to /app/admin, got %v -> %q", decision.Kind, decision.RedirectTo)
	}
}

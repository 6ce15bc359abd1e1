package gate

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/auth"
	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/observability"
	"github.com/spec-kit/portal-service/internal/repository"
	apperrors "github.com/spec-kit/portal-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Account *domain.Account
}

// Middleware resolves the caller's identity and applies the gate decision
// to every inbound request.
type Middleware struct {
	gate     *Gate
	tokens   *auth.TokenManager
	accounts repository.AccountRepository
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewMiddleware constructs the gate middleware.
func NewMiddleware(g *Gate, tokens *auth.TokenManager, accounts repository.AccountRepository, logger *zap.Logger, metrics *observability.Metrics) *Middleware {
	return &Middleware{gate: g, tokens: tokens, accounts: accounts, logger: logger, metrics: metrics}
}

// Handle gates the request. Identity store failures deny access, never
// allow by default.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	role, principal, err := m.resolve(c)
	if err != nil {
		// Fail closed: the store being unreachable is indistinguishable
		// from the caller not existing.
		m.logger.Warn("identity resolution failed", zap.Error(err))
		return apperrors.NewAccessDenied()
	}

	decision := m.gate.Authorize(c.Path(), role)

	switch decision.Kind {
	case Allow:
		if decision.Namespace != "" {
			m.metrics.RecordGateDecision(string(decision.Namespace), "allow")
		}
		if principal != nil {
			c.Locals(principalKey, principal)
		}
		return c.Next()
	case Redirect:
		m.metrics.RecordGateDecision(string(decision.Namespace), "redirect")
		m.logger.Info("cross-portal access redirected",
			zap.String("path", c.Path()),
			zap.String("redirect_to", decision.RedirectTo),
		)
		return c.Redirect(decision.RedirectTo, fiber.StatusSeeOther)
	default:
		m.metrics.RecordGateDecision(string(decision.Namespace), "deny")
		return apperrors.NewAccessDenied()
	}
}

// resolve extracts the bearer token and loads the account. Returns a nil
// role for unauthenticated callers, an error only when the store fails.
func (m *Middleware) resolve(c *fiber.Ctx) (*domain.Role, *Principal, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil, nil, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, nil, nil
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		// Bad token is an unauthenticated caller, not a store failure.
		return nil, nil, nil
	}

	account, err := m.accounts.GetByID(c.UserContext(), claims.AccountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if !account.Active() {
		return nil, nil, nil
	}

	role := account.Role
	return &role, &Principal{Account: account}, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// RequireRole ensures the principal carries the given role. Used on routes
// inside a portal group as a second line after the gate.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Account == nil || principal.Account.Role != role {
			return apperrors.NewAccessDenied()
		}
		return c.Next()
	}
}

package gate

import (
	"sort"
	"strings"

	"github.com/spec-kit/portal-service/internal/domain"
)

// DecisionKind enumerates gate outcomes.
type DecisionKind int

const (
	Allow DecisionKind = iota
	Redirect
	Deny
)

// Decision is the gate verdict for one request.
type Decision struct {
	Kind DecisionKind
	// RedirectTo holds the caller's own portal prefix when Kind is Redirect.
	RedirectTo string
	// Namespace is the matched portal, empty when the path is outside
	// portal scope.
	Namespace domain.Namespace
}

// Gate maps every request to at most one portal namespace and decides
// whether the caller may enter it. Pure: no state mutation, safe for
// concurrent use.
type Gate struct {
	// portals ordered by descending prefix length for longest-prefix match.
	portals []domain.PortalNamespace
	byRole  map[domain.Role]domain.PortalNamespace
}

// New builds a gate from the portal table.
func New(portals []domain.PortalNamespace) *Gate {
	ordered := make([]domain.PortalNamespace, len(portals))
	copy(ordered, portals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Prefix) > len(ordered[j].Prefix)
	})

	byRole := make(map[domain.Role]domain.PortalNamespace, len(ordered))
	for _, p := range ordered {
		byRole[p.Role] = p
	}
	return &Gate{portals: ordered, byRole: byRole}
}

// Authorize resolves the portal for requestPath and decides access.
// A nil role means the caller is unauthenticated.
//
// Paths outside every portal prefix are allowed regardless of role; the
// public path list is the surrounding layer's concern. Redirects always
// target the caller's own portal, which by construction has a distinct
// prefix, so a redirect can never loop.
func (g *Gate) Authorize(requestPath string, role *domain.Role) Decision {
	matched, ok := g.match(requestPath)
	if !ok {
		return Decision{Kind: Allow}
	}

	if role == nil {
		return Decision{Kind: Deny, Namespace: matched.Name}
	}

	own, ok := g.byRole[*role]
	if !ok {
		// Unknown role fails closed.
		return Decision{Kind: Deny, Namespace: matched.Name}
	}

	if own.Name == matched.Name {
		return Decision{Kind: Allow, Namespace: matched.Name}
	}
	return Decision{Kind: Redirect, RedirectTo: own.Prefix, Namespace: matched.Name}
}

// PortalFor returns the namespace a role is permitted to enter.
func (g *Gate) PortalFor(role domain.Role) (domain.PortalNamespace, bool) {
	p, ok := g.byRole[role]
	return p, ok
}

func (g *Gate) match(requestPath string) (domain.PortalNamespace, bool) {
	for _, p := range g.portals {
		if requestPath == p.Prefix || strings.HasPrefix(requestPath, p.Prefix+"/") {
			return p, true
		}
	}
	return domain.PortalNamespace{}, false
}

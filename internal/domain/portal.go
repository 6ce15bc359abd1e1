package domain

// Namespace identifies one of the three disjoint portal areas.
type Namespace string

const (
	NamespaceClient Namespace = "CLIENT"
	NamespaceWorker Namespace = "WORKER"
	NamespaceAdmin  Namespace = "ADMIN"
)

// PortalNamespace binds a namespace to its URL prefix and the single role
// permitted to enter it. Configuration data, immutable at runtime.
type PortalNamespace struct {
	Name   Namespace
	Prefix string
	Role   Role
}

// DefaultPortals is the static Role -> Namespace table.
// Each role maps to exactly one namespace with a distinct prefix.
var DefaultPortals = []PortalNamespace{
	{Name: NamespaceClient, Prefix: "/client", Role: RoleClient},
	{Name: NamespaceWorker, Prefix: "/worker", Role: RoleWorker},
	{Name: NamespaceAdmin, Prefix: "/admin", Role: RoleAdmin},
}

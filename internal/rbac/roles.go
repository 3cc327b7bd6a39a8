package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner       = "owner"
	RoleCoordinator = "coordinator" // runs outreach batches
	RoleAnalyst     = "analyst"     // read-only reporting
	RoleSuperAdmin  = "super_admin"
	RoleIntegration = "integration" // hidden machine-to-machine role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleIntegration }

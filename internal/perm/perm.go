package perm

type Role string
type Capability string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

const (
	CanView          Capability = "can_view"
	CanEditTask      Capability = "can_edit_task"
	CanMoveTask      Capability = "can_move_task"
	CanDeleteTask    Capability = "can_delete_task"
	CanManageUsers   Capability = "can_manage_users"
	CanManageColumns Capability = "can_manage_columns"
	CanManageTypes   Capability = "can_manage_types"
)

// All lists every capability a board owner holds implicitly.
var All = []Capability{
	CanView,
	CanEditTask,
	CanMoveTask,
	CanDeleteTask,
	CanManageUsers,
	CanManageColumns,
	CanManageTypes,
}

// Allows evaluates a capability against a member's role and granted set.
// Owners pass unconditionally regardless of their stored permissions.
func Allows(role Role, granted []string, capability Capability) bool {
	if role == RoleOwner {
		return true
	}
	for _, g := range granted {
		if Capability(g) == capability {
			return true
		}
	}
	return false
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleOwner, RoleMember:
		return Role(role)
	default:
		return RoleMember
	}
}

// IsCapability reports whether value names a known capability tag. The set is
// closed: unknown strings never grant anything and are rejected on write.
func IsCapability(value string) bool {
	for _, c := range All {
		if Capability(value) == c {
			return true
		}
	}
	return false
}

// Strings converts a capability list to its stored string form.
func Strings(capabilities []Capability) []string {
	out := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		out = append(out, string(c))
	}
	return out
}

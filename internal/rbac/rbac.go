// Package rbac maps account roles to permitted actions.
package rbac

type Role string
type Action string

const (
	RoleUser      Role = "user"
	RoleSuperuser Role = "superuser"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionGenerate Action = "generate"
	// ActionManageUsers covers listing and (de)activating other accounts.
	ActionManageUsers Action = "manage_users"
	ActionReindex     Action = "reindex"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleSuperuser:
		return true
	case RoleUser:
		return action == ActionRead || action == ActionWrite || action == ActionGenerate
	default:
		return false
	}
}

// Normalize maps unknown roles to RoleUser.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleSuperuser:
		return Role(role)
	default:
		return RoleUser
	}
}

package audit

import "time"

// Action categorizes an audited operation
type Action string

const (
	ActionSignIn  Action = "auth.sign_in"
	ActionSignOut Action = "auth.sign_out"

	ActionRoleCreate Action = "role.create"
	ActionRoleUpdate Action = "role.update"
	ActionRoleDelete Action = "role.delete"
	ActionRoleAssign Action = "role.assign"
	ActionRoleRevoke Action = "role.revoke"

	ActionContentCreate Action = "content.create"
	ActionContentUpdate Action = "content.update"
	ActionContentDelete Action = "content.delete"

	ActionDepartmentCreate Action = "department.create"
	ActionDepartmentUpdate Action = "department.update"
	ActionDepartmentDelete Action = "department.delete"

	ActionMediaUpload Action = "media.upload"
	ActionMediaDelete Action = "media.delete"

	ActionUserUpdate Action = "user.update"
)

// Event is one audit log entry
type Event struct {
	ID           int64                  `json:"id"`
	ActorID      *int64                 `json:"actor_id,omitempty"`
	Action       Action                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Detail       map[string]interface{} `json:"detail,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Filter narrows audit log queries
type Filter struct {
	ActorID      *int64
	Action       Action
	ResourceType string
	Since        *time.Time
	Until        *time.Time
	Limit        int64
	Offset       int64
}

package domain

import "fmt"

// Role is the coarse permission tier. Ordering matters: Root outranks Admin
// outranks User.
type Role int

const (
	RoleUser Role = iota
	RoleAdmin
	RoleRoot
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	case RoleRoot:
		return "root"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// AtLeast reports whether r outranks or equals other.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// ParseRole converts a stored role name into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	case "root":
		return RoleRoot, nil
	}
	return RoleUser, fmt.Errorf("unknown role %q", s)
}

type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`

	// PasswordHash never leaves the process.
	PasswordHash string `json:"-"`
}

type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"created_by"`
	AssignedTo  []string `json:"assigned_to,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

// Assignee is an assigned identity resolved to its display name.
type Assignee struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RevokedSession records a refresh token invalidated before its natural
// expiry. Rows past ExpiresAt are dead weight and may be purged.
type RevokedSession struct {
	JTI       string `json:"jti"`
	Subject   string `json:"subject"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
	RevokedAt string `json:"revoked_at" format:"date-time"`
}

type AuditEvent struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

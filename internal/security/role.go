package security

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the closed set of operator roles.
type Role uint8

const (
	// RoleUnknown is the zero value and never granted anything.
	RoleUnknown Role = iota
	// RoleAdmin manages users, settings and applications.
	RoleAdmin
	// RoleDeveloper manages applications and alerts.
	RoleDeveloper
	// RoleViewer reads dashboards and receives live events.
	RoleViewer
)

var roleNames = map[Role]string{
	RoleAdmin:     "ADMIN",
	RoleDeveloper: "DEVELOPER",
	RoleViewer:    "VIEWER",
}

// ParseRole maps the stored role name onto a Role. Matching is case-insensitive.
func ParseRole(raw string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "ADMIN":
		return RoleAdmin, true
	case "DEVELOPER":
		return RoleDeveloper, true
	case "VIEWER":
		return RoleViewer, true
	default:
		return RoleUnknown, false
	}
}

// String returns the stored role name.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// MarshalJSON encodes the role by name.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a role name.
func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if errUnmarshal := json.Unmarshal(data, &raw); errUnmarshal != nil {
		return errUnmarshal
	}
	parsed, ok := ParseRole(raw)
	if !ok {
		return fmt.Errorf("security: unknown role %q", raw)
	}
	*r = parsed
	return nil
}

// Identity is the authenticated principal carried by session tokens and live connections.
type Identity struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Valid reports whether the identity names a user with a known role.
func (i Identity) Valid() bool {
	return i.UserID != 0 && i.Role.Valid()
}

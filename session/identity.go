package session

// Portal roles carried in the identity returned by the server.
const (
	RoleAdmin       = "admin"       // Can manage programs, users and settings
	RoleStaff       = "staff"       // Can manage beneficiaries and documents
	RoleStudent     = "student"     // Student portal access
	RoleBeneficiary = "beneficiary" // Beneficiary self-service access
)

// Identity is the authenticated principal as reported by GET /users/me.
// It is present on the session if and only if a usable access token is held.
type Identity struct {
	ID          string   `json:"id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// HasRole reports whether the identity holds any of the given roles.
// A nil identity has no roles.
func (i *Identity) HasRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether the identity carries the named permission.
func (i *Identity) HasPermission(name string) bool {
	if i == nil {
		return false
	}
	for _, p := range i.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Permissions = append([]string(nil), i.Permissions...)
	return &c
}

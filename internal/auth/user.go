package auth

// User represents the authenticated caller, set by the auth middleware.
type User struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole checks whether the user has a specific role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.HasRole("admin")
}

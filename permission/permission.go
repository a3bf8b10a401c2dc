package permission

import (
	"fmt"
	"slices"
	"strings"
)

// Actions.
const (
	Read   = "read"
	Update = "update"
	Delete = "delete"
)

// Built-in roles.
const (
	RoleAny    = "any"
	RoleGuests = "guests"
	RoleUsers  = "users"
)

// User returns the role held only by userID.
func User(userID string) string {
	return "user:" + userID
}

// Format renders action on role as a permission string.
func Format(action, role string) string {
	return fmt.Sprintf("%s(%q)", action, role)
}

// Parse splits a permission string into its action and role.
func Parse(perm string) (action, role string, ok bool) {
	open := strings.IndexByte(perm, '(')
	if open <= 0 || !strings.HasSuffix(perm, ")") {
		return "", "", false
	}
	action = perm[:open]
	role = strings.Trim(perm[open+1:len(perm)-1], `"`)
	if role == "" {
		return "", "", false
	}
	return action, role, true
}

// Owner returns the read, update and delete permissions for userID.
func Owner(userID string) []string {
	role := User(userID)
	return []string{Format(Read, role), Format(Update, role), Format(Delete, role)}
}

// Roles returns the roles held by a caller. An empty userID is a guest.
func Roles(userID string) []string {
	if userID == "" {
		return []string{RoleAny, RoleGuests}
	}
	return []string{RoleAny, RoleUsers, User(userID)}
}

// Allowed reports whether any of roles is granted action by perms.
func Allowed(perms []string, action string, roles []string) bool {
	for _, p := range perms {
		a, role, ok := Parse(p)
		if !ok || a != action {
			continue
		}
		if slices.Contains(roles, role) {
			return true
		}
	}
	return false
}

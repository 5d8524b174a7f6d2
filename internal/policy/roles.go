// Package policy decides which roles may enter which views.
package policy

import "strings"

// AnyRole in a required set admits every authenticated role.
const AnyRole = "any"

// RoleSet is the set of roles permitted on a route.
type RoleSet []string

// AdminRoles is the required set of the admin area. Both casings are listed
// because the auth API has returned each; comparison folds case anyway.
var AdminRoles = RoleSet{"Admin", "admin"}

// Authenticated admits any role.
var Authenticated = RoleSet{AnyRole}

// NormalizeRole trims and case-folds a role for comparison.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// IsAllowed reports whether currentRole satisfies required. An empty
// required set admits nobody; an empty current role is never admitted.
func IsAllowed(required RoleSet, currentRole string) bool {
	current := NormalizeRole(currentRole)
	if current == "" {
		return false
	}
	for _, r := range required {
		n := NormalizeRole(r)
		if n == AnyRole || n == current {
			return true
		}
	}
	return false
}

// Contains reports whether role is listed in the set, ignoring case.
func (s RoleSet) Contains(role string) bool {
	n := NormalizeRole(role)
	for _, r := range s {
		if NormalizeRole(r) == n {
			return true
		}
	}
	return false
}

package policy

import "strings"

// RouteRule binds a path pattern to its required roles.
//
// Patterns are slash-separated; a ":name" segment matches any single
// non-empty segment and a trailing "*" matches the remainder (including
// nothing).
type RouteRule struct {
	Pattern string
	Roles   RoleSet
}

// RoutePolicy is an ordered, read-only table of route rules. The first
// matching rule wins.
type RoutePolicy struct {
	rules []RouteRule
}

// NewRoutePolicy builds a policy from rules in priority order.
func NewRoutePolicy(rules ...RouteRule) *RoutePolicy {
	copied := make([]RouteRule, len(rules))
	copy(copied, rules)
	return &RoutePolicy{rules: copied}
}

// DefaultRoutePolicy is the portal's view table.
func DefaultRoutePolicy() *RoutePolicy {
	return NewRoutePolicy(
		RouteRule{Pattern: "/admin", Roles: AdminRoles},
		RouteRule{Pattern: "/admin/*", Roles: AdminRoles},
		RouteRule{Pattern: "/students/:studentId/profile", Roles: AdminRoles},
		RouteRule{Pattern: "/api/*", Roles: Authenticated},
	)
}

// RequiredRoles returns the roles of the first rule matching path. The
// second result is false for routes the policy does not protect.
func (p *RoutePolicy) RequiredRoles(path string) (RoleSet, bool) {
	if p == nil {
		return nil, false
	}
	for _, rule := range p.rules {
		if matchPattern(rule.Pattern, path) {
			return rule.Roles, true
		}
	}
	return nil, false
}

// Rules returns a copy of the table.
func (p *RoutePolicy) Rules() []RouteRule {
	out := make([]RouteRule, len(p.rules))
	copy(out, p.rules)
	return out
}

func matchPattern(pattern, path string) bool {
	pp := splitPath(pattern)
	sp := splitPath(path)

	for i, seg := range pp {
		if seg == "*" && i == len(pp)-1 {
			return true
		}
		if i >= len(sp) {
			return false
		}
		if strings.HasPrefix(seg, ":") {
			if sp[i] == "" {
				return false
			}
			continue
		}
		if seg != sp[i] {
			return false
		}
	}
	return len(pp) == len(sp)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

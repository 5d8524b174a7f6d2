package domain

// DecisionKind enumerates the results of a guard evaluation.
type DecisionKind int

const (
	DecisionPending DecisionKind = iota
	DecisionAllow
	DecisionDenyUnauthenticated
	DecisionDenyUnauthorized
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionPending:
		return "pending"
	case DecisionAllow:
		return "allow"
	case DecisionDenyUnauthenticated:
		return "deny_unauthenticated"
	case DecisionDenyUnauthorized:
		return "deny_unauthorized"
	default:
		return "unknown"
	}
}

// SessionDecision is the outcome of one navigation's guard evaluation.
type SessionDecision struct {
	Kind  DecisionKind
	Role  string
	Route string
}

func Pending(route string) SessionDecision {
	return SessionDecision{Kind: DecisionPending, Route: route}
}

func Allow(route, role string) SessionDecision {
	return SessionDecision{Kind: DecisionAllow, Route: route, Role: role}
}

func DenyUnauthenticated(route string) SessionDecision {
	return SessionDecision{Kind: DecisionDenyUnauthenticated, Route: route}
}

func DenyUnauthorized(route, role string) SessionDecision {
	return SessionDecision{Kind: DecisionDenyUnauthorized, Route: route, Role: role}
}

// Terminal reports whether the decision ends an evaluation.
func (d SessionDecision) Terminal() bool {
	return d.Kind != DecisionPending
}

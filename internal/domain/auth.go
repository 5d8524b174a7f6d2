package domain

// VerificationKind classifies a token verification result.
type VerificationKind int

const (
	VerificationValid VerificationKind = iota
	VerificationInvalid
	VerificationIndeterminate
)

func (k VerificationKind) String() string {
	switch k {
	case VerificationValid:
		return "valid"
	case VerificationInvalid:
		return "invalid"
	case VerificationIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// VerificationOutcome is produced and consumed within a single guard evaluation.
type VerificationOutcome struct {
	Kind   VerificationKind
	Reason string
}

func Valid() VerificationOutcome { return VerificationOutcome{Kind: VerificationValid} }

func Invalid(reason string) VerificationOutcome {
	return VerificationOutcome{Kind: VerificationInvalid, Reason: reason}
}

func Indeterminate(reason string) VerificationOutcome {
	return VerificationOutcome{Kind: VerificationIndeterminate, Reason: reason}
}

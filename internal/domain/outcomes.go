package domain

import "fmt"

// Outcome codes for execution paths. Every path returns a machine-readable
// code plus a human-readable detail string; broker errors are converted to
// outcomes at the lowest layer and never thrown past a job or handler boundary.
const (
	OutcomeOK                  = "OK"
	OutcomeSuccess             = "SUCCESS"
	OutcomePartial             = "PARTIAL"
	OutcomeAborted             = "ABORTED"
	OutcomeError               = "ERROR"
	OutcomeFailedNoAPI         = "FAILED_NO_API"
	OutcomeResearchOnly        = "RESEARCH_ONLY"
	OutcomeQtyZero             = "QTY_ZERO"
	OutcomeRejectedSafety      = "REJECTED_SAFETY"
	OutcomeMaxPositionsReached = "MAX_POSITIONS_REACHED"
	OutcomeAlreadyHolding      = "ALREADY_HOLDING"
	OutcomeNoAPI               = "NO_API"
	OutcomeRiskCheckError      = "RISK_CHECK_ERROR"
	OutcomeIgnoredDuplicate    = "IGNORED_DUPLICATE"
)

// Outcome is the result of an execution attempt.
type Outcome struct {
	Code   string // machine-readable code, one of the Outcome* constants
	Detail string // human-readable detail (order ID, rejection reason, ...)
}

// Success reports whether the outcome is a full success.
func (o Outcome) Success() bool {
	return o.Code == OutcomeSuccess || o.Code == OutcomeOK
}

// Terminal reports whether retrying the same instruction could ever help.
// Compliance and geometry rejections are deterministic for a given candidate;
// connectivity problems are not.
func (o Outcome) Terminal() bool {
	switch o.Code {
	case OutcomeSuccess, OutcomePartial, OutcomeRejectedSafety, OutcomeQtyZero,
		OutcomeResearchOnly, OutcomeIgnoredDuplicate:
		return true
	}
	return false
}

func (o Outcome) String() string {
	if o.Detail == "" {
		return o.Code
	}
	return fmt.Sprintf("%s: %s", o.Code, o.Detail)
}

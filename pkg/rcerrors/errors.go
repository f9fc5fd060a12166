// Package rcerrors defines the error taxonomy shared by every stage of the
// reconciliation pipeline, from intent compilation through classification.
package rcerrors

import "errors"

// Kind identifies a taxonomy bucket from spec §7. Handlers use Kind to decide
// whether a request fails outright, returns a partial trace, or succeeds with
// the evidence gap recorded on the affected diff cell.
type Kind string

const (
	KindMetadata         Kind = "metadata"
	KindAmbiguousIntent  Kind = "ambiguous_intent"
	KindUnresolvablePath Kind = "unresolvable_path"
	KindInvalidConstraint Kind = "invalid_constraint"
	KindDangerousPlan    Kind = "dangerous_plan"
	KindDataTooLarge     Kind = "data_too_large"
	KindTimeout          Kind = "timeout"
	KindIdentity         Kind = "identity"
	KindExecution        Kind = "execution"
	KindSafetyGuardrail  Kind = "safety_guardrail"
	KindUnknown          Kind = "unknown"
)

// Sentinel errors, one per taxonomy kind. Wrap these with fmt.Errorf("%w: ...")
// or the typed wrappers below to attach context; errors.Is still resolves to
// the sentinel so Classify keeps working across wrapping.
var (
	ErrMetadataNotFound    = errors.New("referenced id not found in registry")
	ErrAmbiguousIntent     = errors.New("multiple equally plausible interpretations")
	ErrUnresolvablePath    = errors.New("no join path between entities")
	ErrInvalidConstraint   = errors.New("filter or predicate references unknown column")
	ErrDangerousPlan       = errors.New("projected fan-out exceeds the configured limit")
	ErrDataTooLarge        = errors.New("runtime row or memory limit breached")
	ErrTimeout             = errors.New("deadline reached before completion")
	ErrIdentityNotUnique   = errors.New("grain key columns are not unique where required")
	ErrExecutionFault      = errors.New("tabular data layer fault")
	ErrSafetyGuardrail     = errors.New("safety policy violation")
	ErrInsufficientEvidence = errors.New("classifier had insufficient evidence")
)

var sentinelKind = map[error]Kind{
	ErrMetadataNotFound:     KindMetadata,
	ErrAmbiguousIntent:      KindAmbiguousIntent,
	ErrUnresolvablePath:     KindUnresolvablePath,
	ErrInvalidConstraint:    KindInvalidConstraint,
	ErrDangerousPlan:        KindDangerousPlan,
	ErrDataTooLarge:         KindDataTooLarge,
	ErrTimeout:              KindTimeout,
	ErrIdentityNotUnique:    KindIdentity,
	ErrExecutionFault:       KindExecution,
	ErrSafetyGuardrail:      KindSafetyGuardrail,
	ErrInsufficientEvidence: KindUnknown,
}

// Classify maps an error (possibly wrapped) to its taxonomy Kind. Errors that
// don't match any sentinel classify as KindUnknown, mirroring the
// classification engine's own "insufficient evidence" fallback (spec §4.9 rule 6).
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	for sentinel, kind := range sentinelKind {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// Retryable reports whether the taxonomy kind represents a transient fault
// worth retrying (spec §4.6: "Transient I/O failures on scans are retried
// ... logic errors are never retried").
func (k Kind) Retryable() bool {
	switch k {
	case KindExecution, KindTimeout:
		return true
	default:
		return false
	}
}

// PlanError wraps a fault raised while executing a specific operator of a
// specific logical plan, following the teacher's WorkflowError/ExecutionError
// shape (pkg/models/errors.go in the teacher): a typed struct carrying the
// offending identifiers plus the underlying sentinel, with Unwrap so
// errors.Is/Classify keep working through the wrapper.
type PlanError struct {
	PlanID        string
	OperatorIndex int
	OperatorKind  string
	Err           error
}

func (e *PlanError) Error() string {
	return "plan " + e.PlanID + " operator[" + itoa(e.OperatorIndex) + "] (" + e.OperatorKind + "): " + e.Err.Error()
}

func (e *PlanError) Unwrap() error { return e.Err }

// GroundingError reports that the task grounder could not produce a usable
// GroundedTask — either the intent referenced metadata that doesn't exist, or
// ranking left every candidate table below a usable confidence.
type GroundingError struct {
	Field string
	Err   error
}

func (e *GroundingError) Error() string {
	msg := "grounding"
	if e.Field != "" {
		msg += " [" + e.Field + "]"
	}
	return msg + ": " + e.Err.Error()
}

func (e *GroundingError) Unwrap() error { return e.Err }

// ClassificationEvidenceError records why a diff cell could not be classified
// past the "unknown" fallback (spec §4.9 rule 6) — the missing-evidence reason
// is carried on the Classification value itself, not surfaced as a request
// failure (classification is always total; an unclassifiable cell still gets
// a Classification, just one with classify.KindUnknown).
type ClassificationEvidenceError struct {
	GrainValue string
	Reason     string
}

func (e *ClassificationEvidenceError) Error() string {
	return "insufficient evidence for grain " + e.GrainValue + ": " + e.Reason
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

package webhook

import "errors"

// Outcome is the terminal state of a single verification.
type Outcome int

const (
	Verified Outcome = iota
	MissingSignature
	MissingPayload
	MalformedSignature
	SignatureMismatch
	TimestampTooOld
	// MalformedPayload means the signature matched but the body is not a
	// decodable event envelope.
	MalformedPayload
)

// Outcomes lists every Outcome, in declaration order.
var Outcomes = []Outcome{
	Verified,
	MissingSignature,
	MissingPayload,
	MalformedSignature,
	SignatureMismatch,
	TimestampTooOld,
	MalformedPayload,
}

var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrMissingPayload     = errors.New("missing payload")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrSignatureMismatch  = errors.New("no signature matches the expected digest")
	ErrTimestampTooOld    = errors.New("timestamp outside the tolerance zone")
	ErrMalformedPayload   = errors.New("payload is not a valid event")
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case MissingSignature:
		return "missing_signature"
	case MissingPayload:
		return "missing_payload"
	case MalformedSignature:
		return "malformed_signature"
	case SignatureMismatch:
		return "signature_mismatch"
	case TimestampTooOld:
		return "timestamp_too_old"
	case MalformedPayload:
		return "malformed_payload"
	default:
		return "unknown"
	}
}

// Result is what Verify returns. Event is only meaningful when Outcome is
// Verified; Err is only set on failure and wraps the matching Err* sentinel.
type Result struct {
	Outcome Outcome
	Event   Event
	// Header is the parsed header, zero when parsing did not happen or failed.
	Header Header
	Err    error
}

// OK reports whether the request was verified.
func (r Result) OK() bool {
	return r.Outcome == Verified
}

func failure(o Outcome, err error) Result {
	return Result{Outcome: o, Err: err}
}

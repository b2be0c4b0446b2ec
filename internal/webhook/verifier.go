package webhook

import (
	"crypto/hmac"
	"fmt"
	"time"
)

// Verifier checks Stripe-Signature headers against a single shared secret.
// It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	secret    Secret
	tolerance time.Duration
	now       func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTolerance sets the replay window. A zero duration disables the check.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		v.tolerance = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier creates a Verifier bound to secret. Without WithTolerance the
// timestamp is not checked.
func NewVerifier(secret Secret, opts ...Option) *Verifier {
	v := &Verifier{
		secret: secret,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Tolerance returns the configured replay window.
func (v *Verifier) Tolerance() time.Duration {
	return v.tolerance
}

// Verify decides whether a request is an authentic Stripe event.
//
// A nil header or payload means the value was not supplied at all, which is
// different from an empty one. The checks run in a fixed order and the
// first failure wins:
//  1. header absent: MissingSignature
//  2. payload absent: MissingPayload
//  3. header unparsable or without v1 entries: MalformedSignature
//  4. no v1 entry equals HMAC-SHA256("{t}.{payload}"): SignatureMismatch
//  5. tolerance set and |now - t| beyond it: TimestampTooOld
//  6. payload is not an event envelope: MalformedPayload
//
// A request missing both the header and the payload is MissingSignature.
func (v *Verifier) Verify(header, payload *string) Result {
	if header == nil {
		return failure(MissingSignature, ErrMissingSignature)
	}
	if payload == nil {
		return failure(MissingPayload, ErrMissingPayload)
	}

	h, err := ParseHeader(*header)
	if err != nil {
		return failure(MalformedSignature, err)
	}

	body := []byte(*payload)
	expected := ComputeSignature(v.secret, h.Timestamp, body)

	// Every entry is compared so the time spent does not depend on which
	// entry matched.
	matched := false
	for _, sig := range h.Signatures {
		if hmac.Equal(expected, sig) {
			matched = true
		}
	}
	if !matched {
		return Result{Outcome: SignatureMismatch, Header: h, Err: ErrSignatureMismatch}
	}

	if v.tolerance > 0 {
		if skew := v.now().Unix() - h.Timestamp; abs(skew) > int64(v.tolerance/time.Second) {
			return Result{
				Outcome: TimestampTooOld,
				Header:  h,
				Err:     fmt.Errorf("%w: skew %ds exceeds %s", ErrTimestampTooOld, skew, v.tolerance),
			}
		}
	}

	event, err := ParseEvent(body)
	if err != nil {
		return Result{Outcome: MalformedPayload, Header: h, Err: err}
	}

	return Result{Outcome: Verified, Event: event, Header: h}
}

// VerifyBytes is Verify for callers that hold the payload as bytes.
func (v *Verifier) VerifyBytes(header *string, payload []byte) Result {
	if payload == nil {
		return v.Verify(header, nil)
	}
	s := string(payload)
	return v.Verify(header, &s)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

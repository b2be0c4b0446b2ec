package webhook

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// HeaderName is the request header Stripe puts the signature in.
const HeaderName = "Stripe-Signature"

// Header is a parsed Stripe-Signature header.
type Header struct {
	Timestamp int64
	// Signatures holds the decoded v1 digests in header order.
	Signatures [][]byte
}

// ParseHeader parses a header of the form
//
//	t=<timestamp>,v1=<hex>[,<scheme>=<value>...]
//
// The timestamp element must come first. Entries of other schemes are
// skipped but must still be scheme=value pairs. At least one v1 entry is
// required. No whitespace is trimmed.
//
// All errors wrap ErrMalformedSignature and never echo signature values.
func ParseHeader(s string) (Header, error) {
	var h Header

	elems := strings.Split(s, ",")
	if len(elems) < 2 {
		return h, fmt.Errorf("%w: expected timestamp and at least one signature", ErrMalformedSignature)
	}

	ts, ok := strings.CutPrefix(elems[0], "t=")
	if !ok {
		return h, fmt.Errorf("%w: header must start with t=", ErrMalformedSignature)
	}
	if !isDigits(ts) {
		return h, fmt.Errorf("%w: timestamp is not an unsigned integer", ErrMalformedSignature)
	}
	timestamp, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return h, fmt.Errorf("%w: timestamp out of range", ErrMalformedSignature)
	}
	h.Timestamp = timestamp

	for i, elem := range elems[1:] {
		scheme, value, found := strings.Cut(elem, "=")
		if !found || scheme == "" {
			return h, fmt.Errorf("%w: entry %d is not scheme=value", ErrMalformedSignature, i+1)
		}
		if scheme != SchemeV1 {
			continue
		}
		if value == "" || len(value)%2 != 0 {
			return h, fmt.Errorf("%w: v1 entry %d is not a hex digest", ErrMalformedSignature, i+1)
		}
		sig, err := hex.DecodeString(value)
		if err != nil {
			return h, fmt.Errorf("%w: v1 entry %d is not a hex digest", ErrMalformedSignature, i+1)
		}
		h.Signatures = append(h.Signatures, sig)
	}

	if len(h.Signatures) == 0 {
		return h, fmt.Errorf("%w: no v1 signature", ErrMalformedSignature)
	}

	return h, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

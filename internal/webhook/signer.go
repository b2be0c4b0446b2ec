package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SchemeV1 is the only signature scheme Stripe currently signs with.
const SchemeV1 = "v1"

// ComputeSignature returns the raw HMAC-SHA256 digest Stripe sends as a v1 entry.
// The signed message is "{timestamp}.{payload}".
//
// Parameters:
//   - secret: Webhook signing secret
//   - timestamp: Unix seconds taken from the "t=" element of the header
//   - payload: Raw request body
//
// Returns:
//   - The 32-byte digest (not hex-encoded)
func ComputeSignature(secret Secret, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret.key)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignHeader builds a Stripe-Signature header value for the given payload.
//
// Example:
//
//	secret, _ := NewSecret("whsec_test")
//	header := SignHeader(secret, 1700000000, []byte(`{"type":"charge.succeeded"}`))
//	// header = "t=1700000000,v1=<64 hex chars>"
func SignHeader(secret Secret, timestamp int64, payload []byte) string {
	sig := ComputeSignature(secret, timestamp, payload)
	return "t=" + strconv.FormatInt(timestamp, 10) + "," + SchemeV1 + "=" + hex.EncodeToString(sig)
}

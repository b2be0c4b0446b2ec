package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	SecretLength = 32
	SecretPrefix = "whsec_"
)

// ErrEmptySecret is returned by NewSecret for an empty key.
var ErrEmptySecret = errors.New("webhook secret is empty")

const redacted = "[REDACTED]"

// Secret is the shared key used to verify Stripe-Signature headers.
// It is immutable once built and never prints its contents.
type Secret struct {
	key []byte
}

func NewSecret(s string) (Secret, error) {
	if s == "" {
		return Secret{}, ErrEmptySecret
	}
	return Secret{key: []byte(s)}, nil
}

// IsZero reports whether the secret was never initialised.
func (s Secret) IsZero() bool {
	return len(s.key) == 0
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return "webhook.Secret{" + redacted + "}"
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func GenerateSecret() (string, error) {
	b := make([]byte, SecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}

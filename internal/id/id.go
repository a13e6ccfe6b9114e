// Package id mints the idempotency keys that tie together every call of one
// payment attempt.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Key is an opaque idempotency key. The zero value is not a valid key.
type Key string

// String returns the key as sent on the wire.
func (k Key) String() string { return string(k) }

// IsZero reports whether k was never minted.
func (k Key) IsZero() bool { return k == "" }

// Issuer mints keys. One key is minted when a payment attempt starts, before
// the receiver lookup, and reused verbatim for every retry of that attempt.
type Issuer struct {
	newUUID func() (uuid.UUID, error)
}

// NewIssuer returns an Issuer backed by random (v4) UUIDs.
func NewIssuer() *Issuer {
	return &Issuer{newUUID: uuid.NewRandom}
}

// MintKey returns a fresh key.
func (i *Issuer) MintKey() (Key, error) {
	u, err := i.newUUID()
	if err != nil {
		return "", fmt.Errorf("minting idempotency key: %w", err)
	}
	return Key(u.String()), nil
}

// ParseKey validates a key echoed back by a service.
func ParseKey(s string) (Key, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid idempotency key %q: %w", s, err)
	}
	return Key(u.String()), nil
}

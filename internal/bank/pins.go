package bank

import (
	"context"
	"errors"
	"fmt"

	bolt "github.com/boltdb/bolt"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cleared-dev/splitpay/internal/transfer"
)

const pinLength = 6

var (
	// ErrPinNotSet is returned when a member has no transfer PIN.
	ErrPinNotSet = errors.New("transfer pin not set")
	// ErrVerificationRequired is returned by ResetPin without a verification
	// token.
	ErrVerificationRequired = errors.New("identity verification required")
	// ErrInvalidPin is returned when a new PIN is not six digits.
	ErrInvalidPin = errors.New("pin must be 6 digits")
)

type pinRecord struct {
	Hash     []byte `json:"hash"`
	Failures int    `json:"failures"`
	Locked   bool   `json:"locked"`
}

// SetPin sets a member's PIN, clearing any failures or lock.
func (s *Store) SetPin(_ context.Context, memberID int64, pin string) error {
	if !validPin(pin) {
		return ErrInvalidPin
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing pin: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketPins), itob(memberID), pinRecord{Hash: hash})
	})
}

// HasPin reports whether the member has set a PIN.
func (s *Store) HasPin(memberID int64) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketPins).Get(itob(memberID)) != nil
		return nil
	})
	return found, err
}

// ValidatePin checks pin against the stored hash. It returns
// transfer.ErrWrongPin for a miss and transfer.ErrPinLocked once the member
// has missed MaxPinFailures times in a row.
func (s *Store) ValidatePin(_ context.Context, memberID int64, pin string) error {
	var verdict error
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPins)
		var rec pinRecord
		if err := getJSON(b, itob(memberID), &rec); err != nil {
			if errors.Is(err, errNoValue) {
				return ErrPinNotSet
			}
			return err
		}
		if rec.Locked {
			verdict = transfer.ErrPinLocked
			return nil
		}

		if validPin(pin) && bcrypt.CompareHashAndPassword(rec.Hash, []byte(pin)) == nil {
			if rec.Failures == 0 {
				return nil
			}
			rec.Failures = 0
			return putJSON(b, itob(memberID), rec)
		}

		rec.Failures++
		verdict = transfer.ErrWrongPin
		if rec.Failures >= s.maxPinFailures {
			rec.Locked = true
			verdict = transfer.ErrPinLocked
			s.logger.Warn("transfer pin locked", zap.Int64("member_id", memberID))
		}
		return putJSON(b, itob(memberID), rec)
	})
	if err != nil {
		return err
	}
	return verdict
}

// ResetPin sets a new PIN after out-of-band identity verification and lifts a
// lock. Verification mechanics live outside the bank; any non-empty token is
// accepted.
func (s *Store) ResetPin(ctx context.Context, memberID int64, verification, newPin string) error {
	if verification == "" {
		return ErrVerificationRequired
	}
	if err := s.SetPin(ctx, memberID, newPin); err != nil {
		return err
	}
	s.logger.Info("transfer pin reset", zap.Int64("member_id", memberID))
	return nil
}

// ChangePin replaces the PIN when oldPin is correct. A wrong oldPin counts as
// a failed attempt.
func (s *Store) ChangePin(ctx context.Context, memberID int64, oldPin, newPin string) error {
	if !validPin(newPin) {
		return ErrInvalidPin
	}
	if err := s.ValidatePin(ctx, memberID, oldPin); err != nil {
		return err
	}
	return s.SetPin(ctx, memberID, newPin)
}

func validPin(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// Package transfer authorizes and executes a single money transfer. Each
// payment attempt is an Intent identified by an idempotency key that is
// minted before the receiver lookup and reused for every retry, so the bank
// executes the attempt at most once.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/cleared-dev/splitpay/internal/model"
)

var (
	// ErrWrongPin is the PIN service's answer to an incorrect PIN.
	ErrWrongPin = errors.New("wrong transfer pin")
	// ErrPinLocked is the PIN service's answer once it has locked the PIN.
	ErrPinLocked = errors.New("pin locked by service")
	// ErrReceiverNotFound is returned when no account matches the receiver.
	ErrReceiverNotFound = errors.New("receiver account not found")
)

// AccountService lists accounts and resolves receivers. Lookups carry the
// attempt's idempotency key so retried lookups are deduplicated.
type AccountService interface {
	ListAccounts(ctx context.Context, memberID int64) ([]model.BankAccount, error)
	ResolveReceiver(ctx context.Context, key, bankCode, accountNum string) (holder string, err error)
	Balance(ctx context.Context, key string, accountID int64) (int64, error)
}

// PinService validates and manages transfer PINs. ValidatePin returns
// ErrWrongPin for an incorrect PIN and ErrPinLocked once locked.
type PinService interface {
	ValidatePin(ctx context.Context, memberID int64, pin string) error
	ResetPin(ctx context.Context, memberID int64, verification, newPin string) error
	ChangePin(ctx context.Context, memberID int64, oldPin, newPin string) error
}

// TransferService executes transfers. A returned error means no verdict was
// received; the outcome of the call is unknown and a retry must reuse the
// same idempotency key.
type TransferService interface {
	Transfer(ctx context.Context, req model.TransferRequest) (model.TransferResult, error)
}

// Event is one step of a transfer flow, for audit trails. It never carries
// the PIN.
type Event struct {
	Time     time.Time
	MemberID int64
	Key      string
	Action   string
	Status   model.TransferStatus
	Detail   string
}

// EventSink receives flow events.
type EventSink interface {
	Record(ev Event) error
}

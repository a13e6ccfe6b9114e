package transfer

import (
	"fmt"
	"sync"

	"github.com/cleared-dev/splitpay/internal/id"
	"github.com/cleared-dev/splitpay/internal/model"
)

// Intent is one attempted money movement. It owns its idempotency key and
// its PIN gate; a new payment always needs a new Intent.
type Intent struct {
	mu           sync.Mutex
	key          id.Key
	memberID     int64
	settlementID *int64
	withdrawal   model.AccountRef
	receiver     model.ReceiverRef
	amount       int64
	status       model.TransferStatus
	lookup       *model.ReceiverLookup
	result       *model.TransferResult
	auth         *Authorizer
	inFlight     bool
	discarded    bool
}

// Key returns the idempotency key, or the zero key once discarded.
func (in *Intent) Key() id.Key {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.key
}

// Status returns the lifecycle status.
func (in *Intent) Status() model.TransferStatus {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.status
}

// Amount returns the amount to transfer in minor units.
func (in *Intent) Amount() int64 { return in.amount }

// SettlementID returns the settlement share being paid, if any.
func (in *Intent) SettlementID() *int64 { return in.settlementID }

// Receiver returns the receiver, including the resolved holder once looked up.
func (in *Intent) Receiver() model.ReceiverRef {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.receiver
}

// Lookup returns the receiver lookup result once it has completed.
func (in *Intent) Lookup() (model.ReceiverLookup, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.lookup == nil {
		return model.ReceiverLookup{}, false
	}
	return *in.lookup, true
}

// Result returns the confirmed transfer result.
func (in *Intent) Result() (model.TransferResult, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.result == nil {
		return model.TransferResult{}, false
	}
	return *in.result, true
}

// Authorizer returns the intent's PIN gate. It lives as long as the intent,
// so closing and reopening PIN entry keeps the remaining attempts.
func (in *Intent) Authorizer() *Authorizer { return in.auth }

// Discarded reports whether the intent was abandoned.
func (in *Intent) Discarded() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.discarded
}

// advanceLocked moves the status forward; in.mu must be held.
func (in *Intent) advanceLocked(next model.TransferStatus) error {
	if !in.status.CanAdvanceTo(next) {
		return fmt.Errorf("transfer %s: cannot move from %s to %s", in.key, in.status, next)
	}
	in.status = next
	return nil
}

func (in *Intent) advance(next model.TransferStatus) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.advanceLocked(next)
}

// discard forgets the key and wipes any buffered PIN digits.
func (in *Intent) discard() {
	in.mu.Lock()
	in.discarded = true
	in.key = ""
	in.mu.Unlock()
	in.auth.Close()
}

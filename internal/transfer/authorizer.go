package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cleared-dev/splitpay/internal/xerrors"
)

// Defaults for the PIN gate.
const (
	DefaultPinLength   = 6
	DefaultMaxAttempts = 5
)

// State is the PIN gate state of one transfer intent.
type State int

const (
	AwaitingPin State = iota
	Verifying
	Authorized
	LockedFallback
)

func (s State) String() string {
	switch s {
	case AwaitingPin:
		return "AWAITING_PIN"
	case Verifying:
		return "VERIFYING"
	case Authorized:
		return "AUTHORIZED"
	case LockedFallback:
		return "LOCKED_FALLBACK"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrLocked is returned once every attempt of this transfer has been used
	// up. A lock reported by the PIN service surfaces as ErrPinLocked instead.
	ErrLocked = errors.New("pin attempts exhausted for this transfer")
	// ErrAlreadyAuthorized is returned when a PIN is submitted after success.
	ErrAlreadyAuthorized = errors.New("transfer already authorized")
	// ErrVerifying is returned when a PIN is submitted while one is being checked.
	ErrVerifying = errors.New("pin verification in progress")
)

// FallbackRoute is where the user goes after a lockout: out-of-band identity
// re-verification followed by a PIN reset.
const FallbackRoute = "identity-reverification"

// Verifier checks a PIN with the PIN service. ok=false with a nil error
// means the PIN was wrong; a non-nil error means no verdict was reached.
type Verifier interface {
	VerifyPin(ctx context.Context, pin string) (ok bool, err error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, pin string) (bool, error)

// VerifyPin calls f.
func (f VerifierFunc) VerifyPin(ctx context.Context, pin string) (bool, error) { return f(ctx, pin) }

// Authorizer is the PIN entry state machine of one transfer intent. The
// entered PIN lives only in buf and is wiped after every attempt.
type Authorizer struct {
	mu           sync.Mutex
	verifier     Verifier
	pinLength    int
	state        State
	attemptsLeft int
	buf          []byte
}

// NewAuthorizer returns an authorizer in AwaitingPin with maxAttempts
// attempts. Zero values select the defaults.
func NewAuthorizer(v Verifier, pinLength, maxAttempts int) *Authorizer {
	if pinLength <= 0 {
		pinLength = DefaultPinLength
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Authorizer{
		verifier:     v,
		pinLength:    pinLength,
		state:        AwaitingPin,
		attemptsLeft: maxAttempts,
		buf:          make([]byte, 0, pinLength),
	}
}

// State returns the current state.
func (a *Authorizer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// AttemptsLeft returns how many wrong PINs may still be entered.
func (a *Authorizer) AttemptsLeft() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attemptsLeft
}

// Entered returns how many digits are currently buffered.
func (a *Authorizer) Entered() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// Fallback returns the re-verification route once the authorizer is locked.
func (a *Authorizer) Fallback() (string, bool) {
	if a.State() != LockedFallback {
		return "", false
	}
	return FallbackRoute, true
}

// Press appends a keypad digit and submits automatically once the PIN is
// complete. The returned state is the state after the key press.
func (a *Authorizer) Press(ctx context.Context, digit byte) (State, error) {
	a.mu.Lock()
	if err := a.acceptingLocked(); err != nil {
		a.mu.Unlock()
		return a.state, err
	}
	if digit < '0' || digit > '9' {
		a.mu.Unlock()
		return AwaitingPin, xerrors.ValidationError{Field: "pin", Description: "pin digits must be 0-9"}
	}
	a.buf = append(a.buf, digit)
	if len(a.buf) < a.pinLength {
		a.mu.Unlock()
		return AwaitingPin, nil
	}
	return a.verifyLocked(ctx)
}

// Backspace removes the last buffered digit.
func (a *Authorizer) Backspace() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.buf); n > 0 {
		a.buf[n-1] = 0
		a.buf = a.buf[:n-1]
	}
}

// SubmitPin checks a complete PIN. A PIN of the wrong length or with
// non-digits is rejected locally without using an attempt.
func (a *Authorizer) SubmitPin(ctx context.Context, pin string) (State, error) {
	a.mu.Lock()
	if err := a.acceptingLocked(); err != nil {
		a.mu.Unlock()
		return a.state, err
	}
	a.wipeLocked()
	if err := checkPinFormat(pin, a.pinLength); err != nil {
		a.mu.Unlock()
		return AwaitingPin, err
	}
	a.buf = append(a.buf, pin...)
	return a.verifyLocked(ctx)
}

// Close tears the PIN entry down: the buffer is wiped immediately. State and
// remaining attempts are kept for the same intent.
func (a *Authorizer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.wipeLocked()
}

// verifyLocked is entered with a.mu held and a full buffer; it releases the
// lock around the verifier call.
func (a *Authorizer) verifyLocked(ctx context.Context) (State, error) {
	pin := string(a.buf)
	a.wipeLocked()
	a.state = Verifying
	a.mu.Unlock()

	ok, err := a.verifier.VerifyPin(ctx, pin)

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case errors.Is(err, ErrPinLocked):
		a.attemptsLeft = 0
		a.state = LockedFallback
		return a.state, xerrors.Fatal("verify pin", "", ErrPinLocked)
	case err != nil:
		a.state = AwaitingPin
		return a.state, xerrors.Recoverable("verify pin", "", err)
	case ok:
		a.state = Authorized
		return a.state, nil
	}

	a.attemptsLeft--
	if a.attemptsLeft <= 0 {
		a.attemptsLeft = 0
		a.state = LockedFallback
		return a.state, xerrors.Fatal("verify pin", "too many wrong pins", ErrLocked)
	}
	a.state = AwaitingPin
	return a.state, xerrors.Recoverable("verify pin", fmt.Sprintf("wrong pin, %d attempts left", a.attemptsLeft), ErrWrongPin)
}

func (a *Authorizer) acceptingLocked() error {
	switch a.state {
	case Authorized:
		return ErrAlreadyAuthorized
	case LockedFallback:
		return xerrors.Fatal("submit pin", "", ErrLocked)
	case Verifying:
		return ErrVerifying
	}
	return nil
}

func (a *Authorizer) wipeLocked() {
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.buf = a.buf[:0]
}

func checkPinFormat(pin string, length int) error {
	if len(pin) != length {
		return xerrors.ValidationError{Field: "pin", Description: fmt.Sprintf("pin must be %d digits", length)}
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return xerrors.ValidationError{Field: "pin", Description: "pin digits must be 0-9"}
		}
	}
	return nil
}

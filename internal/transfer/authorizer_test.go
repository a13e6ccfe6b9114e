package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/splitpay/internal/xerrors"
)

// pinChecker is a Verifier that accepts one PIN and records every call.
type pinChecker struct {
	correct string
	calls   []string
	err     error
}

func (p *pinChecker) VerifyPin(_ context.Context, pin string) (bool, error) {
	p.calls = append(p.calls, pin)
	if p.err != nil {
		return false, p.err
	}
	return pin == p.correct, nil
}

func TestAuthorizer_CorrectPinAuthorizesImmediately(t *testing.T) {
	for k := 1; k <= 5; k++ {
		v := &pinChecker{correct: "246810"}
		a := NewAuthorizer(v, 0, 0)
		ctx := context.Background()

		for i := 1; i < k; i++ {
			state, err := a.SubmitPin(ctx, "000000")
			require.Error(t, err)
			assert.True(t, xerrors.IsRecoverable(err))
			assert.ErrorIs(t, err, ErrWrongPin)
			assert.Equal(t, AwaitingPin, state)
		}
		state, err := a.SubmitPin(ctx, "246810")
		require.NoError(t, err, "attempt %d", k)
		assert.Equal(t, Authorized, state)
		assert.Equal(t, 5-(k-1), a.AttemptsLeft())
		assert.Len(t, v.calls, k)
	}
}

func TestAuthorizer_FiveWrongPinsLock(t *testing.T) {
	v := &pinChecker{correct: "246810"}
	a := NewAuthorizer(v, 6, 5)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		state, err := a.SubmitPin(ctx, "111111")
		require.Error(t, err)
		assert.Equal(t, AwaitingPin, state)
		assert.Equal(t, 5-i, a.AttemptsLeft())
		_, ok := a.Fallback()
		assert.False(t, ok)
	}

	state, err := a.SubmitPin(ctx, "111111")
	require.Error(t, err)
	assert.Equal(t, LockedFallback, state)
	assert.True(t, xerrors.IsFatal(err))
	assert.ErrorIs(t, err, ErrLocked)
	assert.Zero(t, a.AttemptsLeft())

	route, ok := a.Fallback()
	assert.True(t, ok)
	assert.Equal(t, FallbackRoute, route)

	// Even the correct PIN is refused without reaching the service.
	_, err = a.SubmitPin(ctx, "246810")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Len(t, v.calls, 5)
}

func TestAuthorizer_MalformedPinDoesNotConsumeAttempt(t *testing.T) {
	v := &pinChecker{correct: "246810"}
	a := NewAuthorizer(v, 6, 5)

	for _, pin := range []string{"", "12345", "1234567", "12a456"} {
		state, err := a.SubmitPin(context.Background(), pin)
		require.Error(t, err, "pin %q", pin)
		assert.True(t, xerrors.IsValidation(err))
		assert.Equal(t, AwaitingPin, state)
	}
	assert.Equal(t, 5, a.AttemptsLeft())
	assert.Empty(t, v.calls, "malformed pins never reach the service")
}

func TestAuthorizer_TransportErrorDoesNotConsumeAttempt(t *testing.T) {
	v := &pinChecker{correct: "246810", err: errors.New("timeout")}
	a := NewAuthorizer(v, 6, 5)

	state, err := a.SubmitPin(context.Background(), "246810")
	require.Error(t, err)
	assert.True(t, xerrors.IsRecoverable(err))
	assert.Equal(t, AwaitingPin, state)
	assert.Equal(t, 5, a.AttemptsLeft())

	v.err = nil
	state, err = a.SubmitPin(context.Background(), "246810")
	require.NoError(t, err)
	assert.Equal(t, Authorized, state)
}

func TestAuthorizer_ServiceLockIsFatal(t *testing.T) {
	v := &pinChecker{err: ErrPinLocked}
	a := NewAuthorizer(v, 6, 5)

	state, err := a.SubmitPin(context.Background(), "123456")
	require.Error(t, err)
	assert.True(t, xerrors.IsFatal(err))
	assert.ErrorIs(t, err, ErrPinLocked)
	assert.NotErrorIs(t, err, ErrLocked)
	assert.Equal(t, LockedFallback, state)
	assert.Zero(t, a.AttemptsLeft())

	_, err = a.SubmitPin(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestLockErrorsAreDistinct(t *testing.T) {
	assert.NotEqual(t, ErrLocked.Error(), ErrPinLocked.Error())
}

func TestAuthorizer_RejectsAfterAuthorized(t *testing.T) {
	a := NewAuthorizer(&pinChecker{correct: "246810"}, 6, 5)
	_, err := a.SubmitPin(context.Background(), "246810")
	require.NoError(t, err)

	_, err = a.SubmitPin(context.Background(), "246810")
	assert.ErrorIs(t, err, ErrAlreadyAuthorized)
}

func TestAuthorizer_KeypadAutoSubmits(t *testing.T) {
	v := &pinChecker{correct: "246810"}
	a := NewAuthorizer(v, 6, 5)
	ctx := context.Background()

	for _, d := range []byte("24681") {
		state, err := a.Press(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, AwaitingPin, state)
	}
	assert.Equal(t, 5, a.Entered())
	assert.Empty(t, v.calls)

	a.Backspace()
	assert.Equal(t, 4, a.Entered())
	_, err := a.Press(ctx, '1')
	require.NoError(t, err)

	state, err := a.Press(ctx, '0')
	require.NoError(t, err)
	assert.Equal(t, Authorized, state)
	assert.Equal(t, []string{"246810"}, v.calls)
	assert.Zero(t, a.Entered(), "buffer wiped after the attempt")
}

func TestAuthorizer_KeypadWrongPinClearsBuffer(t *testing.T) {
	v := &pinChecker{correct: "246810"}
	a := NewAuthorizer(v, 6, 5)
	ctx := context.Background()

	var state State
	var err error
	for _, d := range []byte("999999") {
		state, err = a.Press(ctx, d)
	}
	require.Error(t, err)
	assert.Equal(t, AwaitingPin, state)
	assert.Zero(t, a.Entered())
	assert.Equal(t, 4, a.AttemptsLeft())

	_, err = a.Press(ctx, 'x')
	assert.True(t, xerrors.IsValidation(err))
}

func TestAuthorizer_CloseKeepsAttempts(t *testing.T) {
	v := &pinChecker{correct: "246810"}
	a := NewAuthorizer(v, 6, 5)
	ctx := context.Background()

	_, _ = a.SubmitPin(ctx, "000000")
	_, _ = a.SubmitPin(ctx, "000000")
	_, _ = a.Press(ctx, '2')
	_, _ = a.Press(ctx, '4')

	a.Close()
	assert.Zero(t, a.Entered(), "close wipes the buffer")
	assert.Equal(t, 3, a.AttemptsLeft(), "reopening the same intent keeps attempts")
	assert.Equal(t, AwaitingPin, a.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AWAITING_PIN", AwaitingPin.String())
	assert.Equal(t, "LOCKED_FALLBACK", LockedFallback.String())
	assert.Equal(t, "State(9)", State(9).String())
}

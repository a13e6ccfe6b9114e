package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/splitpay/internal/id"
	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/session"
	"github.com/cleared-dev/splitpay/internal/xerrors"
)

var (
	// ErrInFlight is returned when a confirm is submitted while another
	// confirm for the same intent has not returned yet.
	ErrInFlight = errors.New("transfer confirmation already in flight")
	// ErrDiscarded is returned for any call on an abandoned intent.
	ErrDiscarded = errors.New("transfer intent discarded")
	// ErrNotLookedUp is returned when confirming before the receiver lookup.
	ErrNotLookedUp = errors.New("receiver lookup has not completed")
)

// Options tune the PIN gate.
type Options struct {
	PinLength   int
	MaxAttempts int
}

// Flow drives payment attempts: key minting, receiver lookup, PIN gate and
// the final transfer call. Calls within one intent are sequential; separate
// intents are independent.
type Flow struct {
	accounts  AccountService
	pins      PinService
	transfers TransferService
	issuer    *id.Issuer
	events    EventSink
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewFlow creates a Flow. events may be nil.
func NewFlow(
	accounts AccountService,
	pins PinService,
	transfers TransferService,
	issuer *id.Issuer,
	events EventSink,
	logger *zap.Logger,
	opts Options,
) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		accounts:  accounts,
		pins:      pins,
		transfers: transfers,
		issuer:    issuer,
		events:    events,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// BeginRequest describes a payment the member wants to make.
type BeginRequest struct {
	Withdrawal   model.AccountRef
	Receiver     model.ReceiverRef // bank code and number; holder is resolved
	Amount       int64
	SettlementID *int64 // set when paying a settlement share
}

// Memo holds the texts printed on both account statements. Empty fields
// default to the receiver and withdrawal holder names.
type Memo struct {
	Receiver   string
	Withdrawal string
}

// Begin starts a payment attempt: the idempotency key is minted here, before
// any lookup, so that a retried lookup is deduplicated as well.
func (f *Flow) Begin(sess *session.Session, req BeginRequest) (*Intent, error) {
	if err := sess.Err(); err != nil {
		return nil, xerrors.Fatal("begin transfer", "", err)
	}
	if req.Amount <= 0 {
		return nil, xerrors.ValidationError{Field: "amount", Description: fmt.Sprintf("amount must be positive, got %d", req.Amount)}
	}
	if req.Receiver.BankCode == "" || req.Receiver.Number == "" {
		return nil, xerrors.ValidationError{Field: "receiver", Description: "bank code and account number are required"}
	}

	key, err := f.issuer.MintKey()
	if err != nil {
		return nil, err
	}

	member := sess.Member()
	in := &Intent{
		key:          key,
		memberID:     member.ID,
		settlementID: req.SettlementID,
		withdrawal:   req.Withdrawal,
		receiver:     model.ReceiverRef{BankCode: req.Receiver.BankCode, Number: req.Receiver.Number},
		amount:       req.Amount,
		status:       model.TransferInitiated,
	}
	in.auth = NewAuthorizer(f.verifierFor(member.ID), f.opts.PinLength, f.opts.MaxAttempts)

	f.logger.Info("transfer intent created",
		zap.String("idempotency_key", key.String()),
		zap.Int64("member_id", member.ID),
		zap.Int64("amount", req.Amount))
	f.record(in, "begin", "")
	return in, nil
}

// Lookup resolves the receiver's holder name and the withdrawal balance using
// the intent's key. It may be retried any number of times.
func (f *Flow) Lookup(sess *session.Session, in *Intent) (model.ReceiverLookup, error) {
	if err := f.live(sess, in); err != nil {
		return model.ReceiverLookup{}, err
	}
	if st := in.Status(); st != model.TransferInitiated {
		return model.ReceiverLookup{}, xerrors.ValidationError{
			Field:       "status",
			Description: fmt.Sprintf("receiver lookup is not allowed in status %s", st),
		}
	}

	ctx := sess.Context()
	key := in.Key().String()
	receiver := in.Receiver()

	holder, err := f.accounts.ResolveReceiver(ctx, key, receiver.BankCode, receiver.Number)
	if err != nil {
		f.logger.Warn("receiver lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return model.ReceiverLookup{}, f.callError(sess, in, "resolve receiver", err)
	}
	balance, err := f.accounts.Balance(ctx, key, in.withdrawal.AccountID)
	if err != nil {
		f.logger.Warn("balance lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		return model.ReceiverLookup{}, f.callError(sess, in, "fetch balance", err)
	}

	lookup := model.ReceiverLookup{
		IdempotencyKey:    key,
		SettlementID:      in.settlementID,
		ReceiverHolder:    holder,
		WithdrawalAccount: in.withdrawal.AccountID,
		WithdrawalNumber:  in.withdrawal.Number,
		WithdrawalBalance: balance,
	}
	in.mu.Lock()
	in.receiver.Holder = holder
	in.lookup = &lookup
	in.mu.Unlock()

	f.record(in, "lookup", holder)
	return lookup, nil
}

// SubmitPin runs the intent's PIN gate. On lockout the intent fails and the
// fallback route becomes available from the authorizer.
func (f *Flow) SubmitPin(sess *session.Session, in *Intent, pin string) (State, error) {
	if err := f.live(sess, in); err != nil {
		return in.auth.State(), err
	}
	state, err := in.auth.SubmitPin(sess.Context(), pin)
	return f.afterPin(in, state, err)
}

// Confirm executes the transfer. If the intent is not yet authorized, pin
// first goes through the PIN gate. Retries after a recoverable error reuse
// the same key; confirming an already confirmed intent returns the stored
// result without calling the bank.
func (f *Flow) Confirm(sess *session.Session, in *Intent, pin string, memo Memo) (model.TransferResult, error) {
	if err := f.live(sess, in); err != nil {
		return model.TransferResult{}, err
	}

	in.mu.Lock()
	switch {
	case in.status == model.TransferConfirmed:
		res := *in.result
		in.mu.Unlock()
		return res, nil
	case in.status.Terminal():
		st := in.status
		in.mu.Unlock()
		return model.TransferResult{}, xerrors.Fatal("confirm transfer", fmt.Sprintf("intent is %s", st), nil)
	case in.lookup == nil:
		in.mu.Unlock()
		return model.TransferResult{}, xerrors.ValidationError{Field: "receiver", Description: ErrNotLookedUp.Error()}
	case in.inFlight:
		in.mu.Unlock()
		return model.TransferResult{}, ErrInFlight
	}
	in.inFlight = true
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		in.inFlight = false
		in.mu.Unlock()
	}()

	if in.Status() == model.TransferInitiated {
		state, err := in.auth.SubmitPin(sess.Context(), pin)
		if _, err := f.afterPin(in, state, err); err != nil {
			return model.TransferResult{}, err
		}
	} else if err := checkPinFormat(pin, in.auth.pinLength); err != nil {
		return model.TransferResult{}, err
	}

	req := f.transferRequest(in, pin, memo)
	key := req.IdempotencyKey
	f.logger.Info("confirming transfer", zap.String("idempotency_key", key), zap.Int64("amount", req.Amount))

	res, err := f.transfers.Transfer(sess.Context(), req)
	req.Pin = ""
	if err != nil {
		f.logger.Warn("transfer call failed, retry with the same key",
			zap.String("idempotency_key", key), zap.Error(err))
		return model.TransferResult{}, f.callError(sess, in, "transfer", err)
	}

	switch res.Outcome {
	case model.OutcomeSuccess:
		in.mu.Lock()
		if err := in.advanceLocked(model.TransferConfirmed); err != nil {
			in.mu.Unlock()
			return model.TransferResult{}, err
		}
		in.result = &res
		in.mu.Unlock()
		f.logger.Info("transfer confirmed", zap.String("idempotency_key", key), zap.String("transfer_id", res.TransferID))
		f.record(in, "confirm", res.TransferID)
		return res, nil
	case model.OutcomeTerminated:
		_ = in.advance(model.TransferTerminated)
		f.logger.Warn("transfer terminated", zap.String("idempotency_key", key), zap.String("message", res.Message))
		f.record(in, "terminated", res.Message)
		return res, xerrors.Fatal("transfer", res.Message, nil)
	default:
		f.logger.Info("transfer refused", zap.String("idempotency_key", key), zap.String("message", res.Message))
		f.record(in, "refused", res.Message)
		return res, xerrors.Recoverable("transfer", res.Message, nil)
	}
}

// Discard abandons an intent: its key is forgotten and no further call is
// made with it. Unconfirmed intents are reclaimed by the bank on its own.
func (f *Flow) Discard(in *Intent) {
	key := in.Key()
	f.record(in, "discard", "")
	in.discard()
	f.logger.Info("transfer intent discarded", zap.String("idempotency_key", key.String()))
}

// ResetPin completes the fallback route: after out-of-band identity
// verification the member sets a new PIN. Locked intents stay locked; a new
// payment needs a new intent.
func (f *Flow) ResetPin(sess *session.Session, verification, newPin string) error {
	if err := sess.Err(); err != nil {
		return xerrors.Fatal("reset pin", "", err)
	}
	pinLength := f.opts.PinLength
	if pinLength <= 0 {
		pinLength = DefaultPinLength
	}
	if err := checkPinFormat(newPin, pinLength); err != nil {
		return err
	}
	if err := f.pins.ResetPin(sess.Context(), sess.Member().ID, verification, newPin); err != nil {
		return xerrors.Recoverable("reset pin", "", err)
	}
	return nil
}

// Accounts lists the member's accounts for choosing a withdrawal account.
func (f *Flow) Accounts(sess *session.Session) ([]model.BankAccount, error) {
	if err := sess.Err(); err != nil {
		return nil, xerrors.Fatal("list accounts", "", err)
	}
	accts, err := f.accounts.ListAccounts(sess.Context(), sess.Member().ID)
	if err != nil {
		return nil, xerrors.Recoverable("list accounts", "", err)
	}
	return accts, nil
}

func (f *Flow) verifierFor(memberID int64) Verifier {
	return VerifierFunc(func(ctx context.Context, pin string) (bool, error) {
		err := f.pins.ValidatePin(ctx, memberID, pin)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, ErrWrongPin):
			return false, nil
		default:
			return false, err
		}
	})
}

func (f *Flow) afterPin(in *Intent, state State, err error) (State, error) {
	switch state {
	case Authorized:
		if err == nil {
			if aerr := in.advance(model.TransferAuthorized); aerr != nil {
				return state, aerr
			}
			f.record(in, "authorized", "")
		}
	case LockedFallback:
		if in.Status() == model.TransferInitiated {
			_ = in.advance(model.TransferFailed)
			f.logger.Warn("transfer pin locked", zap.String("idempotency_key", in.Key().String()))
			f.record(in, "locked", FallbackRoute)
		}
	}
	return state, err
}

func (f *Flow) transferRequest(in *Intent, pin string, memo Memo) model.TransferRequest {
	in.mu.Lock()
	defer in.mu.Unlock()
	if memo.Receiver == "" {
		memo.Receiver = in.receiver.Holder
	}
	if memo.Withdrawal == "" {
		memo.Withdrawal = in.withdrawal.Holder
	}
	return model.TransferRequest{
		IdempotencyKey: in.key.String(),
		MemberID:       in.memberID,
		SettlementID:   in.settlementID,
		Withdrawal:     in.withdrawal,
		Receiver:       in.receiver,
		Amount:         in.amount,
		ReceiverMemo:   memo.Receiver,
		WithdrawalMemo: memo.Withdrawal,
		Pin:            pin,
	}
}

// live rejects calls on discarded intents and discards the intent when the
// session has ended.
func (f *Flow) live(sess *session.Session, in *Intent) error {
	if in.Discarded() {
		return xerrors.Fatal("transfer", "", ErrDiscarded)
	}
	if err := sess.Err(); err != nil {
		f.Discard(in)
		return xerrors.Fatal("transfer", "session ended", err)
	}
	return nil
}

// callError classifies a failed service call. A call cut short by the end of
// the session is fatal and abandons the intent; anything else may be retried.
func (f *Flow) callError(sess *session.Session, in *Intent, op string, err error) error {
	if serr := sess.Err(); serr != nil {
		f.Discard(in)
		return xerrors.Fatal(op, "session ended", serr)
	}
	return xerrors.Recoverable(op, "", err)
}

func (f *Flow) record(in *Intent, action, detail string) {
	if f.events == nil {
		return
	}
	in.mu.Lock()
	ev := Event{
		Time:     f.now().UTC(),
		MemberID: in.memberID,
		Key:      in.key.String(),
		Action:   action,
		Status:   in.status,
		Detail:   detail,
	}
	in.mu.Unlock()
	if err := f.events.Record(ev); err != nil {
		f.logger.Warn("recording transfer event", zap.String("action", action), zap.Error(err))
	}
}

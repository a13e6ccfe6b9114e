package bank

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/transfer"
	"github.com/cleared-dev/splitpay/internal/xerrors"
)

const testPin = "246810"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(t *testing.T, opts Options) (*Store, *clock) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	s, err := Open(filepath.Join(t.TempDir(), "bank.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.now = c.now

	_, err = s.Seed(DefaultAccounts(""))
	require.NoError(t, err)
	require.NoError(t, s.SetPin(context.Background(), 1, testPin))
	return s, c
}

func transferReq(key string, amount int64) model.TransferRequest {
	return model.TransferRequest{
		IdempotencyKey: key,
		MemberID:       1,
		Withdrawal:     model.AccountRef{AccountID: 1, Number: "110-100-000001", Holder: "Leader", BankCode: "088"},
		Receiver:       model.ReceiverRef{BankCode: "004", Number: "220-200-000003"},
		Amount:         amount,
		Pin:            testPin,
	}
}

func lookup(t *testing.T, s *Store, key string) {
	t.Helper()
	holder, err := s.ResolveReceiver(context.Background(), key, "004", "220-200-000003")
	require.NoError(t, err)
	assert.Equal(t, "Jisoo", holder)
}

func balance(t *testing.T, s *Store, id int64) int64 {
	t.Helper()
	acct, err := s.Account(id)
	require.NoError(t, err)
	return acct.Balance
}

func TestSeedIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	n, err := s.Seed(DefaultAccounts(""))
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := s.AllAccounts()
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, int64(1), all[0].ID)
}

func TestListAccounts(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	accts, err := s.ListAccounts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, "110-100-000001", accts[0].Number)
}

func TestResolveReceiver_NotFound(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	_, err := s.ResolveReceiver(context.Background(), "k", "004", "nope")
	assert.ErrorIs(t, err, transfer.ErrReceiverNotFound)
}

func TestTransfer_ExecutesOncePerKey(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	lookup(t, s, "key-1")

	first, err := s.Transfer(ctx, transferReq("key-1", 10000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, first.Outcome)
	assert.Len(t, first.TransferID, 26, "ulid")
	assert.Equal(t, "Jisoo", first.Receiver.Holder)

	second, err := s.Transfer(ctx, transferReq("key-1", 10000))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, int64(490000), balance(t, s, 1))
	assert.Equal(t, int64(160000), balance(t, s, 3))
}

func TestTransfer_DistinctKeysDistinctTransfers(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	lookup(t, s, "key-a")
	lookup(t, s, "key-b")

	a, err := s.Transfer(ctx, transferReq("key-a", 1000))
	require.NoError(t, err)
	b, err := s.Transfer(ctx, transferReq("key-b", 1000))
	require.NoError(t, err)
	assert.NotEqual(t, a.TransferID, b.TransferID)
	assert.Equal(t, int64(498000), balance(t, s, 1))
}

func TestTransfer_ReplayWithDifferentPayloadTerminates(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	lookup(t, s, "key-1")
	_, err := s.Transfer(ctx, transferReq("key-1", 1000))
	require.NoError(t, err)

	res, err := s.Transfer(ctx, transferReq("key-1", 2000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
	assert.Equal(t, int64(499000), balance(t, s, 1))
}

func TestTransfer_WithoutLookupTerminates(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	res, err := s.Transfer(context.Background(), transferReq("never-looked-up", 1000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
}

func TestTransfer_ExpiredReservationTerminates(t *testing.T) {
	s, c := newTestStore(t, Options{ReservationTTL: time.Minute})
	lookup(t, s, "key-1")
	c.t = c.t.Add(2 * time.Minute)

	res, err := s.Transfer(context.Background(), transferReq("key-1", 1000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
	assert.Equal(t, int64(500000), balance(t, s, 1))
}

func TestTransfer_ReceiverMismatchTerminates(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	lookup(t, s, "key-1")
	req := transferReq("key-1", 1000)
	req.Receiver = model.ReceiverRef{BankCode: "020", Number: "330-300-000004"}

	res, err := s.Transfer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
}

func TestTransfer_WrongPinIsRetryableFailure(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	lookup(t, s, "key-1")

	req := transferReq("key-1", 1000)
	req.Pin = "000000"
	res, err := s.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailure, res.Outcome)

	_, stored, err := s.StoredTransfer("key-1")
	require.NoError(t, err)
	assert.False(t, stored, "failures are not stored")

	res, err = s.Transfer(ctx, transferReq("key-1", 1000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	lookup(t, s, "key-1")

	res, err := s.Transfer(context.Background(), transferReq("key-1", 900000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailure, res.Outcome)
	assert.Equal(t, int64(500000), balance(t, s, 1))
}

func TestPin_LocksAfterFiveMisses(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, s.ValidatePin(ctx, 1, "111111"), transfer.ErrWrongPin)
	}
	assert.ErrorIs(t, s.ValidatePin(ctx, 1, "111111"), transfer.ErrPinLocked)
	assert.ErrorIs(t, s.ValidatePin(ctx, 1, testPin), transfer.ErrPinLocked)

	assert.ErrorIs(t, s.ResetPin(ctx, 1, "", "135790"), ErrVerificationRequired)
	require.NoError(t, s.ResetPin(ctx, 1, "sms-ok", "135790"))
	assert.NoError(t, s.ValidatePin(ctx, 1, "135790"))
}

func TestPin_SuccessClearsFailures(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = s.ValidatePin(ctx, 1, "111111")
	}
	require.NoError(t, s.ValidatePin(ctx, 1, testPin))
	assert.ErrorIs(t, s.ValidatePin(ctx, 1, "111111"), transfer.ErrWrongPin)
}

func TestPin_ChangeAndNotSet(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, s.ValidatePin(ctx, 2, testPin), ErrPinNotSet)
	assert.ErrorIs(t, s.ChangePin(ctx, 1, testPin, "12"), ErrInvalidPin)
	assert.ErrorIs(t, s.ChangePin(ctx, 1, "000000", "135790"), transfer.ErrWrongPin)
	require.NoError(t, s.ChangePin(ctx, 1, testPin, "135790"))
	assert.NoError(t, s.ValidatePin(ctx, 1, "135790"))
}

func TestCreateSettlement(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	req := model.SettlementRequest{
		Mode:                model.ModeEvenSplit,
		LeaderID:            1,
		SettlementAccountID: 1,
		TotalAmount:         1000,
		ParticipantIDs:      []int64{1, 2, 3},
		MemberAmounts: []model.MemberAmount{
			{MemberID: 1, Amount: 334},
			{MemberID: 2, Amount: 333},
			{MemberID: 3, Amount: 333},
		},
	}
	id, err := s.CreateSettlement(context.Background(), req)
	require.NoError(t, err)

	st, err := s.Settlement(id)
	require.NoError(t, err)
	assert.Equal(t, int64(333), st.Shares[2])

	assert.Equal(t, int64(1), st.SettlementAccountID)
	assert.Equal(t, model.SharePaid, st.MemberStatus[1], "the leader's own share")
	assert.Equal(t, model.SharePending, st.MemberStatus[2])
	assert.False(t, st.Completed())

	req.MemberAmounts[0].Amount = 134
	_, err = s.CreateSettlement(context.Background(), req)
	assert.True(t, xerrors.IsValidation(err))

	req.MemberAmounts[0].Amount = 334
	req.SettlementAccountID = 3
	_, err = s.CreateSettlement(context.Background(), req)
	assert.True(t, xerrors.IsValidation(err), "account of another member")

	req.SettlementAccountID = 99
	_, err = s.CreateSettlement(context.Background(), req)
	assert.True(t, xerrors.IsValidation(err))
}

func createSettlement(t *testing.T, s *Store, amounts ...model.MemberAmount) int64 {
	t.Helper()
	req := model.SettlementRequest{
		Mode:                model.ModeEvenSplit,
		LeaderID:            1,
		SettlementAccountID: 1,
	}
	for _, ma := range amounts {
		req.TotalAmount += ma.Amount
		req.ParticipantIDs = append(req.ParticipantIDs, ma.MemberID)
		req.MemberAmounts = append(req.MemberAmounts, ma)
	}
	id, err := s.CreateSettlement(context.Background(), req)
	require.NoError(t, err)
	return id
}

// sharePayment pays into the leader's first account from the payer's only
// account.
func sharePayment(t *testing.T, s *Store, key string, payer, settlementID, amount int64) model.TransferRequest {
	t.Helper()
	return sharePaymentTo(t, s, key, "110-100-000001", payer, settlementID, amount)
}

func sharePaymentTo(t *testing.T, s *Store, key, number string, payer, settlementID, amount int64) model.TransferRequest {
	t.Helper()
	accts, err := s.ListAccounts(context.Background(), payer)
	require.NoError(t, err)
	require.NotEmpty(t, accts)
	_, err = s.ResolveReceiver(context.Background(), key, "088", number)
	require.NoError(t, err)
	return model.TransferRequest{
		IdempotencyKey: key,
		MemberID:       payer,
		SettlementID:   &settlementID,
		Withdrawal:     accts[0].Ref(),
		Receiver:       model.ReceiverRef{BankCode: "088", Number: number},
		Amount:         amount,
		Pin:            testPin,
	}
}

func TestTransfer_PaysSettlementShares(t *testing.T) {
	s, c := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.SetPin(ctx, 2, testPin))
	require.NoError(t, s.SetPin(ctx, 3, testPin))
	sid := createSettlement(t, s,
		model.MemberAmount{MemberID: 1, Amount: 334},
		model.MemberAmount{MemberID: 2, Amount: 333},
		model.MemberAmount{MemberID: 3, Amount: 333})

	res, err := s.Transfer(ctx, sharePayment(t, s, "m2-short", 2, sid, 300))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
	assert.Contains(t, res.Message, "does not match")
	assert.Equal(t, int64(150000), balance(t, s, 3))

	c.t = c.t.Add(time.Hour)
	req := sharePayment(t, s, "m2", 2, sid, 333)
	res, err = s.Transfer(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.OutcomeSuccess, res.Outcome, res.Message)
	assert.Equal(t, int64(150000-333), balance(t, s, 3))
	assert.Equal(t, int64(500000+333), balance(t, s, 1))

	st, err := s.Settlement(sid)
	require.NoError(t, err)
	assert.Equal(t, model.SharePaid, st.MemberStatus[2])
	assert.True(t, st.PaidAt[2].Equal(c.t))
	assert.Equal(t, model.SharePending, st.MemberStatus[3])
	assert.False(t, st.Completed())

	// A replay of the paying key is the stored success, not a second payment.
	again, err := s.Transfer(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, again.Outcome)
	assert.Equal(t, res.TransferID, again.TransferID)

	res, err = s.Transfer(ctx, sharePayment(t, s, "m2-twice", 2, sid, 333))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
	assert.Contains(t, res.Message, "already paid")
	assert.Equal(t, int64(150000-333), balance(t, s, 3))

	c.t = c.t.Add(time.Hour)
	res, err = s.Transfer(ctx, sharePayment(t, s, "m3", 3, sid, 333))
	require.NoError(t, err)
	require.Equal(t, model.OutcomeSuccess, res.Outcome, res.Message)

	st, err = s.Settlement(sid)
	require.NoError(t, err)
	assert.True(t, st.Completed())
	assert.True(t, st.CompletedAt.Equal(c.t))
}

func TestTransfer_SettlementPaymentRefusals(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.SetPin(ctx, 3, testPin))
	sid := createSettlement(t, s,
		model.MemberAmount{MemberID: 1, Amount: 500},
		model.MemberAmount{MemberID: 2, Amount: 500})

	res, err := s.Transfer(ctx, sharePayment(t, s, "no-share", 3, sid, 500))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
	assert.Contains(t, res.Message, "no share")

	res, err = s.Transfer(ctx, sharePayment(t, s, "unknown", 3, 42, 500))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
	assert.Contains(t, res.Message, "settlement 42 not found")

	require.NoError(t, s.SetPin(ctx, 2, testPin))
	res, err = s.Transfer(ctx, sharePaymentTo(t, s, "wrong-account", "110-100-000002", 2, sid, 500))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTerminated, res.Outcome)
	assert.Contains(t, res.Message, "not the account")
	assert.Equal(t, int64(20000), balance(t, s, 2))
}

func TestTransfer_SettlementShareUnpaidOnInsufficientFunds(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.SetPin(ctx, 3, testPin))
	sid := createSettlement(t, s,
		model.MemberAmount{MemberID: 1, Amount: 10000},
		model.MemberAmount{MemberID: 3, Amount: 90000})

	res, err := s.Transfer(ctx, sharePayment(t, s, "m3", 3, sid, 90000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailure, res.Outcome)

	st, err := s.Settlement(sid)
	require.NoError(t, err)
	assert.Equal(t, model.SharePending, st.MemberStatus[3])
	assert.Equal(t, int64(80000), balance(t, s, 4))
}

func TestSettlement_LeaderOnlyCompletesAtCreation(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	sid := createSettlement(t, s, model.MemberAmount{MemberID: 1, Amount: 700})

	st, err := s.Settlement(sid)
	require.NoError(t, err)
	assert.True(t, st.Completed())
}

func TestBoltReservations_Sweep(t *testing.T) {
	s, c := newTestStore(t, Options{ReservationTTL: time.Minute})
	lookup(t, s, "old")
	c.t = c.t.Add(30 * time.Second)
	lookup(t, s, "new")
	c.t = c.t.Add(45 * time.Second)

	n, err := s.SweepReservations()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err := s.reservations.Lookup(context.Background(), "new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisReservations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	res := NewRedisReservations(client, "")
	ctx := context.Background()

	require.NoError(t, res.Reserve(ctx, "k1", 3, time.Minute))
	require.NoError(t, res.Reserve(ctx, "k1", 4, time.Minute), "second reserve keeps the first")
	id, ok, err := res.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
	assert.True(t, mr.Exists("splitpay:reservation:k1"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = res.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "expired")

	require.NoError(t, res.Reserve(ctx, "k2", 3, time.Minute))
	require.NoError(t, res.Release(ctx, "k2"))
	_, ok, err = res.Lookup(ctx, "k2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransfer_WithRedisReservations(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s, _ := newTestStore(t, Options{Reservations: NewRedisReservations(client, "test")})
	lookup(t, s, "key-1")
	assert.True(t, mr.Exists("test:key-1"))

	n, err := s.SweepReservations()
	require.NoError(t, err)
	assert.Zero(t, n, "redis expires keys itself")
	assert.True(t, mr.Exists("test:key-1"))

	res, err := s.Transfer(context.Background(), transferReq("key-1", 1000))
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, res.Outcome)
	assert.False(t, mr.Exists("test:key-1"), "released after execution")
}

func TestAccountsCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAccounts(&buf, DefaultAccounts("")))

	got, err := ReadAccounts(&buf)
	require.NoError(t, err)
	assert.Equal(t, DefaultAccounts(""), got)
}

func TestReadAccounts_BadRow(t *testing.T) {
	in := "account_id,member_id,bank_code,bank_name,account_num,account_holder,balance\n" +
		"x,1,088,Taco,1,Leader,0\n"
	_, err := ReadAccounts(bytes.NewBufferString(in))
	assert.ErrorContains(t, err, "row 2")
}

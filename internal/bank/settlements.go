package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"go.uber.org/zap"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/settlement"
	"github.com/cleared-dev/splitpay/internal/xerrors"
)

// CreateSettlement validates and stores a settlement request and returns the
// new settlement id. Every share starts pending except the leader's own,
// which the leader has already paid.
func (s *Store) CreateSettlement(_ context.Context, req model.SettlementRequest) (int64, error) {
	if errs := settlement.Validate(req); len(errs) > 0 {
		return 0, errs
	}

	st := model.Settlement{
		Mode:                req.Mode,
		TotalAmount:         req.TotalAmount,
		LeaderID:            req.LeaderID,
		GroupID:             req.GroupID,
		SettlementAccountID: req.SettlementAccountID,
		Shares:              make(map[int64]int64, len(req.MemberAmounts)),
		MemberStatus:        make(map[int64]model.ShareStatus, len(req.MemberAmounts)),
		ReceiptID:           req.ReceiptID,
		ItemMembers:         req.ItemMembers,
	}
	for _, ma := range req.MemberAmounts {
		st.Shares[ma.MemberID] = ma.Amount
		st.MemberStatus[ma.MemberID] = model.SharePending
	}
	if _, ok := st.Shares[st.LeaderID]; ok {
		st.MarkPaid(st.LeaderID, s.now().UTC())
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		var acct model.BankAccount
		if err := getJSON(tx.Bucket(bucketAccounts), itob(req.SettlementAccountID), &acct); err != nil {
			return xerrors.ValidationError{
				Field:       "settlementAccountId",
				Description: fmt.Sprintf("account %d does not exist", req.SettlementAccountID),
			}
		}
		if acct.MemberID != req.LeaderID {
			return xerrors.ValidationError{
				Field:       "settlementAccountId",
				Description: fmt.Sprintf("account %d does not belong to leader %d", acct.ID, req.LeaderID),
			}
		}

		b := tx.Bucket(bucketSettlements)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		st.ID = int64(seq)
		return putJSON(b, itob(st.ID), st)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("settlement stored", zap.Int64("settlement_id", st.ID), zap.Int64("total", st.TotalAmount))
	return st.ID, nil
}

// settlementRefusal aborts a transfer transaction whose settlement payment
// cannot be accepted.
type settlementRefusal struct{ msg string }

func (r settlementRefusal) Error() string { return r.msg }

// payShare checks that req pays memberID's whole pending share of the
// settlement into its settlement account, and marks the share paid. It runs
// inside the transfer transaction.
func payShare(tx *bolt.Tx, req model.TransferRequest, receiverID int64, now time.Time) error {
	id := *req.SettlementID
	b := tx.Bucket(bucketSettlements)
	var st model.Settlement
	if err := getJSON(b, itob(id), &st); err != nil {
		if errors.Is(err, errNoValue) {
			return settlementRefusal{fmt.Sprintf("settlement %d not found", id)}
		}
		return err
	}

	share, ok := st.Shares[req.MemberID]
	switch {
	case !ok:
		return settlementRefusal{fmt.Sprintf("member %d has no share in settlement %d", req.MemberID, id)}
	case st.MemberStatus[req.MemberID] == model.SharePaid:
		return settlementRefusal{fmt.Sprintf("share of member %d in settlement %d is already paid", req.MemberID, id)}
	case req.Amount != share:
		return settlementRefusal{fmt.Sprintf("amount %d does not match the share of %d", req.Amount, share)}
	case receiverID != st.SettlementAccountID:
		return settlementRefusal{fmt.Sprintf("receiver is not the account of settlement %d", id)}
	}

	st.MarkPaid(req.MemberID, now)
	return putJSON(b, itob(id), st)
}

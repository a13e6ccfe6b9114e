package bank

import (
	"context"
	"errors"
	"fmt"

	bolt "github.com/boltdb/bolt"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/transfer"
)

// transferRecord is what the transfers bucket stores per idempotency key.
type transferRecord struct {
	Fingerprint fingerprint          `json:"fingerprint"`
	Result      model.TransferResult `json:"result"`
}

// fingerprint is the part of a request a replay must repeat exactly.
type fingerprint struct {
	MemberID     int64  `json:"memberId"`
	Withdrawal   int64  `json:"withdrawalAccountId"`
	BankCode     string `json:"receiverBankCode"`
	Number       string `json:"receiverAccountNum"`
	Amount       int64  `json:"amount"`
	SettlementID *int64 `json:"settlementId,omitempty"`
}

func (f fingerprint) equal(o fingerprint) bool {
	if (f.SettlementID == nil) != (o.SettlementID == nil) {
		return false
	}
	if f.SettlementID != nil && *f.SettlementID != *o.SettlementID {
		return false
	}
	return f.MemberID == o.MemberID && f.Withdrawal == o.Withdrawal &&
		f.BankCode == o.BankCode && f.Number == o.Number && f.Amount == o.Amount
}

func fingerprintOf(req model.TransferRequest) fingerprint {
	return fingerprint{
		MemberID:     req.MemberID,
		Withdrawal:   req.Withdrawal.AccountID,
		BankCode:     req.Receiver.BankCode,
		Number:       req.Receiver.Number,
		Amount:       req.Amount,
		SettlementID: req.SettlementID,
	}
}

// errInsufficientFunds aborts the transfer transaction.
var errInsufficientFunds = errors.New("insufficient funds")

// Transfer executes req at most once per idempotency key.
//
// A key seen before returns its stored result, or TERMINATED when the
// payload differs. A key without a live lookup reservation is TERMINATED. A
// wrong PIN or insufficient funds is a FAILURE and nothing is stored, so the
// same key may be retried. A settlement payment must pay the member's whole
// pending share into the settlement account; the share is marked paid in the
// same transaction, and any other settlement payment is TERMINATED.
func (s *Store) Transfer(ctx context.Context, req model.TransferRequest) (model.TransferResult, error) {
	key := req.IdempotencyKey
	if key == "" {
		return model.TransferResult{}, errors.New("transfer: idempotency key is required")
	}
	fp := fingerprintOf(req)

	if res, ok, err := s.replay(key, fp); err != nil || ok {
		return res, err
	}

	receiverID, ok, err := s.reservations.Lookup(ctx, key)
	if err != nil {
		return model.TransferResult{}, err
	}
	if !ok {
		return s.refuse(req, model.OutcomeTerminated, "no receiver lookup for this key or it has expired"), nil
	}
	receiver, err := s.Account(receiverID)
	if err != nil {
		return model.TransferResult{}, err
	}
	if receiver.BankCode != req.Receiver.BankCode || receiver.Number != req.Receiver.Number {
		return s.refuse(req, model.OutcomeTerminated, "receiver differs from the looked up account"), nil
	}

	switch err := s.ValidatePin(ctx, req.MemberID, req.Pin); {
	case errors.Is(err, transfer.ErrWrongPin):
		return s.refuse(req, model.OutcomeFailure, "wrong transfer pin"), nil
	case errors.Is(err, transfer.ErrPinLocked), errors.Is(err, ErrPinNotSet):
		return s.refuse(req, model.OutcomeTerminated, err.Error()), nil
	case err != nil:
		return model.TransferResult{}, err
	}

	var result model.TransferResult
	err = s.db.Update(func(tx *bolt.Tx) error {
		transfers := tx.Bucket(bucketTransfers)
		var prior transferRecord
		if err := getJSON(transfers, []byte(key), &prior); err == nil {
			// A concurrent call with the same key won the race.
			result = prior.Result
			return nil
		}

		accounts := tx.Bucket(bucketAccounts)
		var from, to model.BankAccount
		if err := getJSON(accounts, itob(req.Withdrawal.AccountID), &from); err != nil {
			return fmt.Errorf("withdrawal account %d: %w", req.Withdrawal.AccountID, ErrAccountNotFound)
		}
		if from.MemberID != req.MemberID {
			return fmt.Errorf("account %d does not belong to member %d", from.ID, req.MemberID)
		}
		if err := getJSON(accounts, itob(receiverID), &to); err != nil {
			return fmt.Errorf("receiver account %d: %w", receiverID, ErrAccountNotFound)
		}
		now := s.now().UTC()
		if req.SettlementID != nil {
			if err := payShare(tx, req, receiverID, now); err != nil {
				return err
			}
		}
		if from.Balance < req.Amount {
			return errInsufficientFunds
		}
		from.Balance -= req.Amount
		to.Balance += req.Amount
		if err := putJSON(accounts, itob(from.ID), from); err != nil {
			return err
		}
		if err := putJSON(accounts, itob(to.ID), to); err != nil {
			return err
		}

		tid, err := ulid.New(ulid.Timestamp(now), s.entropy)
		if err != nil {
			return fmt.Errorf("minting transfer id: %w", err)
		}
		result = model.TransferResult{
			IdempotencyKey: key,
			TransferID:     tid.String(),
			Outcome:        model.OutcomeSuccess,
			ExecutedAt:     now,
			MemberID:       req.MemberID,
			Withdrawal:     from.Ref(),
			Receiver:       model.ReceiverRef{BankCode: to.BankCode, Number: to.Number, Holder: to.Holder},
			Amount:         req.Amount,
		}
		return putJSON(transfers, []byte(key), transferRecord{Fingerprint: fp, Result: result})
	})
	if errors.Is(err, errInsufficientFunds) {
		return s.refuse(req, model.OutcomeFailure, err.Error()), nil
	}
	var refusal settlementRefusal
	if errors.As(err, &refusal) {
		return s.refuse(req, model.OutcomeTerminated, refusal.msg), nil
	}
	if err != nil {
		return model.TransferResult{}, fmt.Errorf("executing transfer %s: %w", key, err)
	}

	if err := s.reservations.Release(ctx, key); err != nil {
		s.logger.Warn("releasing reservation", zap.String("idempotency_key", key), zap.Error(err))
	}
	s.logger.Info("transfer executed",
		zap.String("idempotency_key", key),
		zap.String("transfer_id", result.TransferID),
		zap.Int64("amount", result.Amount))
	return result, nil
}

// StoredTransfer returns the stored result for key, if any.
func (s *Store) StoredTransfer(key string) (model.TransferResult, bool, error) {
	var rec transferRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketTransfers), []byte(key), &rec)
	})
	if errors.Is(err, errNoValue) {
		return model.TransferResult{}, false, nil
	}
	if err != nil {
		return model.TransferResult{}, false, err
	}
	return rec.Result, true, nil
}

func (s *Store) replay(key string, fp fingerprint) (model.TransferResult, bool, error) {
	var rec transferRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketTransfers), []byte(key), &rec)
	})
	if errors.Is(err, errNoValue) {
		return model.TransferResult{}, false, nil
	}
	if err != nil {
		return model.TransferResult{}, false, fmt.Errorf("reading transfer %s: %w", key, err)
	}
	if !rec.Fingerprint.equal(fp) {
		s.logger.Warn("idempotency key reused with a different payload", zap.String("idempotency_key", key))
		return model.TransferResult{
			IdempotencyKey: key,
			Outcome:        model.OutcomeTerminated,
			Message:        "idempotency key reused with a different payload",
		}, true, nil
	}
	s.logger.Info("transfer replayed", zap.String("idempotency_key", key))
	return rec.Result, true, nil
}

func (s *Store) refuse(req model.TransferRequest, outcome model.Outcome, msg string) model.TransferResult {
	s.logger.Info("transfer refused",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.String("outcome", string(outcome)),
		zap.String("reason", msg))
	return model.TransferResult{
		IdempotencyKey: req.IdempotencyKey,
		Outcome:        outcome,
		Message:        msg,
		MemberID:       req.MemberID,
		Withdrawal:     req.Withdrawal,
		Receiver:       req.Receiver,
		Amount:         req.Amount,
	}
}

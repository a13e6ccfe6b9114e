package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	bolt "github.com/boltdb/bolt"
	"go.uber.org/zap"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/transfer"
)

// ListAccounts returns the accounts owned by memberID.
func (s *Store) ListAccounts(_ context.Context, memberID int64) ([]model.BankAccount, error) {
	all, err := s.AllAccounts()
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	var out []model.BankAccount
	for _, a := range all {
		if a.MemberID == memberID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ResolveReceiver returns the holder of the account at bankCode/number and
// reserves key for that receiver. Repeating the lookup with the same key
// keeps the first reservation.
func (s *Store) ResolveReceiver(ctx context.Context, key, bankCode, number string) (string, error) {
	acct, err := s.findAccount(bankCode, number)
	if err != nil {
		return "", err
	}
	if err := s.reservations.Reserve(ctx, key, acct.ID, s.ttl); err != nil {
		return "", err
	}
	s.logger.Debug("receiver resolved",
		zap.String("idempotency_key", key),
		zap.Int64("receiver_account", acct.ID))
	return acct.Holder, nil
}

// Balance returns the balance of accountID.
func (s *Store) Balance(_ context.Context, key string, accountID int64) (int64, error) {
	acct, err := s.Account(accountID)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("balance read", zap.String("idempotency_key", key), zap.Int64("account_id", accountID))
	return acct.Balance, nil
}

var errFound = errors.New("found")

func (s *Store) findAccount(bankCode, number string) (model.BankAccount, error) {
	var acct model.BankAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			var a model.BankAccount
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.BankCode == bankCode && a.Number == number {
				acct = a
				return errFound
			}
			return nil
		})
	})
	switch {
	case errors.Is(err, errFound):
		return acct, nil
	case err != nil:
		return model.BankAccount{}, fmt.Errorf("searching accounts: %w", err)
	default:
		return model.BankAccount{}, fmt.Errorf("%s %s: %w", bankCode, number, transfer.ErrReceiverNotFound)
	}
}

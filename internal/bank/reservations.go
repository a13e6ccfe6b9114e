package bank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Reservations remember which receiver a lookup resolved for an idempotency
// key. A transfer is only accepted while its key is reserved; unconfirmed
// reservations expire on their own.
type Reservations interface {
	// Reserve records receiverID for key unless key is already reserved.
	Reserve(ctx context.Context, key string, receiverID int64, ttl time.Duration) error
	// Lookup returns the reserved receiver for key.
	Lookup(ctx context.Context, key string) (receiverID int64, ok bool, err error)
	// Release forgets key. Releasing an unknown key is not an error.
	Release(ctx context.Context, key string) error
}

// BoltReservations keeps reservations in the bank database with an expiry
// timestamp that is checked on lookup.
type BoltReservations struct {
	db  *bolt.DB
	now func() time.Time
}

type reservation struct {
	ReceiverID int64     `json:"receiverAccountId"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (r *BoltReservations) Reserve(_ context.Context, key string, receiverID int64, ttl time.Duration) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		var existing reservation
		if err := getJSON(b, []byte(key), &existing); err == nil && r.now().Before(existing.ExpiresAt) {
			return nil
		}
		return putJSON(b, []byte(key), reservation{ReceiverID: receiverID, ExpiresAt: r.now().Add(ttl)})
	})
}

func (r *BoltReservations) Lookup(_ context.Context, key string) (int64, bool, error) {
	var res reservation
	err := r.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketReservations), []byte(key), &res)
	})
	if errors.Is(err, errNoValue) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading reservation: %w", err)
	}
	if !r.now().Before(res.ExpiresAt) {
		return 0, false, nil
	}
	return res.ReceiverID, true, nil
}

func (r *BoltReservations) Release(_ context.Context, key string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReservations).Delete([]byte(key))
	})
}

// Sweep deletes expired reservations and returns how many were removed.
func (r *BoltReservations) Sweep() (int, error) {
	n := 0
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReservations)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var res reservation
			if err := json.Unmarshal(v, &res); err != nil {
				return err
			}
			if !r.now().Before(res.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

// SweepReservations deletes expired reservations from the bank database.
// Redis expires its keys itself, so there is nothing to sweep there.
func (s *Store) SweepReservations() (int, error) {
	br, ok := s.reservations.(*BoltReservations)
	if !ok {
		return 0, nil
	}
	n, err := br.Sweep()
	if err != nil {
		return 0, fmt.Errorf("sweeping reservations: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired reservations swept", zap.Int("count", n))
	}
	return n, nil
}

// RedisReservations keeps reservations in Redis and lets key expiry do the
// cleanup.
type RedisReservations struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisReservations creates a registry storing keys under prefix.
func NewRedisReservations(client redis.UniversalClient, prefix string) *RedisReservations {
	if prefix == "" {
		prefix = "splitpay:reservation"
	}
	return &RedisReservations{client: client, prefix: prefix}
}

func (r *RedisReservations) Reserve(ctx context.Context, key string, receiverID int64, ttl time.Duration) error {
	if err := r.client.SetNX(ctx, r.name(key), receiverID, ttl).Err(); err != nil {
		return fmt.Errorf("reserving %s: %w", key, err)
	}
	return nil
}

func (r *RedisReservations) Lookup(ctx context.Context, key string) (int64, bool, error) {
	val, err := r.client.Get(ctx, r.name(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading reservation %s: %w", key, err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("reservation %s: %w", key, err)
	}
	return id, true, nil
}

func (r *RedisReservations) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.name(key)).Err()
}

func (r *RedisReservations) name(key string) string {
	return r.prefix + ":" + key
}

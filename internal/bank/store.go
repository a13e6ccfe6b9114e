// Package bank is a local reference bank backed by BoltDB. It implements the
// account, PIN, transfer and settlement services consumed by the transfer and
// settlement flows so the CLI can run end to end.
//
// Transfers are idempotent per key: the first call with a key executes and
// stores its result, every later call with the same key returns the stored
// result without moving money again.
package bank

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cleared-dev/splitpay/internal/model"
)

var (
	bucketAccounts     = []byte("accounts")
	bucketPins         = []byte("pins")
	bucketTransfers    = []byte("transfers")
	bucketSettlements  = []byte("settlements")
	bucketReservations = []byte("reservations")
)

// DefaultReservationTTL is how long a receiver lookup stays confirmable.
const DefaultReservationTTL = 10 * time.Minute

var (
	// ErrAccountNotFound is returned when an account id does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrSettlementNotFound is returned when a settlement id does not exist.
	ErrSettlementNotFound = errors.New("settlement not found")
)

// Options configure a Store.
type Options struct {
	// ReservationTTL bounds the time between lookup and confirm.
	ReservationTTL time.Duration
	// Reservations overrides the bolt-backed reservation registry.
	Reservations Reservations
	// MaxPinFailures locks a member's PIN after this many consecutive misses.
	MaxPinFailures int
	Logger         *zap.Logger
}

// Store wraps a BoltDB database.
type Store struct {
	db             *bolt.DB
	reservations   Reservations
	ttl            time.Duration
	maxPinFailures int
	logger         *zap.Logger
	now            func() time.Time
	entropy        io.Reader
}

// Open opens (or creates) the bank database at path and ensures every bucket
// exists.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bank db %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketPins, bucketTransfers, bucketSettlements, bucketReservations} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:             db,
		ttl:            opts.ReservationTTL,
		maxPinFailures: opts.MaxPinFailures,
		logger:         opts.Logger,
		now:            time.Now,
		entropy:        ulid.Monotonic(rand.Reader, 0),
	}
	if s.ttl <= 0 {
		s.ttl = DefaultReservationTTL
	}
	if s.maxPinFailures <= 0 {
		s.maxPinFailures = 5
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.reservations = opts.Reservations
	if s.reservations == nil {
		s.reservations = &BoltReservations{db: db, now: func() time.Time { return s.now() }}
	}
	return s, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount stores acct unless an account with the same id exists.
// Returns (existing, false) when it already existed.
func (s *Store) CreateAccount(acct model.BankAccount) (model.BankAccount, bool, error) {
	var result model.BankAccount
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		if acct.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			acct.ID = int64(seq)
		}
		if existing := b.Get(itob(acct.ID)); existing != nil {
			return json.Unmarshal(existing, &result)
		}
		result = acct
		created = true
		return putJSON(b, itob(acct.ID), acct)
	})
	if err != nil {
		return model.BankAccount{}, false, fmt.Errorf("creating account %d: %w", acct.ID, err)
	}
	return result, created, nil
}

// Seed creates every account that does not exist yet and returns how many
// were created.
func (s *Store) Seed(accts []model.BankAccount) (int, error) {
	n := 0
	for _, a := range accts {
		_, created, err := s.CreateAccount(a)
		if err != nil {
			return n, err
		}
		if created {
			n++
		}
	}
	return n, nil
}

// Account returns one account by id.
func (s *Store) Account(id int64) (model.BankAccount, error) {
	var acct model.BankAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketAccounts), itob(id), &acct)
	})
	if errors.Is(err, errNoValue) {
		return model.BankAccount{}, fmt.Errorf("account %d: %w", id, ErrAccountNotFound)
	}
	return acct, err
}

// AllAccounts returns every account ordered by id.
func (s *Store) AllAccounts() ([]model.BankAccount, error) {
	var out []model.BankAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			var a model.BankAccount
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

// Settlement returns a stored settlement.
func (s *Store) Settlement(id int64) (model.Settlement, error) {
	var st model.Settlement
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketSettlements), itob(id), &st)
	})
	if errors.Is(err, errNoValue) {
		return model.Settlement{}, fmt.Errorf("settlement %d: %w", id, ErrSettlementNotFound)
	}
	return st, err
}

var errNoValue = errors.New("no value")

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	data := b.Get(key)
	if data == nil {
		return errNoValue
	}
	return json.Unmarshal(data, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// itob encodes an id as a big-endian key so ForEach iterates in id order.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

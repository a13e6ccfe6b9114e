// Package auditlog keeps an append-only CSV trail of transfer-flow events.
// PINs never reach the log.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/transfer"
)

// Header is the CSV header for transfers.csv.
const Header = "timestamp,member_id,idempotency_key,action,status,detail"

// FileName is the log file inside the audit directory.
const FileName = "transfers.csv"

const (
	numFields    = 6
	colTimestamp = 0
	colMember    = 1
	colKey       = 2
	colAction    = 3
	colStatus    = 4
	colDetail    = 5
)

// MarshalEvent converts an Event to a CSV row.
func MarshalEvent(e transfer.Event) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Time.UTC().Format(time.RFC3339Nano)
	row[colMember] = strconv.FormatInt(e.MemberID, 10)
	row[colKey] = e.Key
	row[colAction] = e.Action
	row[colStatus] = string(e.Status)
	row[colDetail] = e.Detail
	return row
}

// UnmarshalEvent converts a CSV row to an Event.
func UnmarshalEvent(record []string) (transfer.Event, error) {
	if len(record) != numFields {
		return transfer.Event{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339Nano, record[colTimestamp])
	if err != nil {
		return transfer.Event{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	memberID, err := strconv.ParseInt(record[colMember], 10, 64)
	if err != nil {
		return transfer.Event{}, fmt.Errorf("parsing member_id %q: %w", record[colMember], err)
	}

	return transfer.Event{
		Time:     ts,
		MemberID: memberID,
		Key:      record[colKey],
		Action:   record[colAction],
		Status:   model.TransferStatus(record[colStatus]),
		Detail:   record[colDetail],
	}, nil
}

// Log appends events to <dir>/transfers.csv. It implements
// transfer.EventSink and is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
}

// New returns a Log writing under dir. The file is created on first write.
func New(dir string) *Log {
	return &Log{path: filepath.Join(dir, FileName)}
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Record appends one event.
func (l *Log) Record(ev transfer.Event) error {
	return l.Append([]transfer.Event{ev})
}

// Append writes events, creating the file and header if needed.
func (l *Log) Append(events []transfer.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating audit dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range events {
		if err := cw.Write(MarshalEvent(e)); err != nil {
			return fmt.Errorf("writing event %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all events, or nil if the log does not exist yet.
func (l *Log) Read() ([]transfer.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	return readEvents(f)
}

// ForKey returns the events recorded for one idempotency key.
func (l *Log) ForKey(key string) ([]transfer.Event, error) {
	all, err := l.Read()
	if err != nil {
		return nil, err
	}
	var out []transfer.Event
	for _, e := range all {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func readEvents(r io.Reader) ([]transfer.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var events []transfer.Event
	for i, rec := range records[1:] {
		e, err := UnmarshalEvent(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		events = append(events, e)
	}
	return events, nil
}

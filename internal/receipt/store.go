// Package receipt holds itemized receipt lines and derives per-participant
// shares from them.
//
// Edits to items do not recompute anything. Totals returned by the
// last RecomputeTotals call stay as they were until the caller recomputes,
// so a UI can show the edited price next to the previous totals.
package receipt

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cleared-dev/splitpay/internal/allocation"
	"github.com/cleared-dev/splitpay/internal/model"
)

// ErrItemNotFound is returned for operations on an unknown item ID.
var ErrItemNotFound = errors.New("receipt item not found")

// Totals is the outcome of RecomputeTotals.
type Totals struct {
	Grand   int64                     // Σ price of active items
	Shares  map[int64]int64           // participant -> amount across active items
	PerItem map[int64]map[int64]int64 // item -> participant -> amount
}

// Store holds the items of one receipt.
type Store struct {
	receiptID int64
	roster    []model.Participant
	items     []model.ReceiptItem
	picker    allocation.Picker
	totals    Totals
	dirty     bool // items changed since the last RecomputeTotals
}

// NewStore creates an empty Store for receiptID. roster is the set of
// participants that may be assigned to items.
func NewStore(receiptID int64, roster []model.Participant, picker allocation.Picker) *Store {
	if picker == nil {
		picker = allocation.First
	}
	return &Store{
		receiptID: receiptID,
		roster:    slices.Clone(roster),
		picker:    picker,
		totals:    Totals{Shares: map[int64]int64{}, PerItem: map[int64]map[int64]int64{}},
	}
}

// NewFromScan creates a Store from a scanned receipt, assigning every roster
// participant to every item, and computes the initial totals.
func NewFromScan(scan model.ReceiptScan, roster []model.Participant, picker allocation.Picker) (*Store, error) {
	s := NewStore(scan.ReceiptID, roster, picker)
	ids := model.ParticipantIDs(roster)
	for _, it := range scan.Items {
		if err := s.AddItem(it.ProductID, it.Name, it.TotalPrice, ids); err != nil {
			return nil, err
		}
	}
	s.RecomputeTotals()
	return s, nil
}

// ReceiptID returns the receipt this store was built for.
func (s *Store) ReceiptID() int64 { return s.receiptID }

// Roster returns the participants known to the store.
func (s *Store) Roster() []model.Participant { return slices.Clone(s.roster) }

// AddItem appends a new item. Assigned participants must be on the roster.
func (s *Store) AddItem(id int64, name string, price int64, assigned []int64) error {
	if s.index(id) >= 0 {
		return fmt.Errorf("item %d already exists", id)
	}
	if price < 0 {
		return fmt.Errorf("item %d: negative price %d", id, price)
	}
	clean, err := s.checkAssignees(assigned)
	if err != nil {
		return fmt.Errorf("item %d: %w", id, err)
	}
	s.items = append(s.items, model.ReceiptItem{
		ID:         id,
		Name:       name,
		TotalPrice: price,
		Assigned:   clean,
	})
	s.dirty = true
	return nil
}

// AssignParticipants replaces the participant set of an item. Inactive flags
// of participants that stay assigned are kept.
func (s *Store) AssignParticipants(itemID int64, assigned []int64) error {
	it, err := s.item(itemID)
	if err != nil {
		return err
	}
	clean, err := s.checkAssignees(assigned)
	if err != nil {
		return fmt.Errorf("item %d: %w", itemID, err)
	}
	var inactive []int64
	for _, id := range it.InactiveMembers {
		if slices.Contains(clean, id) {
			inactive = append(inactive, id)
		}
	}
	it.Assigned = clean
	it.InactiveMembers = inactive
	s.dirty = true
	return nil
}

// ToggleParticipant flips whether participantID is inactive on the item. It
// is a no-op when the participant is not assigned to the item.
func (s *Store) ToggleParticipant(itemID, participantID int64) error {
	it, err := s.item(itemID)
	if err != nil {
		return err
	}
	if !it.IsAssigned(participantID) {
		return nil
	}
	if i := slices.Index(it.InactiveMembers, participantID); i >= 0 {
		it.InactiveMembers = slices.Delete(it.InactiveMembers, i, i+1)
	} else {
		it.InactiveMembers = append(it.InactiveMembers, participantID)
	}
	s.dirty = true
	return nil
}

// SetItemActive forces an item on or off. Turning it off marks every
// assigned participant inactive; turning it on reactivates all of them.
func (s *Store) SetItemActive(itemID int64, active bool) error {
	it, err := s.item(itemID)
	if err != nil {
		return err
	}
	if active {
		it.InactiveMembers = nil
	} else {
		it.InactiveMembers = slices.Clone(it.Assigned)
	}
	s.dirty = true
	return nil
}

// EditItemPrice overwrites an item's price. Totals are not recomputed.
func (s *Store) EditItemPrice(itemID, price int64) error {
	if price < 0 {
		return fmt.Errorf("item %d: negative price %d", itemID, price)
	}
	it, err := s.item(itemID)
	if err != nil {
		return err
	}
	it.TotalPrice = price
	s.dirty = true
	return nil
}

// RecomputeTotals splits every active item across its active participants
// and aggregates the result per participant.
func (s *Store) RecomputeTotals() Totals {
	t := Totals{
		Shares:  make(map[int64]int64),
		PerItem: make(map[int64]map[int64]int64),
	}
	for _, it := range s.items {
		if it.Inactive() {
			continue
		}
		t.Grand += it.TotalPrice
		shares := allocation.Allocate(it.TotalPrice, it.ActiveParticipants(), s.picker)
		t.PerItem[it.ID] = shares
		for p, amt := range shares {
			t.Shares[p] += amt
		}
	}
	s.totals = t
	s.dirty = false
	return t
}

// Totals returns the totals from the last RecomputeTotals call.
func (s *Store) Totals() Totals { return s.totals }

// Items returns a copy of all items in order.
func (s *Store) Items() []model.ReceiptItem {
	out := make([]model.ReceiptItem, len(s.items))
	for i, it := range s.items {
		out[i] = cloneItem(it)
	}
	return out
}

// Item returns a copy of one item.
func (s *Store) Item(itemID int64) (model.ReceiptItem, error) {
	it, err := s.item(itemID)
	if err != nil {
		return model.ReceiptItem{}, err
	}
	return cloneItem(*it), nil
}

// CurrentTotal returns Σ price of active items at this moment, regardless of
// when totals were last recomputed.
func (s *Store) CurrentTotal() int64 {
	var sum int64
	for _, it := range s.items {
		if !it.Inactive() {
			sum += it.TotalPrice
		}
	}
	return sum
}

// Stale reports whether any item was added, edited, toggled or reassigned
// since the last RecomputeTotals, even when the grand total is unchanged.
func (s *Store) Stale() bool {
	return s.dirty
}

// MemberDetails lists the active participants of every active item.
func (s *Store) MemberDetails() []model.ItemMembers {
	var out []model.ItemMembers
	for _, it := range s.items {
		if it.Inactive() {
			continue
		}
		out = append(out, model.ItemMembers{ProductID: it.ID, Members: it.ActiveParticipants()})
	}
	return out
}

func (s *Store) index(itemID int64) int {
	return slices.IndexFunc(s.items, func(it model.ReceiptItem) bool { return it.ID == itemID })
}

func (s *Store) item(itemID int64) (*model.ReceiptItem, error) {
	i := s.index(itemID)
	if i < 0 {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
	}
	return &s.items[i], nil
}

func (s *Store) checkAssignees(assigned []int64) ([]int64, error) {
	var clean []int64
	for _, id := range assigned {
		if !slices.ContainsFunc(s.roster, func(p model.Participant) bool { return p.ID == id }) {
			return nil, fmt.Errorf("participant %d is not on the roster", id)
		}
		if !slices.Contains(clean, id) {
			clean = append(clean, id)
		}
	}
	return clean, nil
}

func cloneItem(it model.ReceiptItem) model.ReceiptItem {
	it.Assigned = slices.Clone(it.Assigned)
	it.InactiveMembers = slices.Clone(it.InactiveMembers)
	return it
}

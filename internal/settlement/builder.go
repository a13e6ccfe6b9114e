// Package settlement assembles, validates and submits settlement requests.
package settlement

import (
	"slices"

	"github.com/cleared-dev/splitpay/internal/allocation"
	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/receipt"
	"github.com/cleared-dev/splitpay/internal/xerrors"
)

// Header fields shared by both settlement modes.
type Header struct {
	LeaderID            int64
	GroupID             *int64
	SettlementAccountID int64
	// ParticipantIDs in display order; member amounts follow this order.
	ParticipantIDs []int64
}

// Builder assembles one model.SettlementRequest.
type Builder struct {
	req model.SettlementRequest
}

// NewBuilder starts a request in the given mode.
func NewBuilder(mode model.SettlementMode, h Header) *Builder {
	return &Builder{req: model.SettlementRequest{
		Mode:                mode,
		LeaderID:            h.LeaderID,
		GroupID:             h.GroupID,
		SettlementAccountID: h.SettlementAccountID,
		ParticipantIDs:      append([]int64(nil), h.ParticipantIDs...),
	}}
}

// Total sets the settlement total.
func (b *Builder) Total(amount int64) *Builder {
	b.req.TotalAmount = amount
	return b
}

// Shares sets the member amounts. Participants are emitted in header order,
// then any remaining members (e.g. the leader) in ascending id order.
func (b *Builder) Shares(shares map[int64]int64) *Builder {
	b.req.MemberAmounts = b.req.MemberAmounts[:0]
	done := make(map[int64]bool, len(shares))
	for _, pid := range b.req.ParticipantIDs {
		if amt, ok := shares[pid]; ok && !done[pid] {
			b.req.MemberAmounts = append(b.req.MemberAmounts, model.MemberAmount{MemberID: pid, Amount: amt})
			done[pid] = true
		}
	}
	var rest []int64
	for pid := range shares {
		if !done[pid] {
			rest = append(rest, pid)
		}
	}
	slices.Sort(rest)
	for _, pid := range rest {
		b.req.MemberAmounts = append(b.req.MemberAmounts, model.MemberAmount{MemberID: pid, Amount: shares[pid]})
	}
	return b
}

// Receipt attaches the receipt id and per-item membership. Only valid in
// receipt mode; Validate reports misuse.
func (b *Builder) Receipt(receiptID int64, items []model.ItemMembers) *Builder {
	b.req.ReceiptID = &receiptID
	b.req.ItemMembers = items
	return b
}

// Build validates and returns the request.
func (b *Builder) Build() (model.SettlementRequest, error) {
	if errs := Validate(b.req); len(errs) > 0 {
		return model.SettlementRequest{}, errs
	}
	return b.req, nil
}

// FromEvenSplit divides total across h.ParticipantIDs with the allocation
// rule and builds an even-split request.
func FromEvenSplit(h Header, total int64, picker allocation.Picker) (model.SettlementRequest, error) {
	shares, err := allocation.AllocateChecked(total, h.ParticipantIDs, picker)
	if err != nil {
		return model.SettlementRequest{}, err
	}
	return NewBuilder(model.ModeEvenSplit, h).Total(total).Shares(shares).Build()
}

// FromReceipt builds a receipt request from the store's last computed
// totals. The total is the store's current active-item sum. A store edited
// since its last RecomputeTotals is rejected, even when the edit left the
// total unchanged.
func FromReceipt(h Header, store *receipt.Store) (model.SettlementRequest, error) {
	totals := store.Totals()
	req := NewBuilder(model.ModeReceipt, h).
		Total(store.CurrentTotal()).
		Shares(totals.Shares).
		Receipt(store.ReceiptID(), store.MemberDetails()).
		req

	errs := Validate(req)
	if store.Stale() {
		errs = append(errs, xerrors.ValidationError{
			Field:       "memberAmounts",
			Description: "receipt changed since shares were last computed",
		})
	}
	if len(errs) > 0 {
		return model.SettlementRequest{}, errs
	}
	return req, nil
}

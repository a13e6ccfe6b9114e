package model

import "time"

// SettlementMode discriminates how a settlement total was divided.
type SettlementMode string

const (
	ModeEvenSplit SettlementMode = "general"
	ModeReceipt   SettlementMode = "receipt"
)

// Valid reports whether m is a known mode.
func (m SettlementMode) Valid() bool {
	return m == ModeEvenSplit || m == ModeReceipt
}

// MemberAmount is one participant's share in a settlement request.
type MemberAmount struct {
	MemberID int64 `json:"memberId"`
	Amount   int64 `json:"amount"`
}

// ItemMembers lists the participants sharing one receipt item.
type ItemMembers struct {
	ProductID int64   `json:"productId"`
	Members   []int64 `json:"productMembers"`
}

// SettlementRequest is the single outbound settlement-creation payload.
type SettlementRequest struct {
	Mode                SettlementMode `json:"type"`
	LeaderID            int64          `json:"leaderId"`
	GroupID             *int64         `json:"groupId"`
	SettlementAccountID int64          `json:"settlementAccountId"`
	TotalAmount         int64          `json:"totalAmount"`
	ParticipantIDs      []int64        `json:"friendIds"`
	MemberAmounts       []MemberAmount `json:"memberAmounts"`

	// Receipt mode only.
	ReceiptID   *int64        `json:"receiptId,omitempty"`
	ItemMembers []ItemMembers `json:"productMemberDetails,omitempty"`
}

// SumAmounts returns Σ MemberAmounts.
func (r SettlementRequest) SumAmounts() int64 {
	var sum int64
	for _, ma := range r.MemberAmounts {
		sum += ma.Amount
	}
	return sum
}

// ShareStatus is a member's progress on their share: "N" while pending and
// "Y" once paid.
type ShareStatus string

const (
	SharePending ShareStatus = "N"
	SharePaid    ShareStatus = "Y"
)

// Settlement is a settlement as recorded by the settlement service.
type Settlement struct {
	ID                  int64                 `json:"settlementId"`
	Mode                SettlementMode        `json:"type"`
	TotalAmount         int64                 `json:"totalAmount"`
	LeaderID            int64                 `json:"leaderId"`
	GroupID             *int64                `json:"groupId,omitempty"`
	SettlementAccountID int64                 `json:"settlementAccountId"`
	Shares              map[int64]int64       `json:"shares"`
	MemberStatus        map[int64]ShareStatus `json:"memberStatus"`
	PaidAt              map[int64]time.Time   `json:"paidAt,omitempty"`
	CompletedAt         time.Time             `json:"completedDate,omitzero"`
	ReceiptID           *int64                `json:"receiptId,omitempty"`
	ItemMembers         []ItemMembers         `json:"productMemberDetails,omitempty"`
}

// Completed reports whether every share has been paid.
func (s Settlement) Completed() bool { return !s.CompletedAt.IsZero() }

// MarkPaid records memberID's share as paid at t and completes the
// settlement once no share is pending.
func (s *Settlement) MarkPaid(memberID int64, t time.Time) {
	if s.MemberStatus == nil {
		s.MemberStatus = make(map[int64]ShareStatus, len(s.Shares))
	}
	if s.PaidAt == nil {
		s.PaidAt = make(map[int64]time.Time, len(s.Shares))
	}
	s.MemberStatus[memberID] = SharePaid
	s.PaidAt[memberID] = t
	for member := range s.Shares {
		if s.MemberStatus[member] != SharePaid {
			return
		}
	}
	s.CompletedAt = t
}

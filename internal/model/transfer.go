package model

import "time"

// TransferStatus is the lifecycle state of a transfer intent. Statuses only
// move forward.
type TransferStatus string

const (
	TransferInitiated  TransferStatus = "INITIATED"
	TransferAuthorized TransferStatus = "AUTHORIZED"
	TransferConfirmed  TransferStatus = "CONFIRMED"
	TransferFailed     TransferStatus = "FAILED"
	TransferTerminated TransferStatus = "TERMINATED"
)

// Terminal reports whether no further transition is possible.
func (s TransferStatus) Terminal() bool {
	return s == TransferConfirmed || s == TransferFailed || s == TransferTerminated
}

// rank orders statuses for forward-only checks. Terminal statuses share a rank.
func (s TransferStatus) rank() int {
	switch s {
	case TransferInitiated:
		return 0
	case TransferAuthorized:
		return 1
	case TransferConfirmed, TransferFailed, TransferTerminated:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s TransferStatus) CanAdvanceTo(next TransferStatus) bool {
	if s.Terminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// Outcome is the transfer service's verdict on a transfer call.
type Outcome string

const (
	OutcomeSuccess    Outcome = "SUCCESS"
	OutcomeFailure    Outcome = "FAILURE"    // retryable, e.g. wrong PIN
	OutcomeTerminated Outcome = "TERMINATED" // not retryable
)

// TransferRequest is the payload of the final, PIN-gated transfer call.
type TransferRequest struct {
	IdempotencyKey string      `json:"idempotencyKey"`
	MemberID       int64       `json:"memberId"`
	SettlementID   *int64      `json:"settlementId"`
	Withdrawal     AccountRef  `json:"withdrawalDetails"`
	Receiver       ReceiverRef `json:"receiverDetails"`
	Amount         int64       `json:"amount"`
	ReceiverMemo   string      `json:"rcvPrintContent"`
	WithdrawalMemo string      `json:"wdPrintContent"`
	Pin            string      `json:"-"`
}

// TransferResult is what the transfer service answered for a key.
type TransferResult struct {
	IdempotencyKey string      `json:"idempotencyKey"`
	TransferID     string      `json:"transferId,omitempty"`
	Outcome        Outcome     `json:"status"`
	Message        string      `json:"message,omitempty"`
	ExecutedAt     time.Time   `json:"tranDtm,omitzero"`
	MemberID       int64       `json:"memberId"`
	Withdrawal     AccountRef  `json:"withdrawalDetails"`
	Receiver       ReceiverRef `json:"receiverDetails"`
	Amount         int64       `json:"amount"`
}

// ReceiverLookup is the result of resolving a receiver for a payment attempt.
type ReceiverLookup struct {
	IdempotencyKey    string `json:"idempotencyKey"`
	SettlementID      *int64 `json:"settlementId,omitempty"`
	ReceiverHolder    string `json:"receiverAccountHolder"`
	WithdrawalAccount int64  `json:"withdrawalAccountId"`
	WithdrawalNumber  string `json:"withdrawalAccountNum"`
	WithdrawalBalance int64  `json:"withdrawalBalance"`
}

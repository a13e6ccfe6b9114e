package model

// BankAccount is an account held at a bank, as known to the account service.
type BankAccount struct {
	ID       int64  `json:"accountId"`
	MemberID int64  `json:"memberId"`
	BankCode string `json:"bankCode"`
	BankName string `json:"bankName"`
	Number   string `json:"accountNum"`
	Holder   string `json:"accountHolder"`
	Balance  int64  `json:"balance"` // minor units
}

// Ref returns the withdrawal-side reference for this account.
func (a BankAccount) Ref() AccountRef {
	return AccountRef{
		AccountID: a.ID,
		Number:    a.Number,
		Holder:    a.Holder,
		BankCode:  a.BankCode,
	}
}

// AccountRef identifies the withdrawal account of a transfer.
type AccountRef struct {
	AccountID int64  `json:"accountId"`
	Number    string `json:"accountNum"`
	Holder    string `json:"accountHolder"`
	BankCode  string `json:"bankCode"`
}

// ReceiverRef identifies the receiving account of a transfer. Holder is empty
// until the receiver has been resolved.
type ReceiverRef struct {
	BankCode string `json:"bankCode"`
	Number   string `json:"accountNum"`
	Holder   string `json:"accountHolder"`
}

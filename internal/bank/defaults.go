package bank

import "github.com/cleared-dev/splitpay/internal/model"

// DefaultAccounts returns the demo accounts seeded by `splitpay init`. Member
// 1 leads; members 2 and 3 hold one account each at other banks.
func DefaultAccounts(fixture string) []model.BankAccount {
	switch fixture {
	case "empty":
		return nil
	default:
		return demoAccounts()
	}
}

func demoAccounts() []model.BankAccount {
	return []model.BankAccount{
		{ID: 1, MemberID: 1, BankCode: "088", BankName: "Taco Bank", Number: "110-100-000001", Holder: "Leader", Balance: 500000},
		{ID: 2, MemberID: 1, BankCode: "088", BankName: "Taco Bank", Number: "110-100-000002", Holder: "Leader", Balance: 20000},
		{ID: 3, MemberID: 2, BankCode: "004", BankName: "KB Kookmin", Number: "220-200-000003", Holder: "Jisoo", Balance: 150000},
		{ID: 4, MemberID: 3, BankCode: "020", BankName: "Woori", Number: "330-300-000004", Holder: "Minho", Balance: 80000},
	}
}

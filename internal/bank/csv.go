package bank

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/cleared-dev/splitpay/internal/model"
)

const (
	numFields   = 7
	colID       = 0
	colMember   = 1
	colBankCode = 2
	colBankName = 3
	colNumber   = 4
	colHolder   = 5
	colBalance  = 6
)

var csvHeader = []string{"account_id", "member_id", "bank_code", "bank_name", "account_num", "account_holder", "balance"}

// ReadAccounts reads an accounts CSV. Balances are in minor units.
func ReadAccounts(r io.Reader) ([]model.BankAccount, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.BankAccount
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes an accounts CSV.
func WriteAccounts(w io.Writer, accounts []model.BankAccount) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts a BankAccount to a CSV row.
func MarshalAccount(acct model.BankAccount) []string {
	row := make([]string, numFields)
	row[colID] = strconv.FormatInt(acct.ID, 10)
	row[colMember] = strconv.FormatInt(acct.MemberID, 10)
	row[colBankCode] = acct.BankCode
	row[colBankName] = acct.BankName
	row[colNumber] = acct.Number
	row[colHolder] = acct.Holder
	row[colBalance] = strconv.FormatInt(acct.Balance, 10)
	return row
}

// UnmarshalAccount converts a CSV row to a BankAccount.
func UnmarshalAccount(record []string) (model.BankAccount, error) {
	if len(record) != numFields {
		return model.BankAccount{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	id, err := strconv.ParseInt(record[colID], 10, 64)
	if err != nil {
		return model.BankAccount{}, fmt.Errorf("parsing account_id %q: %w", record[colID], err)
	}
	memberID, err := strconv.ParseInt(record[colMember], 10, 64)
	if err != nil {
		return model.BankAccount{}, fmt.Errorf("parsing member_id %q: %w", record[colMember], err)
	}

	var balance int64
	if record[colBalance] != "" {
		balance, err = strconv.ParseInt(record[colBalance], 10, 64)
		if err != nil {
			return model.BankAccount{}, fmt.Errorf("parsing balance %q: %w", record[colBalance], err)
		}
	}
	if record[colBankCode] == "" || record[colNumber] == "" {
		return model.BankAccount{}, fmt.Errorf("account %d: bank code and account number are required", id)
	}

	return model.BankAccount{
		ID:       id,
		MemberID: memberID,
		BankCode: record[colBankCode],
		BankName: record[colBankName],
		Number:   record[colNumber],
		Holder:   record[colHolder],
		Balance:  balance,
	}, nil
}

package settlement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cleared-dev/splitpay/internal/model"
)

// CSVHeader is the CSV header for share exports.
const CSVHeader = "member_id,name,amount"

const (
	numFields = 3
	colMember = 0
	colName   = 1
	colAmount = 2
)

// WriteShares writes one row per member amount. Names are looked up in names
// and left blank when unknown; amounts are formatted with the currency
// exponent.
func WriteShares(w io.Writer, req model.SettlementRequest, names map[int64]string, exponent int32) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(CSVHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, ma := range req.MemberAmounts {
		row := make([]string, numFields)
		row[colMember] = strconv.FormatInt(ma.MemberID, 10)
		row[colName] = names[ma.MemberID]
		row[colAmount] = model.FormatAmount(ma.Amount, exponent)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadShares reads a share export back into member amounts.
func ReadShares(r io.Reader, exponent int32) ([]model.MemberAmount, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading shares CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []model.MemberAmount
	for i, rec := range records[1:] {
		memberID, err := strconv.ParseInt(rec[colMember], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing member_id %q: %w", i+2, rec[colMember], err)
		}
		amount, err := model.ParseAmount(rec[colAmount], exponent)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, model.MemberAmount{MemberID: memberID, Amount: amount})
	}
	return out, nil
}

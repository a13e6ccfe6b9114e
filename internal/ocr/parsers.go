package ocr

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/splitpay/internal/model"
)

// JSONParser reads the recognition service's JSON response.
type JSONParser struct{}

// Format returns the parser name.
func (JSONParser) Format() string { return "json" }

// Parse decodes one JSON receipt document.
func (JSONParser) Parse(r io.Reader, exponent int32) (model.ReceiptScan, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return model.ReceiptScan{}, fmt.Errorf("decoding receipt JSON: %w", err)
	}
	return doc.scan(exponent)
}

// YAMLParser reads hand-corrected receipts saved as YAML.
type YAMLParser struct{}

// Format returns the parser name.
func (YAMLParser) Format() string { return "yaml" }

// Parse decodes one YAML receipt document.
func (YAMLParser) Parse(r io.Reader, exponent int32) (model.ReceiptScan, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return model.ReceiptScan{}, fmt.Errorf("decoding receipt YAML: %w", err)
	}
	return doc.scan(exponent)
}

// CSVParser reads receipt_id,product_id,name,total_price rows. Every row
// must carry the same receipt id; the total is the sum of the items.
type CSVParser struct{}

const (
	csvNumFields  = 4
	csvColReceipt = 0
	csvColProduct = 1
	csvColName    = 2
	csvColPrice   = 3
)

// Format returns the parser name.
func (CSVParser) Format() string { return "csv" }

// Parse reads a receipt CSV with a header row.
func (CSVParser) Parse(r io.Reader, exponent int32) (model.ReceiptScan, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = csvNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return model.ReceiptScan{}, fmt.Errorf("reading receipt CSV: %w", err)
	}
	if len(records) <= 1 {
		return model.ReceiptScan{}, errNoItems
	}

	var doc document
	for i, rec := range records[1:] {
		receiptID, err := strconv.ParseInt(strings.TrimSpace(rec[csvColReceipt]), 10, 64)
		if err != nil {
			return model.ReceiptScan{}, fmt.Errorf("row %d: parsing receipt_id %q: %w", i+2, rec[csvColReceipt], err)
		}
		if i == 0 {
			doc.ReceiptID = receiptID
		} else if receiptID != doc.ReceiptID {
			return model.ReceiptScan{}, fmt.Errorf("row %d: receipt id %d differs from %d", i+2, receiptID, doc.ReceiptID)
		}

		productID, err := strconv.ParseInt(strings.TrimSpace(rec[csvColProduct]), 10, 64)
		if err != nil {
			return model.ReceiptScan{}, fmt.Errorf("row %d: parsing product_id %q: %w", i+2, rec[csvColProduct], err)
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(rec[csvColPrice]), ",", ""))
		if err != nil {
			return model.ReceiptScan{}, fmt.Errorf("row %d: parsing total_price %q: %w", i+2, rec[csvColPrice], err)
		}
		doc.Items = append(doc.Items, documentItem{
			ProductID:  productID,
			Name:       rec[csvColName],
			TotalPrice: price{d: d, set: true},
		})
	}
	return doc.scan(exponent)
}

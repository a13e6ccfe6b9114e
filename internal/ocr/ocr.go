// Package ocr turns receipt recognition output into model.ReceiptScan values.
// Recognition itself happens elsewhere; this package reads the documents it
// produces in JSON, YAML or CSV form.
package ocr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/splitpay/internal/model"
)

// Parser converts a recognised receipt document into a ReceiptScan. Prices
// are converted to minor units with the currency exponent.
type Parser interface {
	Parse(r io.Reader, exponent int32) (model.ReceiptScan, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
	byExt   map[string]string
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser), byExt: make(map[string]string)}
}

// Register adds a parser for the given file extensions. Panics on duplicate
// format.
func (r *Registry) Register(p Parser, exts ...string) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = key
	}
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// ForFile returns the parser registered for the file's extension, or nil.
func (r *Registry) ForFile(path string) Parser {
	return r.Get(r.byExt[strings.ToLower(filepath.Ext(path))])
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(JSONParser{}, ".json")
	r.Register(YAMLParser{}, ".yaml", ".yml")
	r.Register(CSVParser{}, ".csv")
	return r
}

// ParseFile parses the receipt document at path, choosing the parser by
// extension unless format is given.
func (r *Registry) ParseFile(path, format string, exponent int32) (model.ReceiptScan, error) {
	p := r.Get(format)
	if format == "" {
		p = r.ForFile(path)
	}
	if p == nil {
		return model.ReceiptScan{}, fmt.Errorf("no receipt parser for %s (format %q)", filepath.Base(path), format)
	}

	f, err := os.Open(path)
	if err != nil {
		return model.ReceiptScan{}, fmt.Errorf("opening receipt: %w", err)
	}
	defer f.Close()

	scan, err := p.Parse(f, exponent)
	if err != nil {
		return model.ReceiptScan{}, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return scan, nil
}

// Reconcile compares the reported receipt total with the sum of its items.
// Recognition totals are informational, so a mismatch is reported to the
// caller rather than rejected.
func Reconcile(scan model.ReceiptScan) (itemSum int64, ok bool) {
	for _, it := range scan.Items {
		itemSum += it.TotalPrice
	}
	return itemSum, itemSum == scan.TotalAmount
}

// price decodes a decimal price from JSON or YAML numbers and strings.
type price struct {
	d   decimal.Decimal
	set bool
}

func (p *price) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return fmt.Errorf("price %s: %w", b, err)
	}
	p.d, p.set = d, true
	return nil
}

func (p *price) UnmarshalYAML(n *yaml.Node) error {
	d, err := decimal.NewFromString(strings.ReplaceAll(n.Value, ",", ""))
	if err != nil {
		return fmt.Errorf("line %d: price %q: %w", n.Line, n.Value, err)
	}
	p.d, p.set = d, true
	return nil
}

func (p price) minor(exponent int32) (int64, error) {
	return model.ParseAmount(p.d.String(), exponent)
}

// document is the recognition service's response shape.
type document struct {
	ReceiptID   int64          `json:"receiptId" yaml:"receiptId"`
	TotalAmount price          `json:"totalAmount" yaml:"totalAmount"`
	Items       []documentItem `json:"items" yaml:"items"`
}

type documentItem struct {
	ProductID  int64  `json:"productId" yaml:"productId"`
	Name       string `json:"name" yaml:"name"`
	TotalPrice price  `json:"totalPrice" yaml:"totalPrice"`
}

var errNoItems = errors.New("receipt has no items")

func (d document) scan(exponent int32) (model.ReceiptScan, error) {
	if len(d.Items) == 0 {
		return model.ReceiptScan{}, errNoItems
	}
	scan := model.ReceiptScan{ReceiptID: d.ReceiptID}

	seen := make(map[int64]bool, len(d.Items))
	for i, it := range d.Items {
		if it.ProductID <= 0 {
			return model.ReceiptScan{}, fmt.Errorf("item %d: product id is required", i+1)
		}
		if seen[it.ProductID] {
			return model.ReceiptScan{}, fmt.Errorf("item %d: duplicate product id %d", i+1, it.ProductID)
		}
		seen[it.ProductID] = true
		if !it.TotalPrice.set {
			return model.ReceiptScan{}, fmt.Errorf("item %d: price is required", i+1)
		}
		amt, err := it.TotalPrice.minor(exponent)
		if err != nil {
			return model.ReceiptScan{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		if amt < 0 {
			return model.ReceiptScan{}, fmt.Errorf("item %d: negative price %s", i+1, it.TotalPrice.d)
		}
		scan.Items = append(scan.Items, model.ScannedItem{ProductID: it.ProductID, Name: it.Name, TotalPrice: amt})
	}

	if d.TotalAmount.set {
		total, err := d.TotalAmount.minor(exponent)
		if err != nil {
			return model.ReceiptScan{}, fmt.Errorf("total: %w", err)
		}
		scan.TotalAmount = total
	} else {
		scan.TotalAmount, _ = Reconcile(scan)
	}
	return scan, nil
}

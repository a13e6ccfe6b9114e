package commands_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/splitpay/internal/settlement"
)

const receiptJSON = `{
  "receiptId": 77,
  "totalAmount": 31000,
  "items": [
    {"productId": 101, "name": "Pizza", "totalPrice": 20000},
    {"productId": 102, "name": "Cola", "totalPrice": "3,000"},
    {"productId": 103, "name": "Salad", "totalPrice": 8000}
  ]
}`

func writeReceipt(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receipt.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSplit_EvenShares(t *testing.T) {
	dir := newProject(t)

	out, err := runSplitpay(t, "", "--dir", dir, "split", "--total", "10,000", "--participants", "1:Leader,2:Jisoo,3:Minho")
	require.NoError(t, err)
	assert.Contains(t, out, "3334 KRW")
	assert.Equal(t, 2, strings.Count(out, "3333 KRW"))
	assert.Contains(t, out, "10000 KRW")
	assert.NotContains(t, out, "Created settlement")
}

func TestSplit_SubmitAndShow(t *testing.T) {
	dir := newProject(t)

	out, err := runSplitpay(t, "", "--dir", dir, "split", "--total", "1000", "--participants", "1,2,3", "--group", "9", "--submit")
	require.NoError(t, err)
	assert.Contains(t, out, "Created settlement 1")

	out, err = runSplitpay(t, "", "--dir", dir, "settle", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Settlement 1 (general)")
	assert.Contains(t, out, "334 KRW")

	_, err = runSplitpay(t, "", "--dir", dir, "settle", "42")
	assert.ErrorContains(t, err, "settlement 42 not found")
}

func TestSplit_CSVExport(t *testing.T) {
	dir := newProject(t)
	csvPath := filepath.Join(t.TempDir(), "shares.csv")

	_, err := runSplitpay(t, "", "--dir", dir, "split", "--total", "1000", "--participants", "1:Leader,2:Jisoo,3:Minho", "--csv", csvPath)
	require.NoError(t, err)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	shares, err := settlement.ReadShares(f, 0)
	require.NoError(t, err)
	require.Len(t, shares, 3)

	var sum int64
	for _, s := range shares {
		sum += s.Amount
	}
	assert.Equal(t, int64(1000), sum)
}

func TestSplit_InvalidInput(t *testing.T) {
	dir := newProject(t)

	_, err := runSplitpay(t, "", "--dir", dir, "split", "--total", "abc", "--participants", "1,2")
	assert.ErrorContains(t, err, "--total")

	_, err = runSplitpay(t, "", "--dir", dir, "split", "--total", "1000", "--participants", "x")
	assert.ErrorContains(t, err, "participant")

	_, err = runSplitpay(t, "", "--dir", dir, "split", "--total=-5", "--participants", "1,2")
	assert.ErrorContains(t, err, "negative")
}

func TestReceipt_SplitAndSubmit(t *testing.T) {
	dir := newProject(t)
	path := writeReceipt(t, receiptJSON)

	out, err := runSplitpay(t, "", "--dir", dir, "receipt", path,
		"--participants", "1:Leader,2:Jisoo,3:Minho",
		"--exclude", "102:3",
		"--submit")
	require.NoError(t, err)
	assert.Contains(t, out, "Cola")
	assert.Contains(t, out, "31000 KRW")
	assert.Contains(t, out, "Created settlement 1")
	assert.NotContains(t, out, "Warning")

	out, err = runSplitpay(t, "", "--dir", dir, "settle", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Receipt 77, 3 items")
	assert.Contains(t, out, "9332 KRW", "member 3 pays nothing for the cola")
}

func TestReceipt_InactiveItem(t *testing.T) {
	dir := newProject(t)
	path := writeReceipt(t, receiptJSON)

	out, err := runSplitpay(t, "", "--dir", dir, "receipt", path, "--participants", "1,2", "--inactive", "103")
	require.NoError(t, err)
	assert.Contains(t, out, "23000 KRW")
}

func TestReceipt_PriceCorrection(t *testing.T) {
	dir := newProject(t)
	path := writeReceipt(t, receiptJSON)

	out, err := runSplitpay(t, "", "--dir", dir, "receipt", path, "--participants", "1,2", "--price", "102=4000")
	require.NoError(t, err)
	assert.Contains(t, out, "32000 KRW")
}

func TestReceipt_StalePricesRejected(t *testing.T) {
	dir := newProject(t)
	path := writeReceipt(t, receiptJSON)

	out, err := runSplitpay(t, "", "--dir", dir, "receipt", path, "--participants", "1,2",
		"--price", "102=4000", "--recompute=false", "--submit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member amounts sum to 31000, total is 32000")
	assert.Contains(t, out, "Prices changed")
}

func TestReceipt_ReportsTotalMismatch(t *testing.T) {
	dir := newProject(t)
	path := writeReceipt(t, strings.Replace(receiptJSON, `"totalAmount": 31000`, `"totalAmount": 30000`, 1))

	out, err := runSplitpay(t, "", "--dir", dir, "receipt", path, "--participants", "1,2")
	require.NoError(t, err)
	assert.Contains(t, out, "Warning: receipt total 30000 KRW, items add up to 31000 KRW")
}

func TestReceipt_BadEdits(t *testing.T) {
	dir := newProject(t)
	path := writeReceipt(t, receiptJSON)

	_, err := runSplitpay(t, "", "--dir", dir, "receipt", path, "--participants", "1,2", "--exclude", "102")
	assert.ErrorContains(t, err, "item:member")

	_, err = runSplitpay(t, "", "--dir", dir, "receipt", path, "--participants", "1,2", "--inactive", "999")
	assert.Error(t, err)
}

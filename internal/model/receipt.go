package model

import "slices"

// ReceiptItem is one line of an itemized receipt. Assigned and InactiveMembers
// keep insertion order; InactiveMembers is always a subset of Assigned.
type ReceiptItem struct {
	ID              int64
	Name            string
	TotalPrice      int64 // minor units
	Assigned        []int64
	InactiveMembers []int64
}

// Inactive reports whether every assigned participant is inactive. An item
// with nobody assigned is inactive.
func (it ReceiptItem) Inactive() bool {
	for _, id := range it.Assigned {
		if !slices.Contains(it.InactiveMembers, id) {
			return false
		}
	}
	return true
}

// IsAssigned reports whether participant id is assigned to the item.
func (it ReceiptItem) IsAssigned(id int64) bool {
	return slices.Contains(it.Assigned, id)
}

// ActiveParticipants returns assigned participants that are not inactive, in
// assignment order.
func (it ReceiptItem) ActiveParticipants() []int64 {
	var active []int64
	for _, id := range it.Assigned {
		if !slices.Contains(it.InactiveMembers, id) {
			active = append(active, id)
		}
	}
	return active
}

// ReceiptScan is the structured result of reading a receipt image.
type ReceiptScan struct {
	ReceiptID   int64         `json:"receiptId"`
	TotalAmount int64         `json:"totalAmount"`
	Items       []ScannedItem `json:"items"`
}

// ScannedItem is one product line recognised on a receipt.
type ScannedItem struct {
	ProductID  int64  `json:"productId"`
	Name       string `json:"name"`
	TotalPrice int64  `json:"totalPrice"`
}

package settlement

import (
	"fmt"
	"slices"

	"github.com/cleared-dev/splitpay/internal/model"
	"github.com/cleared-dev/splitpay/internal/xerrors"
)

// Validate checks a settlement request before it is posted. A non-empty
// result blocks submission; Σ memberAmounts ≠ totalAmount is always reported.
func Validate(req model.SettlementRequest) xerrors.ValidationErrors {
	var errs xerrors.ValidationErrors

	if !req.Mode.Valid() {
		errs = append(errs, xerrors.ValidationError{
			Field:       "type",
			Description: fmt.Sprintf("unknown settlement mode %q", req.Mode),
		})
	}
	if req.LeaderID <= 0 {
		errs = append(errs, xerrors.ValidationError{Field: "leaderId", Description: "leader is required"})
	}
	if req.SettlementAccountID <= 0 {
		errs = append(errs, xerrors.ValidationError{Field: "settlementAccountId", Description: "settlement account is required"})
	}
	if req.TotalAmount < 0 {
		errs = append(errs, xerrors.ValidationError{
			Field:       "totalAmount",
			Description: fmt.Sprintf("total %d is negative", req.TotalAmount),
		})
	}
	if len(req.ParticipantIDs) == 0 {
		errs = append(errs, xerrors.ValidationError{Field: "friendIds", Description: "at least one participant is required"})
	}

	// Sum must match exactly.
	if sum := req.SumAmounts(); sum != req.TotalAmount {
		errs = append(errs, xerrors.ValidationError{
			Field:       "memberAmounts",
			Description: fmt.Sprintf("member amounts sum to %d, total is %d", sum, req.TotalAmount),
		})
	}

	seen := make(map[int64]bool, len(req.MemberAmounts))
	for _, ma := range req.MemberAmounts {
		if ma.Amount < 0 {
			errs = append(errs, xerrors.ValidationError{
				Field:       "memberAmounts",
				Description: fmt.Sprintf("member %d has negative amount %d", ma.MemberID, ma.Amount),
			})
		}
		if seen[ma.MemberID] {
			errs = append(errs, xerrors.ValidationError{
				Field:       "memberAmounts",
				Description: fmt.Sprintf("member %d listed twice", ma.MemberID),
			})
		}
		seen[ma.MemberID] = true
		if ma.MemberID != req.LeaderID && !slices.Contains(req.ParticipantIDs, ma.MemberID) {
			errs = append(errs, xerrors.ValidationError{
				Field:       "memberAmounts",
				Description: fmt.Sprintf("member %d is not a participant", ma.MemberID),
			})
		}
	}

	switch req.Mode {
	case model.ModeEvenSplit:
		if req.ReceiptID != nil || len(req.ItemMembers) > 0 {
			errs = append(errs, xerrors.ValidationError{
				Field:       "receiptId",
				Description: "receipt fields are only allowed in receipt mode",
			})
		}
	case model.ModeReceipt:
		if req.ReceiptID == nil {
			errs = append(errs, xerrors.ValidationError{Field: "receiptId", Description: "receipt mode requires a receipt id"})
		}
		for _, im := range req.ItemMembers {
			if len(im.Members) == 0 {
				errs = append(errs, xerrors.ValidationError{
					Field:       "productMemberDetails",
					Description: fmt.Sprintf("product %d has no members", im.ProductID),
				})
			}
		}
	}

	return errs
}

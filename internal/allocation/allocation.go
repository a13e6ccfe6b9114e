// Package allocation splits an integer amount across participants so that
// the shares always add up to the total.
package allocation

import (
	"fmt"
	"math/rand/v2"

	"github.com/cleared-dev/splitpay/internal/xerrors"
)

// Picker chooses which of n participants receives the remainder.
// It must return a value in [0, n).
type Picker interface {
	Pick(n int) int
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(n int) int

// Pick calls f(n).
func (f PickerFunc) Pick(n int) int { return f(n) }

// First gives the remainder to the first participant in order.
var First Picker = PickerFunc(func(int) int { return 0 })

// Random gives the remainder to a uniformly drawn participant.
var Random Picker = PickerFunc(func(n int) int { return rand.IntN(n) })

// Policy names accepted by PickerFor.
const (
	PolicyFirst  = "first"
	PolicyRandom = "random"
)

// PickerFor returns the picker for a configured policy name.
func PickerFor(policy string) (Picker, error) {
	switch policy {
	case "", PolicyFirst:
		return First, nil
	case PolicyRandom:
		return Random, nil
	default:
		return nil, fmt.Errorf("unknown remainder policy %q", policy)
	}
}

// Allocate divides total across participants. Each participant receives
// ⌊total/N⌋; the participant chosen by picker additionally receives
// total mod N. A zero total or empty participant list yields zero shares.
// The returned map is always newly allocated.
func Allocate(total int64, participants []int64, picker Picker) map[int64]int64 {
	shares := make(map[int64]int64, len(participants))
	n := len(participants)
	if n == 0 {
		return shares
	}
	if total == 0 {
		for _, p := range participants {
			shares[p] = 0
		}
		return shares
	}

	base := total / int64(n)
	remainder := total % int64(n)
	lucky := pick(picker, n)
	for i, p := range participants {
		shares[p] = base
		if i == lucky {
			shares[p] += remainder
		}
	}
	return shares
}

// AllocateChecked is Allocate with input validation: negative totals and
// duplicate participants are rejected.
func AllocateChecked(total int64, participants []int64, picker Picker) (map[int64]int64, error) {
	if total < 0 {
		return nil, xerrors.ValidationError{Field: "total", Description: fmt.Sprintf("negative total %d", total)}
	}
	seen := make(map[int64]bool, len(participants))
	for _, p := range participants {
		if seen[p] {
			return nil, xerrors.ValidationError{Field: "participants", Description: fmt.Sprintf("participant %d listed twice", p)}
		}
		seen[p] = true
	}
	return Allocate(total, participants, picker), nil
}

func pick(picker Picker, n int) int {
	if picker == nil {
		picker = First
	}
	i := picker.Pick(n)
	if i < 0 || i >= n {
		return 0
	}
	return i
}

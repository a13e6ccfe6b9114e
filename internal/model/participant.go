package model

// Participant is a member taking part in a settlement.
type Participant struct {
	ID   int64
	Name string
}

// ParticipantIDs returns the IDs of ps in order.
func ParticipantIDs(ps []Participant) []int64 {
	ids := make([]int64, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}

package engine

import "fmt"

// Stats accumulates per-outcome counts for one reconciliation run.
type Stats struct {
	CreatedA  int `json:"created_a"`
	CreatedB  int `json:"created_b"`
	UpdatedA  int `json:"updated_a"`
	UpdatedB  int `json:"updated_b"`
	Deleted   int `json:"deleted"`
	Archived  int `json:"archived"`
	Recurring int `json:"recurring_advanced"`
	Matched   int `json:"matched"`
	Adopted   int `json:"adopted"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`
}

// Writes returns the number of operations that mutated a remote side.
func (s *Stats) Writes() int {
	return s.CreatedA + s.CreatedB + s.UpdatedA + s.UpdatedB +
		s.Deleted + s.Archived + s.Recurring + s.Matched
}

// Total returns the number of identifiers that produced any outcome.
func (s *Stats) Total() int {
	return s.Writes() + s.Adopted + s.Skipped + s.Errors
}

// ErrorRate returns the fraction of outcomes that were errors, 0 when the
// run processed nothing.
func (s *Stats) ErrorRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Total())
}

func (s *Stats) String() string {
	return fmt.Sprintf(
		"a(+%d ~%d) b(+%d ~%d) deleted=%d archived=%d recurring=%d matched=%d adopted=%d skipped=%d conflicts=%d errors=%d",
		s.CreatedA, s.UpdatedA, s.CreatedB, s.UpdatedB,
		s.Deleted, s.Archived, s.Recurring, s.Matched, s.Adopted,
		s.Skipped, s.Conflicts, s.Errors)
}

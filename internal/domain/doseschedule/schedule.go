// Package doseschedule computes vaccine dose dates from a vaccine's interval
// schedule and reconciles them against recorded appointments.
//
// Everything in this package is a pure function over its inputs: no I/O, no
// shared state. Callers may run it concurrently, one course per goroutine.
package doseschedule

import "fmt"

// Schedule is a vaccine's configured course: how many doses, and how many
// days separate each dose from the one before it.
type Schedule struct {
	VaccineType string `json:"vaccine_type"`
	TotalDoses  int    `json:"total_doses"`
	// DoseIntervals[i] is the number of days between dose i+1 and dose i+2.
	DoseIntervals []int `json:"dose_intervals"`
	Active        bool  `json:"active"`
}

// Validate checks the schedule invariants. A length mismatch between
// DoseIntervals and TotalDoses is an error; it is never padded or truncated.
func (s Schedule) Validate() error {
	if s.TotalDoses < 1 {
		return &ScheduleError{VaccineType: s.VaccineType, Reason: fmt.Sprintf("total_doses must be positive, got %d", s.TotalDoses)}
	}
	if len(s.DoseIntervals) != s.TotalDoses-1 {
		return &ScheduleError{
			VaccineType: s.VaccineType,
			Reason:      fmt.Sprintf("%d dose intervals for %d doses, want %d", len(s.DoseIntervals), s.TotalDoses, s.TotalDoses-1),
		}
	}
	for i, days := range s.DoseIntervals {
		if days < 0 {
			return &ScheduleError{VaccineType: s.VaccineType, Reason: fmt.Sprintf("dose interval %d is negative (%d days)", i, days)}
		}
	}
	return nil
}

// offsets returns, for every dose index k (1-based, at position k-1), the
// number of days between the first dose and dose k. The schedule must
// already be valid.
func (s Schedule) offsets() []int {
	out := make([]int, s.TotalDoses)
	for i, days := range s.DoseIntervals {
		out[i+1] = out[i] + days
	}
	return out
}

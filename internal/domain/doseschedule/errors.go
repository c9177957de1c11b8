package doseschedule

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSchedule marks schedule data that cannot be calculated from,
	// most commonly an interval list whose length is not TotalDoses-1.
	ErrMalformedSchedule = errors.New("malformed dose schedule")

	// ErrInvalidDoseIndex marks a dose index outside [1, TotalDoses].
	ErrInvalidDoseIndex = errors.New("invalid dose index")

	// ErrNoFirstDose is returned when a course has no completed dose to anchor
	// the calculation on.
	ErrNoFirstDose = errors.New("course has no completed first dose")
)

// ScheduleError describes why a schedule was rejected.
type ScheduleError struct {
	VaccineType string
	Reason      string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("%s: vaccine %q: %s", ErrMalformedSchedule, e.VaccineType, e.Reason)
}

func (e *ScheduleError) Unwrap() error { return ErrMalformedSchedule }

// DoseIndexError reports the offending index together with the valid range.
type DoseIndexError struct {
	VaccineType string
	DoseIndex   int
	TotalDoses  int
}

func (e *DoseIndexError) Error() string {
	return fmt.Sprintf("%s: vaccine %q: dose %d outside 1..%d", ErrInvalidDoseIndex, e.VaccineType, e.DoseIndex, e.TotalDoses)
}

func (e *DoseIndexError) Unwrap() error { return ErrInvalidDoseIndex }

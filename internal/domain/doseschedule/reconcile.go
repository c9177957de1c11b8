package doseschedule

import "fmt"

// EntryState classifies one reconciled dose.
type EntryState string

const (
	StateMatch           EntryState = "match"
	StateMismatch        EntryState = "mismatch"
	StateNotYetScheduled EntryState = "not-yet-scheduled"
)

// Entry compares the expected date of one dose with the event paired to it.
type Entry struct {
	DoseIndex    int        `json:"dose_index"`
	EventID      string     `json:"event_id,omitempty"`
	EventStatus  Status     `json:"event_status,omitempty"`
	ActualDate   *Date      `json:"actual_date"`
	ExpectedDate Date       `json:"expected_date"`
	Matches      bool       `json:"matches"`
	DayOffset    int        `json:"day_offset"`
	State        EntryState `json:"state"`
}

// PairingMode selects how doses are paired with recorded events.
type PairingMode string

const (
	// PairPositional pairs dose i with the i-th event in date order.
	PairPositional PairingMode = "positional"
	// PairClosestDate pairs each dose with the unused event nearest to its
	// expected date.
	PairClosestDate PairingMode = "closest"
)

func ParsePairingMode(s string) (PairingMode, error) {
	switch PairingMode(s) {
	case "", PairPositional:
		return PairPositional, nil
	case PairClosestDate:
		return PairClosestDate, nil
	}
	return "", fmt.Errorf("unknown pairing mode %q", s)
}

type reconcileOptions struct {
	pairing     PairingMode
	unscheduled bool
}

// Option tunes Reconcile.
type Option func(*reconcileOptions)

func WithPairing(mode PairingMode) Option {
	return func(o *reconcileOptions) { o.pairing = mode }
}

// WithUnscheduled appends a not-yet-scheduled entry for every dose beyond
// the recorded events, up to the schedule's total.
func WithUnscheduled() Option {
	return func(o *reconcileOptions) { o.unscheduled = true }
}

// Reconcile pairs the course's events with the calculated dose dates.
// Entries are produced for doses 1..min(TotalDoses, events); with
// WithUnscheduled the remaining doses follow with a nil ActualDate.
func Reconcile(s Schedule, c Course, opts ...Option) ([]Entry, error) {
	o := reconcileOptions{pairing: PairPositional}
	for _, opt := range opts {
		opt(&o)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	first, ok := c.FirstDoseDate()
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.Key(), ErrNoFirstDose)
	}

	offsets := s.offsets()
	expected := make([]Date, len(offsets))
	for i, days := range offsets {
		expected[i] = first.AddDays(days)
	}

	events := c.Attendable()
	paired := min(s.TotalDoses, len(events))

	var pairs []DoseEvent
	switch o.pairing {
	case PairClosestDate:
		pairs = pairClosest(expected[:paired], events)
	default:
		pairs = events[:paired]
	}

	limit := paired
	if o.unscheduled {
		limit = s.TotalDoses
	}

	entries := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		entry := Entry{DoseIndex: i + 1, ExpectedDate: expected[i]}
		if i < paired {
			ev := pairs[i]
			actual := ev.Date
			entry.EventID = ev.ID
			entry.EventStatus = ev.Status
			entry.ActualDate = &actual
			entry.DayOffset = expected[i].DaysUntil(actual)
			entry.Matches = entry.DayOffset == 0
			entry.State = StateMismatch
			if entry.Matches {
				entry.State = StateMatch
			}
		} else {
			entry.State = StateNotYetScheduled
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// pairClosest walks doses in order and gives each the nearest unused event.
// events are sorted ascending, so a strict comparison sends ties to the
// earlier event.
func pairClosest(expected []Date, events []DoseEvent) []DoseEvent {
	used := make([]bool, len(events))
	out := make([]DoseEvent, len(expected))
	for i, want := range expected {
		best, bestDist := -1, 0
		for j, ev := range events {
			if used[j] {
				continue
			}
			dist := abs(want.DaysUntil(ev.Date))
			if best == -1 || dist < bestDist {
				best, bestDist = j, dist
			}
		}
		used[best] = true
		out[i] = events[best]
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

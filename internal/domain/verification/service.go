package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

// ScheduleSource supplies active schedules keyed by vaccine type.
type ScheduleSource interface {
	ActiveLookup(ctx context.Context) (map[string]doseschedule.Schedule, error)
}

// EventStore reads dose events and writes date corrections.
type EventStore interface {
	DoseEvents(ctx context.Context, vaccineType string) ([]doseschedule.DoseEvent, error)
	ApplyCorrection(ctx context.Context, p doseschedule.CorrectionProposal, appliedBy string) (bool, error)
}

// TxFunc runs fn in a transaction. Stores called with the ctx passed to fn
// take part in it.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

var (
	ErrNoActiveSchedule = errors.New("no active schedule for vaccine type")
	ErrInvalidProposal  = errors.New("invalid correction proposal")
	ErrPartialCourse    = errors.New("corrections must cover every proposal of a course")
)

// Options controls a verification run.
type Options struct {
	// VaccineType limits the run to one vaccine. Empty means all.
	VaccineType string
	Pairing     doseschedule.PairingMode
	// IncludeUnscheduled adds not-yet-scheduled entries for remaining doses.
	IncludeUnscheduled bool
	// Workers bounds concurrent course reconciliation. Values below 2 run
	// sequentially.
	Workers int
}

type Service struct {
	schedules ScheduleSource
	events    EventStore
	tx        TxFunc
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(schedules ScheduleSource, events EventStore, tx TxFunc, logger zerolog.Logger) *Service {
	return &Service{
		schedules: schedules,
		events:    events,
		tx:        tx,
		logger:    logger.With().Str("component", "verification").Logger(),
		now:       time.Now,
	}
}

// Verify reconciles every course against its active schedule. A failing
// course is reported as skipped and never aborts the run.
func (s *Service) Verify(ctx context.Context, opts Options) (*Report, error) {
	if opts.Pairing == "" {
		opts.Pairing = doseschedule.PairPositional
	}
	lookup, err := s.schedules.ActiveLookup(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.events.DoseEvents(ctx, opts.VaccineType)
	if err != nil {
		return nil, err
	}
	courses := doseschedule.GroupCourses(events)

	report := &Report{
		GeneratedAt: s.now().UTC(),
		VaccineType: opts.VaccineType,
		Pairing:     string(opts.Pairing),
		Courses:     make([]CourseReport, len(courses)),
	}

	if opts.Workers < 2 {
		for i, c := range courses {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.Courses[i] = s.verifyCourse(c, lookup, opts)
		}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, opts.Workers)
		for i, c := range courses {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, c doseschedule.Course) {
				defer wg.Done()
				defer func() { <-sem }()
				report.Courses[idx] = s.verifyCourse(c, lookup, opts)
			}(i, c)
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	report.summarize()
	s.logger.Info().
		Str("vaccine_type", opts.VaccineType).
		Int("courses", report.Summary.Courses).
		Int("mismatched", report.Summary.Mismatched).
		Int("skipped", report.Summary.Skipped).
		Msg("verification complete")
	return report, nil
}

func (s *Service) verifyCourse(c doseschedule.Course, lookup map[string]doseschedule.Schedule, opts Options) CourseReport {
	cr := CourseReport{
		PatientKey:  c.PatientKey,
		VaccineType: c.VaccineType,
		Entries:     []doseschedule.Entry{},
		Proposals:   []doseschedule.CorrectionProposal{},
	}
	skip := func(err error) CourseReport {
		s.logger.Warn().Err(err).
			Str("patient_key", c.PatientKey).
			Str("vaccine_type", c.VaccineType).
			Msg("course skipped")
		cr.State = CourseSkipped
		cr.Error = err.Error()
		return cr
	}

	sched, ok := lookup[c.VaccineType]
	if !ok {
		return skip(fmt.Errorf("%s: %w", c.VaccineType, ErrNoActiveSchedule))
	}
	ropts := []doseschedule.Option{doseschedule.WithPairing(opts.Pairing)}
	if opts.IncludeUnscheduled {
		ropts = append(ropts, doseschedule.WithUnscheduled())
	}
	entries, err := doseschedule.Reconcile(sched, c, ropts...)
	if err != nil {
		return skip(err)
	}
	first, _ := c.FirstDoseDate()
	next, err := doseschedule.CalculateNextDueDate(sched, first, c.DosesReceived())
	if err != nil {
		return skip(err)
	}

	cr.Entries = entries
	cr.NextDueDate = next
	cr.Proposals = append(cr.Proposals, doseschedule.PlanCorrections(entries, c.Events)...)
	cr.State = CourseOK
	for _, e := range entries {
		if e.State == doseschedule.StateMismatch {
			cr.State = CourseMismatch
			break
		}
	}
	return cr
}

func checkProposals(proposals []doseschedule.CorrectionProposal) error {
	type course struct {
		want   int
		events map[string]struct{}
	}
	courses := make(map[string]*course)
	var order []string
	for _, p := range proposals {
		if p.EventID == "" || p.CurrentDate.IsZero() || p.CorrectDate.IsZero() || p.CourseProposals < 1 {
			return fmt.Errorf("%w: event %q", ErrInvalidProposal, p.EventID)
		}
		key := p.CourseKey()
		c, ok := courses[key]
		if !ok {
			c = &course{want: p.CourseProposals, events: make(map[string]struct{})}
			courses[key] = c
			order = append(order, key)
		}
		if c.want != p.CourseProposals {
			return fmt.Errorf("%w: course %s has conflicting plan sizes", ErrInvalidProposal, key)
		}
		c.events[p.EventID] = struct{}{}
	}
	for _, key := range order {
		c := courses[key]
		if len(c.events) != c.want {
			return fmt.Errorf("%w: course %s has %d of %d", ErrPartialCourse, key, len(c.events), c.want)
		}
	}
	return nil
}

// ApplyResult lists which proposals were written and which were stale.
type ApplyResult struct {
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped"`
}

// ApplyCorrections writes approved proposals in one transaction. A proposal
// whose appointment is no longer scheduled or pending, or no longer on its
// CurrentDate, is skipped. Any other error rolls back the whole batch.
//
// Every course in the batch must come with all of its planned proposals;
// otherwise ErrPartialCourse is returned and nothing is written.
func (s *Service) ApplyCorrections(ctx context.Context, proposals []doseschedule.CorrectionProposal, appliedBy string) (*ApplyResult, error) {
	if err := checkProposals(proposals); err != nil {
		return nil, err
	}

	res := &ApplyResult{Applied: []string{}, Skipped: []string{}}
	err := s.tx(ctx, func(ctx context.Context) error {
		res.Applied = res.Applied[:0]
		res.Skipped = res.Skipped[:0]
		for _, p := range proposals {
			applied, err := s.events.ApplyCorrection(ctx, p, appliedBy)
			if err != nil {
				return fmt.Errorf("apply correction %s: %w", p.EventID, err)
			}
			if applied {
				res.Applied = append(res.Applied, p.EventID)
			} else {
				res.Skipped = append(res.Skipped, p.EventID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range res.Skipped {
		s.logger.Info().Str("event_id", id).Msg("stale correction skipped")
	}
	s.logger.Info().
		Int("applied", len(res.Applied)).
		Int("skipped", len(res.Skipped)).
		Str("applied_by", appliedBy).
		Msg("corrections applied")
	return res, nil
}

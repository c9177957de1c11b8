package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

// =========== Fakes ===========

type fakeSchedules map[string]doseschedule.Schedule

func (f fakeSchedules) ActiveLookup(context.Context) (map[string]doseschedule.Schedule, error) {
	return f, nil
}

type fakeEvents struct {
	events  []doseschedule.DoseEvent
	failOn  string
	applied []doseschedule.CorrectionProposal
}

func (f *fakeEvents) DoseEvents(_ context.Context, vaccineType string) ([]doseschedule.DoseEvent, error) {
	var out []doseschedule.DoseEvent
	for _, e := range f.events {
		if vaccineType == "" || e.VaccineType == vaccineType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) ApplyCorrection(_ context.Context, p doseschedule.CorrectionProposal, _ string) (bool, error) {
	if p.EventID == f.failOn {
		return false, errors.New("boom")
	}
	for _, e := range f.events {
		if e.ID != p.EventID {
			continue
		}
		if !e.Status.Correctable() || !e.Date.Equal(p.CurrentDate) {
			return false, nil
		}
		f.events = doseschedule.ApplyCorrection(f.events, p)
		f.applied = append(f.applied, p)
		return true, nil
	}
	return false, fmt.Errorf("event %s not found", p.EventID)
}

// fakeTx snapshots events and restores them when fn fails.
func fakeTx(f *fakeEvents) TxFunc {
	return func(ctx context.Context, fn func(context.Context) error) error {
		saved := append([]doseschedule.DoseEvent(nil), f.events...)
		savedApplied := len(f.applied)
		if err := fn(ctx); err != nil {
			f.events = saved
			f.applied = f.applied[:savedApplied]
			return err
		}
		return nil
	}
}

func d(s string) doseschedule.Date { return doseschedule.MustParseDate(s) }

func ev(id, patient, vaccine, date string, status doseschedule.Status) doseschedule.DoseEvent {
	return doseschedule.DoseEvent{ID: id, PatientKey: patient, VaccineType: vaccine, Date: d(date), Status: status}
}

var testSchedules = fakeSchedules{
	"HepB": {VaccineType: "HepB", TotalDoses: 3, DoseIntervals: []int{28, 180}, Active: true},
	"HPV":  {VaccineType: "HPV", TotalDoses: 2, DoseIntervals: []int{180}, Active: true},
}

func testEvents() *fakeEvents {
	return &fakeEvents{events: []doseschedule.DoseEvent{
		// HN001 HepB: second dose booked 8 days late.
		ev("a1", "HN001", "HepB", "2024-01-15", doseschedule.StatusCompleted),
		ev("a2", "HN001", "HepB", "2024-02-20", doseschedule.StatusScheduled),
		// HN002 HepB: on schedule.
		ev("b1", "HN002", "HepB", "2024-01-15", doseschedule.StatusCompleted),
		ev("b2", "HN002", "HepB", "2024-02-12", doseschedule.StatusPending),
		// HN003 HPV: nothing completed yet.
		ev("c1", "HN003", "HPV", "2024-03-01", doseschedule.StatusScheduled),
		// HN004 Rabies: no schedule configured.
		ev("d1", "HN004", "Rabies", "2024-03-01", doseschedule.StatusCompleted),
	}}
}

func newTestService(f *fakeEvents, buf *bytes.Buffer) *Service {
	return NewService(testSchedules, f, fakeTx(f), zerolog.New(buf))
}

func findCourse(t *testing.T, r *Report, patient, vaccine string) CourseReport {
	t.Helper()
	for _, c := range r.Courses {
		if c.PatientKey == patient && c.VaccineType == vaccine {
			return c
		}
	}
	t.Fatalf("course %s/%s not in report", patient, vaccine)
	return CourseReport{}
}

// =========== Verify ===========

func TestService_Verify(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(testEvents(), &buf)

	r, err := svc.Verify(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Summary{Courses: 4, Matching: 1, Mismatched: 1, Skipped: 2, Proposals: 1}
	if r.Summary != want {
		t.Errorf("expected summary %+v, got %+v", want, r.Summary)
	}
	if r.Pairing != "positional" {
		t.Errorf("expected positional pairing, got %s", r.Pairing)
	}

	late := findCourse(t, r, "HN001", "HepB")
	if late.State != CourseMismatch {
		t.Errorf("expected mismatch, got %s", late.State)
	}
	if len(late.Proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(late.Proposals))
	}
	p := late.Proposals[0]
	if p.EventID != "a2" || p.CorrectDate.String() != "2024-02-12" || p.DayOffset != 8 {
		t.Errorf("unexpected proposal %+v", p)
	}
	if late.NextDueDate == nil || late.NextDueDate.String() != "2024-02-12" {
		t.Errorf("expected next due 2024-02-12, got %v", late.NextDueDate)
	}

	ok := findCourse(t, r, "HN002", "HepB")
	if ok.State != CourseOK || len(ok.Proposals) != 0 {
		t.Errorf("expected ok course without proposals, got %+v", ok)
	}
}

func TestService_Verify_SkipsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(testEvents(), &buf)

	r, err := svc.Verify(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	noFirst := findCourse(t, r, "HN003", "HPV")
	if noFirst.State != CourseSkipped || !strings.Contains(noFirst.Error, doseschedule.ErrNoFirstDose.Error()) {
		t.Errorf("expected no-first-dose skip, got %+v", noFirst)
	}
	unknown := findCourse(t, r, "HN004", "Rabies")
	if unknown.State != CourseSkipped || !strings.Contains(unknown.Error, ErrNoActiveSchedule.Error()) {
		t.Errorf("expected unknown-schedule skip, got %+v", unknown)
	}
	if n := strings.Count(buf.String(), `"message":"course skipped"`); n != 2 {
		t.Errorf("expected 2 skip log lines, got %d: %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"patient_key":"HN004"`) {
		t.Error("expected patient_key in skip log")
	}
}

func TestService_Verify_FilterByVaccine(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(testEvents(), &buf)

	r, err := svc.Verify(context.Background(), Options{VaccineType: "HepB"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Summary.Courses != 2 {
		t.Errorf("expected 2 HepB courses, got %d", r.Summary.Courses)
	}
}

func TestService_Verify_Unscheduled(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(testEvents(), &buf)

	r, _ := svc.Verify(context.Background(), Options{VaccineType: "HepB", IncludeUnscheduled: true})
	c := findCourse(t, r, "HN002", "HepB")
	if len(c.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(c.Entries))
	}
	last := c.Entries[2]
	if last.ActualDate != nil || last.State != doseschedule.StateNotYetScheduled || last.ExpectedDate.String() != "2024-08-10" {
		t.Errorf("unexpected trailing entry %+v", last)
	}
	if c.State != CourseOK {
		t.Errorf("not-yet-scheduled doses must not count as mismatch, got %s", c.State)
	}
}

func TestService_Verify_WorkersMatchSequential(t *testing.T) {
	f := &fakeEvents{}
	for i := 0; i < 50; i++ {
		pk := fmt.Sprintf("HN%03d", i)
		f.events = append(f.events,
			ev(pk+"-1", pk, "HepB", "2024-01-15", doseschedule.StatusCompleted),
			ev(pk+"-2", pk, "HepB", fmt.Sprintf("2024-02-%02d", 1+i%28), doseschedule.StatusScheduled),
		)
	}
	var buf bytes.Buffer
	svc := newTestService(f, &buf)

	seq, err := svc.Verify(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	par, err := svc.Verify(context.Background(), Options{Workers: 8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seq.Summary != par.Summary {
		t.Errorf("summaries differ: %+v vs %+v", seq.Summary, par.Summary)
	}
	for i := range seq.Courses {
		if seq.Courses[i].PatientKey != par.Courses[i].PatientKey || seq.Courses[i].State != par.Courses[i].State {
			t.Fatalf("course %d differs", i)
		}
	}
}

func TestService_Verify_Cancelled(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(testEvents(), &buf)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Verify(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// =========== ApplyCorrections ===========

func TestService_ApplyCorrections(t *testing.T) {
	var buf bytes.Buffer
	f := testEvents()
	svc := newTestService(f, &buf)

	r, _ := svc.Verify(context.Background(), Options{})
	res, err := svc.ApplyCorrections(context.Background(), r.Proposals(), "nurse01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 1 || res.Applied[0] != "a2" {
		t.Errorf("expected a2 applied, got %+v", res)
	}

	after, _ := svc.Verify(context.Background(), Options{})
	if after.Summary.Mismatched != 0 || after.Summary.Proposals != 0 {
		t.Errorf("expected clean report after corrections, got %+v", after.Summary)
	}

	// Re-applying the same proposals is a no-op.
	res, err = svc.ApplyCorrections(context.Background(), r.Proposals(), "nurse01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 0 || len(res.Skipped) != 1 {
		t.Errorf("expected stale skip, got %+v", res)
	}
}

func TestService_ApplyCorrections_RollsBack(t *testing.T) {
	var buf bytes.Buffer
	f := testEvents()
	f.events = append(f.events,
		ev("e1", "HN005", "HepB", "2024-01-15", doseschedule.StatusCompleted),
		ev("e2", "HN005", "HepB", "2024-02-01", doseschedule.StatusScheduled),
	)
	f.failOn = "e2"
	svc := newTestService(f, &buf)

	r, _ := svc.Verify(context.Background(), Options{})
	if _, err := svc.ApplyCorrections(context.Background(), r.Proposals(), "nurse01"); err == nil {
		t.Fatal("expected error")
	}
	for _, e := range f.events {
		if e.ID == "a2" && e.Date.String() != "2024-02-20" {
			t.Errorf("expected a2 rolled back, got %s", e.Date)
		}
	}
}

func TestService_ApplyCorrections_InvalidProposal(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(testEvents(), &buf)
	_, err := svc.ApplyCorrections(context.Background(), []doseschedule.CorrectionProposal{{EventID: "a2"}}, "x")
	if !errors.Is(err, ErrInvalidProposal) {
		t.Errorf("expected ErrInvalidProposal, got %v", err)
	}
}

func TestService_ApplyCorrections_WholeCourseOnly(t *testing.T) {
	var buf bytes.Buffer
	f := testEvents()
	f.events = append(f.events,
		ev("e1", "HN005", "HepB", "2024-01-15", doseschedule.StatusCompleted),
		ev("e2", "HN005", "HepB", "2024-02-01", doseschedule.StatusScheduled),
		ev("e3", "HN005", "HepB", "2024-02-05", doseschedule.StatusScheduled),
	)
	svc := newTestService(f, &buf)

	r, _ := svc.Verify(context.Background(), Options{VaccineType: "HepB"})
	course := findCourse(t, r, "HN005", "HepB")
	if len(course.Proposals) != 2 {
		t.Fatalf("expected 2 proposals, got %+v", course.Proposals)
	}

	_, err := svc.ApplyCorrections(context.Background(), course.Proposals[:1], "nurse01")
	if !errors.Is(err, ErrPartialCourse) {
		t.Fatalf("expected ErrPartialCourse, got %v", err)
	}
	if len(f.applied) != 0 {
		t.Errorf("partial course must not be written, got %d", len(f.applied))
	}

	res, err := svc.ApplyCorrections(context.Background(), course.Proposals, "nurse01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Applied) != 2 {
		t.Errorf("expected both proposals applied, got %+v", res)
	}
	after, _ := svc.Verify(context.Background(), Options{VaccineType: "HepB"})
	if c := findCourse(t, after, "HN005", "HepB"); c.State != CourseOK {
		t.Errorf("expected course to match after corrections, got %+v", c.Entries)
	}
}

func TestService_ApplyCorrections_MissingPlanSize(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(testEvents(), &buf)
	p := doseschedule.CorrectionProposal{
		EventID: "a2", PatientKey: "HN001", VaccineType: "HepB",
		CurrentDate: d("2024-02-20"), CorrectDate: d("2024-02-12"),
	}
	if _, err := svc.ApplyCorrections(context.Background(), []doseschedule.CorrectionProposal{p}, "x"); !errors.Is(err, ErrInvalidProposal) {
		t.Errorf("expected ErrInvalidProposal, got %v", err)
	}
}

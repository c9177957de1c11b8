package doseschedule

import (
	"errors"
	"testing"
)

func ev(id, date string, status Status) DoseEvent {
	return DoseEvent{ID: id, PatientKey: "HN0001", VaccineType: "HEPB", Date: MustParseDate(date), Status: status}
}

func TestReconcile_AllMatching(t *testing.T) {
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("a", "2024-01-15", StatusCompleted),
		ev("b", "2024-02-12", StatusCompleted),
		ev("c", "2024-08-10", StatusScheduled),
	})
	entries, err := Reconcile(hepB(), course)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if !e.Matches || e.DayOffset != 0 || e.State != StateMatch {
			t.Errorf("dose %d: expected match, got %+v", e.DoseIndex, e)
		}
	}
}

func TestReconcile_MismatchOffset(t *testing.T) {
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("b", "2024-02-20", StatusScheduled),
		ev("a", "2024-01-15", StatusCompleted),
	})
	entries, err := Reconcile(hepB(), course)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	dose2 := entries[1]
	if dose2.Matches {
		t.Error("expected dose 2 to mismatch")
	}
	if dose2.DayOffset != 8 {
		t.Errorf("day offset = %d, want +8", dose2.DayOffset)
	}
	if dose2.ExpectedDate.String() != "2024-02-12" || dose2.ActualDate.String() != "2024-02-20" {
		t.Errorf("unexpected dates: expected %s actual %s", dose2.ExpectedDate, dose2.ActualDate)
	}
	if dose2.EventID != "b" || dose2.State != StateMismatch {
		t.Errorf("unexpected pairing: %+v", dose2)
	}
}

func TestReconcile_EarlyAppointmentNegativeOffset(t *testing.T) {
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("a", "2024-01-15", StatusCompleted),
		ev("b", "2024-02-10", StatusScheduled),
	})
	entries, err := Reconcile(hepB(), course)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[1].DayOffset != -2 {
		t.Errorf("day offset = %d, want -2", entries[1].DayOffset)
	}
}

func TestReconcile_LimitedByTotalDoses(t *testing.T) {
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("a", "2024-01-15", StatusCompleted),
		ev("b", "2024-02-12", StatusCompleted),
		ev("c", "2024-08-10", StatusCompleted),
		ev("d", "2025-01-01", StatusScheduled),
	})
	entries, err := Reconcile(hepB(), course)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected entries capped at 3 doses, got %d", len(entries))
	}
}

func TestReconcile_CancelledEventsSkipped(t *testing.T) {
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("a", "2024-01-15", StatusCompleted),
		ev("x", "2024-02-01", StatusCancelled),
		ev("b", "2024-02-12", StatusScheduled),
	})
	entries, err := Reconcile(hepB(), course)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].EventID != "b" || !entries[1].Matches {
		t.Errorf("expected dose 2 paired with b and matching, got %+v", entries[1])
	}
}

func TestReconcile_WithUnscheduled(t *testing.T) {
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("a", "2024-01-15", StatusCompleted),
	})
	entries, err := Reconcile(hepB(), course, WithUnscheduled())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for _, e := range entries[1:] {
		if e.ActualDate != nil || e.State != StateNotYetScheduled || e.Matches || e.DayOffset != 0 {
			t.Errorf("dose %d: expected not-yet-scheduled, got %+v", e.DoseIndex, e)
		}
	}
	if entries[2].ExpectedDate.String() != "2024-08-10" {
		t.Errorf("dose 3 expected %s, want 2024-08-10", entries[2].ExpectedDate)
	}
}

func TestReconcile_NoFirstDose(t *testing.T) {
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("a", "2024-01-15", StatusScheduled),
	})
	_, err := Reconcile(hepB(), course)
	if !errors.Is(err, ErrNoFirstDose) {
		t.Errorf("expected ErrNoFirstDose, got %v", err)
	}
}

func TestReconcile_MalformedSchedule(t *testing.T) {
	s := Schedule{VaccineType: "HEPB", TotalDoses: 3, DoseIntervals: []int{28}}
	course := NewCourse("HN0001", "HEPB", []DoseEvent{ev("a", "2024-01-15", StatusCompleted)})
	entries, err := Reconcile(s, course)
	if !errors.Is(err, ErrMalformedSchedule) {
		t.Fatalf("expected ErrMalformedSchedule, got %v", err)
	}
	if entries != nil {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestReconcile_PositionalVsClosest(t *testing.T) {
	// Dose 2 was skipped and an unrelated early booking sits before the real
	// dose-2 appointment.
	s := Schedule{VaccineType: "HEPB", TotalDoses: 3, DoseIntervals: []int{30, 30}}
	course := NewCourse("HN0001", "HEPB", []DoseEvent{
		ev("a", "2024-01-01", StatusCompleted),
		ev("early", "2024-01-05", StatusScheduled),
		ev("dose2", "2024-01-31", StatusScheduled),
	})

	positional, err := Reconcile(s, course)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if positional[1].EventID != "early" {
		t.Errorf("positional: dose 2 paired with %s, want early", positional[1].EventID)
	}

	closest, err := Reconcile(s, course, WithPairing(PairClosestDate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closest[1].EventID != "dose2" || !closest[1].Matches {
		t.Errorf("closest: dose 2 = %+v, want dose2 matching", closest[1])
	}
	if closest[2].EventID != "early" {
		t.Errorf("closest: dose 3 paired with %s, want early", closest[2].EventID)
	}
}

func TestParsePairingMode(t *testing.T) {
	for in, want := range map[string]PairingMode{"": PairPositional, "positional": PairPositional, "closest": PairClosestDate} {
		got, err := ParsePairingMode(in)
		if err != nil || got != want {
			t.Errorf("ParsePairingMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePairingMode("nearest"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestGroupCourses(t *testing.T) {
	events := []DoseEvent{
		{ID: "3", PatientKey: "HN2", VaccineType: "HPV", Date: MustParseDate("2024-03-01"), Status: StatusCompleted},
		{ID: "1", PatientKey: "HN1", VaccineType: "HEPB", Date: MustParseDate("2024-02-12"), Status: StatusScheduled},
		{ID: "2", PatientKey: "HN1", VaccineType: "HEPB", Date: MustParseDate("2024-01-15"), Status: StatusCompleted},
		{ID: "4", PatientKey: "HN1", VaccineType: "FLU", Date: MustParseDate("2024-01-20"), Status: StatusCompleted},
	}
	courses := GroupCourses(events)
	if len(courses) != 3 {
		t.Fatalf("expected 3 courses, got %d", len(courses))
	}
	wantKeys := []string{"HN1/FLU", "HN1/HEPB", "HN2/HPV"}
	for i, k := range wantKeys {
		if courses[i].Key() != k {
			t.Errorf("course %d = %s, want %s", i, courses[i].Key(), k)
		}
	}
	hep := courses[1]
	if hep.Events[0].ID != "2" || hep.Events[1].ID != "1" {
		t.Errorf("expected events sorted by date, got %+v", hep.Events)
	}
	first, ok := hep.FirstDoseDate()
	if !ok || first.String() != "2024-01-15" {
		t.Errorf("first dose = %s, %v", first, ok)
	}
	if hep.DosesReceived() != 1 {
		t.Errorf("doses received = %d, want 1", hep.DosesReceived())
	}
	if hep.IsComplete(hepB()) {
		t.Error("expected course to be incomplete")
	}
}

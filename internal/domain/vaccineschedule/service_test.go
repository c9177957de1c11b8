package vaccineschedule

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/internal/platform/db"
)

// =========== Mock Repository ===========

type mockScheduleRepo struct {
	store map[string]*VaccineSchedule
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{store: make(map[string]*VaccineSchedule)}
}

func (m *mockScheduleRepo) Create(_ context.Context, v *VaccineSchedule) error {
	v.ID = uuid.New()
	m.store[v.VaccineType] = v
	return nil
}

func (m *mockScheduleRepo) GetByVaccineType(_ context.Context, vaccineType string) (*VaccineSchedule, error) {
	v, ok := m.store[vaccineType]
	if !ok {
		return nil, db.ErrNotFound
	}
	return v, nil
}

func (m *mockScheduleRepo) Update(_ context.Context, v *VaccineSchedule) error {
	if _, ok := m.store[v.VaccineType]; !ok {
		return db.ErrNotFound
	}
	m.store[v.VaccineType] = v
	return nil
}

func (m *mockScheduleRepo) SetActive(_ context.Context, vaccineType string, active bool) error {
	v, ok := m.store[vaccineType]
	if !ok {
		return db.ErrNotFound
	}
	v.Active = active
	return nil
}

func (m *mockScheduleRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]*VaccineSchedule, int, error) {
	var result []*VaccineSchedule
	for _, v := range m.sorted() {
		if activeOnly && !v.Active {
			continue
		}
		result = append(result, v)
	}
	return result, len(result), nil
}

func (m *mockScheduleRepo) ListActive(ctx context.Context) ([]*VaccineSchedule, error) {
	items, _, err := m.List(ctx, true, 0, 0)
	return items, err
}

func (m *mockScheduleRepo) sorted() []*VaccineSchedule {
	out := make([]*VaccineSchedule, 0, len(m.store))
	for _, v := range m.store {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VaccineType < out[j].VaccineType })
	return out
}

func newTestService() *Service {
	return NewService(newMockScheduleRepo())
}

func hepB() *VaccineSchedule {
	return &VaccineSchedule{VaccineType: "HepB", DisplayName: "Hepatitis B", TotalDoses: 3, DoseIntervals: []int{28, 180}, Active: true}
}

// =========== Tests ===========

func TestService_Create(t *testing.T) {
	svc := newTestService()
	v := hepB()
	if err := svc.Create(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
}

func TestService_Create_TrimsVaccineType(t *testing.T) {
	svc := newTestService()
	v := hepB()
	v.VaccineType = "  HepB "
	if err := svc.Create(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(context.Background(), "HepB"); err != nil {
		t.Errorf("expected trimmed key to be stored: %v", err)
	}
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		v    *VaccineSchedule
		want error
	}{
		{"missing type", &VaccineSchedule{TotalDoses: 1}, ErrInvalidInput},
		{"zero doses", &VaccineSchedule{VaccineType: "X", TotalDoses: 0}, doseschedule.ErrMalformedSchedule},
		{"short intervals", &VaccineSchedule{VaccineType: "X", TotalDoses: 3, DoseIntervals: []int{28}}, doseschedule.ErrMalformedSchedule},
		{"long intervals", &VaccineSchedule{VaccineType: "X", TotalDoses: 2, DoseIntervals: []int{28, 30}}, doseschedule.ErrMalformedSchedule},
		{"negative interval", &VaccineSchedule{VaccineType: "X", TotalDoses: 2, DoseIntervals: []int{-1}}, doseschedule.ErrMalformedSchedule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestService().Create(context.Background(), tt.v)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_Create_SingleDose(t *testing.T) {
	svc := newTestService()
	v := &VaccineSchedule{VaccineType: "Flu", TotalDoses: 1, Active: true}
	if err := svc.Create(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.DoseIntervals == nil {
		t.Error("expected empty, non-nil intervals")
	}
}

func TestService_Get_NotFound(t *testing.T) {
	_, err := newTestService().Get(context.Background(), "nope")
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestService_Update(t *testing.T) {
	svc := newTestService()
	svc.Create(context.Background(), hepB())

	upd := hepB()
	upd.DoseIntervals = []int{30, 150}
	if err := svc.Update(context.Background(), upd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.Get(context.Background(), "HepB")
	if got.DoseIntervals[0] != 30 {
		t.Errorf("expected interval 30, got %d", got.DoseIntervals[0])
	}
}

func TestService_Update_Malformed(t *testing.T) {
	svc := newTestService()
	svc.Create(context.Background(), hepB())

	upd := hepB()
	upd.DoseIntervals = []int{30}
	if err := svc.Update(context.Background(), upd); !errors.Is(err, doseschedule.ErrMalformedSchedule) {
		t.Errorf("expected ErrMalformedSchedule, got %v", err)
	}
}

func TestService_Update_NotFound(t *testing.T) {
	err := newTestService().Update(context.Background(), hepB())
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestService_Deactivate(t *testing.T) {
	svc := newTestService()
	svc.Create(context.Background(), hepB())
	if err := svc.Deactivate(context.Background(), "HepB"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.Get(context.Background(), "HepB")
	if got.Active {
		t.Error("expected schedule to be inactive")
	}
	if err := svc.Deactivate(context.Background(), "nope"); !errors.Is(err, ErrScheduleNotFound) {
		t.Errorf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestService_ActiveLookup(t *testing.T) {
	repo := newMockScheduleRepo()
	svc := NewService(repo)
	svc.Create(context.Background(), hepB())
	svc.Create(context.Background(), &VaccineSchedule{VaccineType: "HPV", TotalDoses: 2, DoseIntervals: []int{180}, Active: false})
	// A row that bypassed validation.
	repo.store["Bad"] = &VaccineSchedule{VaccineType: "Bad", TotalDoses: 3, DoseIntervals: []int{1}, Active: true}

	lookup, err := svc.ActiveLookup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lookup) != 1 {
		t.Fatalf("expected 1 active schedule, got %d", len(lookup))
	}
	if s, ok := lookup["HepB"]; !ok || s.TotalDoses != 3 {
		t.Errorf("expected HepB in lookup, got %+v", lookup)
	}
}

func TestService_Calculate(t *testing.T) {
	svc := newTestService()
	svc.Create(context.Background(), hepB())

	res, err := svc.Calculate(context.Background(), "HepB", doseschedule.MustParseDate("2024-01-15"), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NextDueDate == nil || res.NextDueDate.String() != "2024-02-12" {
		t.Errorf("expected next due 2024-02-12, got %v", res.NextDueDate)
	}
	if got := res.ExpectedDates[2].String(); got != "2024-08-10" {
		t.Errorf("expected dose 3 on 2024-08-10, got %s", got)
	}
}

func TestService_Calculate_Inactive(t *testing.T) {
	svc := newTestService()
	v := hepB()
	v.Active = false
	svc.Create(context.Background(), v)

	_, err := svc.Calculate(context.Background(), "HepB", doseschedule.MustParseDate("2024-01-15"), 0)
	if !errors.Is(err, ErrScheduleInactive) {
		t.Errorf("expected ErrScheduleInactive, got %v", err)
	}
}

func TestVaccineSchedule_DoseScheduleCopiesIntervals(t *testing.T) {
	v := hepB()
	s := v.DoseSchedule()
	s.DoseIntervals[0] = 1
	if v.DoseIntervals[0] != 28 {
		t.Error("expected DoseSchedule to copy intervals")
	}
}

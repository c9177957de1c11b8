package vaccineschedule

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/internal/platform/db"
)

var (
	ErrScheduleNotFound = errors.New("vaccine schedule not found")
	ErrScheduleInactive = errors.New("vaccine schedule is inactive")
	ErrInvalidInput     = errors.New("invalid vaccine schedule")
)

type Service struct {
	schedules Repository
}

func NewService(repo Repository) *Service {
	return &Service{schedules: repo}
}

func (s *Service) Create(ctx context.Context, v *VaccineSchedule) error {
	v.VaccineType = strings.TrimSpace(v.VaccineType)
	if v.VaccineType == "" {
		return fmt.Errorf("%w: vaccine_type is required", ErrInvalidInput)
	}
	if v.DoseIntervals == nil {
		v.DoseIntervals = []int{}
	}
	if err := v.DoseSchedule().Validate(); err != nil {
		return err
	}
	return s.schedules.Create(ctx, v)
}

func (s *Service) Get(ctx context.Context, vaccineType string) (*VaccineSchedule, error) {
	v, err := s.schedules.GetByVaccineType(ctx, vaccineType)
	if err != nil {
		return nil, notFound(err, vaccineType)
	}
	return v, nil
}

// Update replaces display name, dose count and intervals. The vaccine type is
// the natural key and cannot change.
func (s *Service) Update(ctx context.Context, v *VaccineSchedule) error {
	if v.DoseIntervals == nil {
		v.DoseIntervals = []int{}
	}
	if err := v.DoseSchedule().Validate(); err != nil {
		return err
	}
	return notFound(s.schedules.Update(ctx, v), v.VaccineType)
}

func (s *Service) Deactivate(ctx context.Context, vaccineType string) error {
	return notFound(s.schedules.SetActive(ctx, vaccineType, false), vaccineType)
}

func (s *Service) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*VaccineSchedule, int, error) {
	return s.schedules.List(ctx, activeOnly, limit, offset)
}

// ActiveLookup returns every active schedule keyed by vaccine type. Rows that
// fail validation are left out so a bad row cannot poison a batch run.
func (s *Service) ActiveLookup(ctx context.Context) (map[string]doseschedule.Schedule, error) {
	rows, err := s.schedules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	out := make(map[string]doseschedule.Schedule, len(rows))
	for _, v := range rows {
		sch := v.DoseSchedule()
		if sch.Validate() != nil || !sch.Active {
			continue
		}
		out[v.VaccineType] = sch
	}
	return out, nil
}

// Calculate runs the dose date calculator against a stored schedule.
func (s *Service) Calculate(ctx context.Context, vaccineType string, first doseschedule.Date, dosesReceived int) (*doseschedule.Result, error) {
	v, err := s.Get(ctx, vaccineType)
	if err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, fmt.Errorf("%s: %w", vaccineType, ErrScheduleInactive)
	}
	return doseschedule.Calculate(v.DoseSchedule(), first, dosesReceived)
}

func notFound(err error, vaccineType string) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%s: %w", vaccineType, ErrScheduleNotFound)
	}
	return err
}

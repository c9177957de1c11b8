package vaccineschedule

import "context"

type Repository interface {
	Create(ctx context.Context, v *VaccineSchedule) error
	GetByVaccineType(ctx context.Context, vaccineType string) (*VaccineSchedule, error)
	Update(ctx context.Context, v *VaccineSchedule) error
	SetActive(ctx context.Context, vaccineType string, active bool) error
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*VaccineSchedule, int, error)
	ListActive(ctx context.Context) ([]*VaccineSchedule, error)
}

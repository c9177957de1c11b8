package vaccineschedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

// VaccineSchedule maps to the vaccine_schedules table.
type VaccineSchedule struct {
	ID            uuid.UUID `db:"id" json:"id"`
	VaccineType   string    `db:"vaccine_type" json:"vaccine_type"`
	DisplayName   string    `db:"display_name" json:"display_name"`
	TotalDoses    int       `db:"total_doses" json:"total_doses"`
	DoseIntervals []int     `db:"dose_intervals" json:"dose_intervals"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// DoseSchedule returns the calculator's view of the row.
func (v *VaccineSchedule) DoseSchedule() doseschedule.Schedule {
	intervals := make([]int, len(v.DoseIntervals))
	copy(intervals, v.DoseIntervals)
	return doseschedule.Schedule{
		VaccineType:   v.VaccineType,
		TotalDoses:    v.TotalDoses,
		DoseIntervals: intervals,
		Active:        v.Active,
	}
}

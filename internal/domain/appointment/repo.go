package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByKey(ctx context.Context, key string) (*Patient, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetForUpdate locks the row for the rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	ListByVaccineType(ctx context.Context, vaccineType string, limit, offset int) ([]*Appointment, int, error)
	// ListForReconcile returns every appointment of a vaccine type, or of all
	// types when vaccineType is empty.
	ListForReconcile(ctx context.Context, vaccineType string) ([]*Appointment, error)
	ListDueBetween(ctx context.Context, from, to doseschedule.Date) ([]*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status doseschedule.Status) error
	UpdateDate(ctx context.Context, id uuid.UUID, date doseschedule.Date) error
	RecordCorrection(ctx context.Context, c *Correction) error
}

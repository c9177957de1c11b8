package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/internal/platform/db"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrPatientNotFound         = errors.New("patient not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNotReschedulable        = errors.New("appointment cannot be rescheduled")
	ErrInvalidInput            = errors.New("invalid appointment")
)

// transitions lists the statuses reachable from each status. Completed and
// cancelled are terminal.
var transitions = map[doseschedule.Status][]doseschedule.Status{
	doseschedule.StatusPending:   {doseschedule.StatusScheduled, doseschedule.StatusCompleted, doseschedule.StatusCancelled},
	doseschedule.StatusScheduled: {doseschedule.StatusCompleted, doseschedule.StatusCancelled},
}

func canTransition(from, to doseschedule.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Service struct {
	patients     PatientRepository
	appointments AppointmentRepository
}

func NewService(patients PatientRepository, appointments AppointmentRepository) *Service {
	return &Service{patients: patients, appointments: appointments}
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.HN = trimmed(p.HN)
	p.LineUserID = trimmed(p.LineUserID)
	p.Phone = trimmed(p.Phone)
	if p.HN == nil && p.LineUserID == nil {
		return fmt.Errorf("%w: hn or line_user_id is required", ErrInvalidInput)
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

// -- Appointment --

// Book creates an appointment. Status defaults to scheduled.
func (s *Service) Book(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil {
		return fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	a.VaccineType = strings.TrimSpace(a.VaccineType)
	if a.VaccineType == "" {
		return fmt.Errorf("%w: vaccine_type is required", ErrInvalidInput)
	}
	if a.AppointmentDate.IsZero() {
		return fmt.Errorf("%w: appointment_date is required", ErrInvalidInput)
	}
	if a.DoseNumber != nil && *a.DoseNumber < 1 {
		return fmt.Errorf("%w: dose_number must be positive", ErrInvalidInput)
	}
	if a.Status == "" {
		a.Status = doseschedule.StatusScheduled
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, a.Status)
	}
	p, err := s.GetPatient(ctx, a.PatientID)
	if err != nil {
		return err
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return err
	}
	a.PatientHN, a.PatientLineUserID, a.PatientName, a.PatientPhone = p.HN, p.LineUserID, p.FullName, p.Phone
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrAppointmentNotFound
	}
	return a, err
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByVaccineType(ctx context.Context, vaccineType string, limit, offset int) ([]*Appointment, int, error) {
	return s.appointments.ListByVaccineType(ctx, vaccineType, limit, offset)
}

// SetStatus moves an appointment along its lifecycle.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, to doseschedule.Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, to)
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(a.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, to)
	}
	if err := s.appointments.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}
	a.Status = to
	return a, nil
}

// Reschedule moves a scheduled or pending appointment to a new date.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date doseschedule.Date) (*Appointment, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.Correctable() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReschedulable, a.Status)
	}
	if err := s.appointments.UpdateDate(ctx, id, date); err != nil {
		return nil, err
	}
	a.AppointmentDate = date
	return a, nil
}

// DoseEvents returns every appointment of a vaccine type (all types when
// empty) as dose events for reconciliation.
func (s *Service) DoseEvents(ctx context.Context, vaccineType string) ([]doseschedule.DoseEvent, error) {
	rows, err := s.appointments.ListForReconcile(ctx, vaccineType)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	events := make([]doseschedule.DoseEvent, len(rows))
	for i, a := range rows {
		events[i] = a.DoseEvent()
	}
	return events, nil
}

// ListDueBetween returns scheduled and pending appointments dated within
// [from, to].
func (s *Service) ListDueBetween(ctx context.Context, from, to doseschedule.Date) ([]*Appointment, error) {
	return s.appointments.ListDueBetween(ctx, from, to)
}

// FindPatientByKey resolves a patient key (HN or LINE user id).
func (s *Service) FindPatientByKey(ctx context.Context, key string) (*Patient, error) {
	p, err := s.patients.GetByKey(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrPatientNotFound
	}
	return p, err
}

// ApplyCorrection rewrites the date of one appointment when it is still
// correctable and still on currentDate. It reports false for a stale
// proposal. Callers run it inside db.WithTx so the lock and the log entry
// commit together.
func (s *Service) ApplyCorrection(ctx context.Context, p doseschedule.CorrectionProposal, appliedBy string) (bool, error) {
	id, err := uuid.Parse(p.EventID)
	if err != nil {
		return false, fmt.Errorf("%w: event id %q", ErrInvalidInput, p.EventID)
	}
	a, err := s.appointments.GetForUpdate(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return false, ErrAppointmentNotFound
	}
	if err != nil {
		return false, err
	}
	if !a.Status.Correctable() || !a.AppointmentDate.Equal(p.CurrentDate) {
		return false, nil
	}
	if err := s.appointments.UpdateDate(ctx, id, p.CorrectDate); err != nil {
		return false, err
	}
	err = s.appointments.RecordCorrection(ctx, &Correction{
		AppointmentID: id,
		DoseIndex:     p.DoseIndex,
		PreviousDate:  p.CurrentDate,
		CorrectedDate: p.CorrectDate,
		DayOffset:     p.DayOffset,
		AppliedBy:     appliedBy,
	})
	if err != nil {
		return false, fmt.Errorf("record correction: %w", err)
	}
	return true, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

// Patient maps to the patients table. A patient is identified by hospital
// number (HN) or, for LINE-registered patients, by LINE user id.
type Patient struct {
	ID         uuid.UUID `db:"id" json:"id"`
	HN         *string   `db:"hn" json:"hn,omitempty"`
	LineUserID *string   `db:"line_user_id" json:"line_user_id,omitempty"`
	FullName   string    `db:"full_name" json:"full_name"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Key returns the HN when set, else the LINE user id.
func (p *Patient) Key() string {
	return patientKey(p.HN, p.LineUserID)
}

// Appointment maps to the appointments table joined with its patient.
type Appointment struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	PatientID       uuid.UUID           `db:"patient_id" json:"patient_id"`
	VaccineType     string              `db:"vaccine_type" json:"vaccine_type"`
	AppointmentDate doseschedule.Date   `db:"appointment_date" json:"appointment_date"`
	DoseNumber      *int                `db:"dose_number" json:"dose_number,omitempty"`
	Status          doseschedule.Status `db:"status" json:"status"`
	Note            *string             `db:"note" json:"note,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`

	PatientHN         *string `db:"hn" json:"patient_hn,omitempty"`
	PatientLineUserID *string `db:"line_user_id" json:"patient_line_user_id,omitempty"`
	PatientName       string  `db:"full_name" json:"patient_name,omitempty"`
	PatientPhone      *string `db:"phone" json:"patient_phone,omitempty"`
}

// PatientKey returns the joined patient's HN, else LINE user id, else the
// patient row id.
func (a *Appointment) PatientKey() string {
	if k := patientKey(a.PatientHN, a.PatientLineUserID); k != "" {
		return k
	}
	return a.PatientID.String()
}

// DoseEvent converts the row for reconciliation.
func (a *Appointment) DoseEvent() doseschedule.DoseEvent {
	return doseschedule.DoseEvent{
		ID:          a.ID.String(),
		PatientKey:  a.PatientKey(),
		VaccineType: a.VaccineType,
		Date:        a.AppointmentDate,
		Status:      a.Status,
	}
}

// Correction maps to appointment_corrections, the log of applied date
// corrections.
type Correction struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	AppointmentID uuid.UUID         `db:"appointment_id" json:"appointment_id"`
	DoseIndex     int               `db:"dose_index" json:"dose_index"`
	PreviousDate  doseschedule.Date `db:"previous_date" json:"previous_date"`
	CorrectedDate doseschedule.Date `db:"corrected_date" json:"corrected_date"`
	DayOffset     int               `db:"day_offset" json:"day_offset"`
	AppliedBy     string            `db:"applied_by" json:"applied_by"`
	AppliedAt     time.Time         `db:"applied_at" json:"applied_at"`
}

func patientKey(hn, lineUserID *string) string {
	if hn != nil && *hn != "" {
		return *hn
	}
	if lineUserID != nil && *lineUserID != "" {
		return *lineUserID
	}
	return ""
}

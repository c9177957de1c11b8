package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/internal/platform/db"
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patCols = `id, hn, line_user_id, full_name, phone, created_at`

func (r *patientRepoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.HN, &p.LineUserID, &p.FullName, &p.Phone, &p.CreatedAt); err != nil {
		return nil, db.NotFound(err)
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, hn, line_user_id, full_name, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		p.ID, p.HN, p.LineUserID, p.FullName, p.Phone,
	).Scan(&p.CreatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByKey(ctx context.Context, key string) (*Patient, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patCols+` FROM patients WHERE hn = $1 OR (hn IS NULL AND line_user_id = $1)
		 ORDER BY hn NULLS LAST LIMIT 1`, key))
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptSelect = `
	SELECT a.id, a.patient_id, a.vaccine_type, a.appointment_date, a.dose_number, a.status, a.note,
	       a.created_at, a.updated_at, p.hn, p.line_user_id, p.full_name, p.phone
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		date   time.Time
		status string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.VaccineType, &date, &a.DoseNumber, &status, &a.Note,
		&a.CreatedAt, &a.UpdatedAt, &a.PatientHN, &a.PatientLineUserID, &a.PatientName, &a.PatientPhone)
	if err != nil {
		return nil, db.NotFound(err)
	}
	a.AppointmentDate = doseschedule.DateOf(date)
	a.Status = doseschedule.Status(status)
	return &a, nil
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, vaccine_type, appointment_date, dose_number, status, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.VaccineType, a.AppointmentDate.Time(), a.DoseNumber, string(a.Status), a.Note,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, apptSelect+` WHERE a.id = $1`, id))
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, apptSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id))
}

func (r *appointmentRepoPG) list(ctx context.Context, where string, arg interface{}, limit, offset int) ([]*Appointment, int, error) {
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, apptSelect+` WHERE `+where+`
		ORDER BY a.appointment_date, a.id LIMIT $2 OFFSET $3`, arg, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `a.patient_id = $1`, patientID, limit, offset)
}

func (r *appointmentRepoPG) ListByVaccineType(ctx context.Context, vaccineType string, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `a.vaccine_type = $1`, vaccineType, limit, offset)
}

func (r *appointmentRepoPG) ListForReconcile(ctx context.Context, vaccineType string) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, apptSelect+`
		WHERE ($1 = '' OR a.vaccine_type = $1)
		ORDER BY a.patient_id, a.vaccine_type, a.appointment_date, a.id`, vaccineType)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *appointmentRepoPG) ListDueBetween(ctx context.Context, from, to doseschedule.Date) ([]*Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, apptSelect+`
		WHERE a.appointment_date BETWEEN $1 AND $2
		  AND a.status IN ('scheduled', 'pending')
		ORDER BY a.appointment_date, a.id`, from.Time(), to.Time())
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status doseschedule.Status) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) UpdateDate(ctx context.Context, id uuid.UUID, date doseschedule.Date) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE appointments SET appointment_date = $2, updated_at = NOW() WHERE id = $1`, id, date.Time())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) RecordCorrection(ctx context.Context, c *Correction) error {
	c.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment_corrections
			(id, appointment_id, dose_index, previous_date, corrected_date, day_offset, applied_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING applied_at`,
		c.ID, c.AppointmentID, c.DoseIndex, c.PreviousDate.Time(), c.CorrectedDate.Time(), c.DayOffset, c.AppliedBy,
	).Scan(&c.AppliedAt)
}

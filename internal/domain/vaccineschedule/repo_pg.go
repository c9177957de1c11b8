package vaccineschedule

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaxsched/vaxsched/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const cols = `id, vaccine_type, display_name, total_doses, dose_intervals, active, created_at, updated_at`

func scanSchedule(row pgx.Row) (*VaccineSchedule, error) {
	var v VaccineSchedule
	err := row.Scan(&v.ID, &v.VaccineType, &v.DisplayName, &v.TotalDoses,
		&v.DoseIntervals, &v.Active, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	if v.DoseIntervals == nil {
		v.DoseIntervals = []int{}
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *VaccineSchedule) error {
	v.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO vaccine_schedules (id, vaccine_type, display_name, total_doses, dose_intervals, active)
		VALUES ($1, $2, $3, $4, $5::int[], $6)
		RETURNING created_at, updated_at`,
		v.ID, v.VaccineType, v.DisplayName, v.TotalDoses, v.DoseIntervals, v.Active,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *repoPG) GetByVaccineType(ctx context.Context, vaccineType string) (*VaccineSchedule, error) {
	return scanSchedule(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+` FROM vaccine_schedules WHERE vaccine_type = $1`, vaccineType))
}

func (r *repoPG) Update(ctx context.Context, v *VaccineSchedule) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE vaccine_schedules
		SET display_name = $2, total_doses = $3, dose_intervals = $4::int[], active = $5, updated_at = NOW()
		WHERE vaccine_type = $1`,
		v.VaccineType, v.DisplayName, v.TotalDoses, v.DoseIntervals, v.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) SetActive(ctx context.Context, vaccineType string, active bool) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE vaccine_schedules SET active = $2, updated_at = NOW() WHERE vaccine_type = $1`,
		vaccineType, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*VaccineSchedule, int, error) {
	conn := db.Conn(ctx, r.pool)
	where := ""
	if activeOnly {
		where = " WHERE active"
	}

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM vaccine_schedules`+where).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx,
		`SELECT `+cols+` FROM vaccine_schedules`+where+` ORDER BY vaccine_type LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListActive(ctx context.Context) ([]*VaccineSchedule, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+cols+` FROM vaccine_schedules WHERE active ORDER BY vaccine_type`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*VaccineSchedule, error) {
	defer rows.Close()
	var items []*VaccineSchedule
	for rows.Next() {
		v, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/consultation-queue/internal/availability"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func (d *PgDirectory) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var doc Doctor
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, specialty, email, phone, slot_minutes, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id).Scan(
		&doc.ID,
		&doc.Name,
		&doc.Specialty,
		&doc.Email,
		&doc.Phone,
		&doc.Hours.SlotMinutes,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	rows, err := d.pool.Query(ctx, `
		SELECT weekday, is_available, start_min, end_min, break_start_min, break_end_min
		FROM doctor_working_hours
		WHERE doctor_id = $1
		ORDER BY weekday
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load working hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			day        dayRow
			breakStart *availability.Clock
			breakEnd   *availability.Clock
		)
		if err := rows.Scan(&day.Weekday, &day.IsAvailable, &day.Start, &day.End, &breakStart, &breakEnd); err != nil {
			return nil, err
		}
		entry := availability.DayHours{
			Weekday:     time.Weekday(day.Weekday),
			IsAvailable: day.IsAvailable,
			Start:       day.Start,
			End:         day.End,
		}
		if breakStart != nil && breakEnd != nil {
			entry.Break = &availability.TimeRange{Start: *breakStart, End: *breakEnd}
		}
		doc.Hours.Days = append(doc.Hours.Days, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &doc, nil
}

// dayRow is one doctor_working_hours row.
type dayRow struct {
	Weekday     int
	IsAvailable bool
	Start       availability.Clock
	End         availability.Clock
}

func (d *PgDirectory) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (d *PgDirectory) ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.Leave, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT start_date, end_date, status
		FROM doctor_leaves
		WHERE doctor_id = $1
		  AND start_date <= $3
		  AND end_date >= $2
		ORDER BY start_date
	`, doctorID, availability.DateOf(from), availability.DateOf(to))
	if err != nil {
		return nil, fmt.Errorf("list leaves: %w", err)
	}
	defer rows.Close()

	var result []availability.Leave
	for rows.Next() {
		var l availability.Leave
		if err := rows.Scan(&l.StartDate, &l.EndDate, &l.Status); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/consultation-queue/internal/availability"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	db   querier
	inTx bool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, db: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &PgRepository{pool: r.pool, db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// translatePgError maps constraint violations onto the domain errors the
// service would have raised itself.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23P01":
		return ErrSlotConflict
	case "23505":
		switch pgErr.ConstraintName {
		case "queue_entries_one_in_consultation":
			return ErrConsultationInProgress
		case "queue_entries_doctor_id_queue_date_token_number_key":
			return ErrDuplicateToken
		case "queue_entries_appointment_id_queue_date_key":
			return ErrAlreadyQueued
		}
	}
	return err
}

// Helpers

const appointmentColumns = `id, doctor_id, patient_id, appointment_date, slot_start_min, slot_end_min,
	type, status, priority, reason, severity, chief_complaint, booked_by_staff,
	checked_in, checked_in_at, cancelled_by, cancel_reason, cancelled_at,
	completed_at, diagnosis, prescription, notes, vitals, follow_up_date,
	reminder_sent_at, follow_up_reminder_sent_at, created_at, updated_at`

const queueColumns = `id, appointment_id, doctor_id, patient_id, token_number, queue_date, status,
	is_emergency, priority, check_in_time, consultation_start_time, consultation_end_time,
	call_count, last_called_time, reminder_count, last_reminder_time, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a              Appointment
		severity       *string
		chiefComplaint *string
		cancelledBy    *uuid.UUID
		cancelReason   *string
		cancelledAt    *time.Time
		diagnosis      *string
		prescription   *string
		notes          *string
		vitals         []byte
	)

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.Slot.Start,
		&a.Slot.End,
		&a.Type,
		&a.Status,
		&a.Priority,
		&a.Reason,
		&severity,
		&chiefComplaint,
		&a.BookedByStaff,
		&a.CheckedIn.Status,
		&a.CheckedIn.Time,
		&cancelledBy,
		&cancelReason,
		&cancelledAt,
		&a.CompletedAt,
		&diagnosis,
		&prescription,
		&notes,
		&vitals,
		&a.Clinical.FollowUpDate,
		&a.ReminderSentAt,
		&a.FollowUpReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Type == TypeEmergency {
		a.Emergency = &EmergencyDetails{
			Severity:       Severity(deref(severity)),
			ChiefComplaint: deref(chiefComplaint),
		}
	}
	if cancelledBy != nil && cancelledAt != nil {
		a.Cancellation = &Cancellation{By: *cancelledBy, Reason: deref(cancelReason), At: *cancelledAt}
	}
	a.Clinical.Diagnosis = deref(diagnosis)
	a.Clinical.Prescription = deref(prescription)
	a.Clinical.Notes = deref(notes)
	if len(vitals) > 0 {
		var v Vitals
		if err := json.Unmarshal(vitals, &v); err != nil {
			return nil, fmt.Errorf("decode vitals: %w", err)
		}
		a.Clinical.Vitals = &v
	}

	return &a, nil
}

func scanQueueEntry(row pgx.Row) (*QueueEntry, error) {
	var e QueueEntry

	err := row.Scan(
		&e.ID,
		&e.AppointmentID,
		&e.DoctorID,
		&e.PatientID,
		&e.TokenNumber,
		&e.Date,
		&e.Status,
		&e.IsEmergency,
		&e.Priority,
		&e.CheckInTime,
		&e.ConsultationStartTime,
		&e.ConsultationEndTime,
		&e.CallCount,
		&e.LastCalledTime,
		&e.ReminderCount,
		&e.LastReminderTime,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQueueEntryNotFound
		}
		return nil, err
	}

	return &e, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]Appointment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// appointmentArgs returns the column values in appointmentColumns order.
func appointmentArgs(a *Appointment) ([]any, error) {
	var severity, chiefComplaint *string
	if a.Emergency != nil {
		sev := string(a.Emergency.Severity)
		severity = &sev
		chiefComplaint = &a.Emergency.ChiefComplaint
	}

	var (
		cancelledBy  *uuid.UUID
		cancelReason *string
		cancelledAt  *time.Time
	)
	if a.Cancellation != nil {
		cancelledBy = &a.Cancellation.By
		cancelReason = &a.Cancellation.Reason
		cancelledAt = &a.Cancellation.At
	}

	var vitals []byte
	if a.Clinical.Vitals != nil {
		var err error
		if vitals, err = json.Marshal(a.Clinical.Vitals); err != nil {
			return nil, fmt.Errorf("encode vitals: %w", err)
		}
	}

	return []any{
		a.ID, a.DoctorID, a.PatientID, a.Date, a.Slot.Start, a.Slot.End,
		string(a.Type), string(a.Status), a.Priority, a.Reason, severity, chiefComplaint, a.BookedByStaff,
		a.CheckedIn.Status, a.CheckedIn.Time, cancelledBy, cancelReason, cancelledAt,
		a.CompletedAt, nullable(a.Clinical.Diagnosis), nullable(a.Clinical.Prescription), nullable(a.Clinical.Notes), vitals, a.Clinical.FollowUpDate,
		a.ReminderSentAt, a.FollowUpReminderSentAt, a.CreatedAt, a.UpdatedAt,
	}, nil
}

// Interface methods

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	lock := ""
	if r.inTx {
		lock = "FOR UPDATE"
	}
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 `+lock, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, slot_start_min
	`, doctorID, availability.DateOf(from), availability.DateOf(to))
	return collectAppointments(rows, err)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, slot_start_min DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	return collectAppointments(rows, err)
}

func (r *PgRepository) ListOccupiedRanges(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]availability.TimeRange, error) {
	rows, err := r.db.Query(ctx, `
		SELECT slot_start_min, slot_end_min
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND id <> $3
		  AND type <> 'emergency'
		  AND status NOT IN ('cancelled', 'no-show')
		ORDER BY slot_start_min
	`, doctorID, availability.DateOf(date), excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []availability.TimeRange
	for rows.Next() {
		var tr availability.TimeRange
		if err := rows.Scan(&tr.Start, &tr.End); err != nil {
			return nil, err
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	args, err := appointmentArgs(a)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
	`, args...)
	if err != nil {
		return translatePgError(fmt.Errorf("insert appointment: %w", err))
	}
	return nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	args, err := appointmentArgs(a)
	if err != nil {
		return err
	}
	// created_at is never rewritten
	args = append(args[:26:26], args[27])
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET
			doctor_id = $2, patient_id = $3, appointment_date = $4, slot_start_min = $5, slot_end_min = $6,
			type = $7, status = $8, priority = $9, reason = $10, severity = $11, chief_complaint = $12,
			booked_by_staff = $13, checked_in = $14, checked_in_at = $15, cancelled_by = $16,
			cancel_reason = $17, cancelled_at = $18, completed_at = $19, diagnosis = $20,
			prescription = $21, notes = $22, vitals = $23, follow_up_date = $24,
			reminder_sent_at = $25, follow_up_reminder_sent_at = $26, updated_at = $27
		WHERE id = $1
	`, args...)
	if err != nil {
		return translatePgError(fmt.Errorf("update appointment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	lock := ""
	if r.inTx {
		lock = "FOR UPDATE"
	}
	row := r.db.QueryRow(ctx, `SELECT `+queueColumns+` FROM queue_entries WHERE id = $1 `+lock, id)
	return scanQueueEntry(row)
}

func (r *PgRepository) GetQueueEntryForAppointment(ctx context.Context, appointmentID uuid.UUID, date time.Time) (*QueueEntry, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE appointment_id = $1 AND queue_date = $2
	`, appointmentID, availability.DateOf(date))
	return scanQueueEntry(row)
}

func (r *PgRepository) ListQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]QueueEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queue_entries
		WHERE doctor_id = $1 AND queue_date = $2
		ORDER BY token_number
	`, doctorID, availability.DateOf(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) MaxTokenNumber(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	var max int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(token_number), 0)
		FROM queue_entries
		WHERE doctor_id = $1 AND queue_date = $2
	`, doctorID, availability.DateOf(date)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max token number: %w", err)
	}
	return max, nil
}

func (r *PgRepository) CreateQueueEntry(ctx context.Context, e *QueueEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO queue_entries (`+queueColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, e.ID, e.AppointmentID, e.DoctorID, e.PatientID, e.TokenNumber, availability.DateOf(e.Date), string(e.Status),
		e.IsEmergency, e.Priority, e.CheckInTime, e.ConsultationStartTime, e.ConsultationEndTime,
		e.CallCount, e.LastCalledTime, e.ReminderCount, e.LastReminderTime, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return translatePgError(fmt.Errorf("insert queue entry: %w", err))
	}
	return nil
}

func (r *PgRepository) UpdateQueueEntry(ctx context.Context, e *QueueEntry) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE queue_entries SET
			status = $2,
			consultation_start_time = $3,
			consultation_end_time = $4,
			call_count = $5,
			last_called_time = $6,
			reminder_count = $7,
			last_reminder_time = $8,
			updated_at = $9
		WHERE id = $1
	`, e.ID, string(e.Status), e.ConsultationStartTime, e.ConsultationEndTime,
		e.CallCount, e.LastCalledTime, e.ReminderCount, e.LastReminderTime, e.UpdatedAt)
	if err != nil {
		return translatePgError(fmt.Errorf("update queue entry: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrQueueEntryNotFound
	}
	return nil
}

func (r *PgRepository) ListUpcoming(ctx context.Context, fromDate, toDate time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
		  AND NOT checked_in
		  AND reminder_sent_at IS NULL
		  AND appointment_date BETWEEN $1 AND $2
		ORDER BY appointment_date, slot_start_min
	`, availability.DateOf(fromDate), availability.DateOf(toDate))
	return collectAppointments(rows, err)
}

func (r *PgRepository) ListFollowUpsDue(ctx context.Context, fromDate, toDate time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'completed'
		  AND follow_up_date IS NOT NULL
		  AND follow_up_reminder_sent_at IS NULL
		  AND follow_up_date BETWEEN $1 AND $2
		ORDER BY follow_up_date
	`, availability.DateOf(fromDate), availability.DateOf(toDate))
	return collectAppointments(rows, err)
}

func (r *PgRepository) MarkReminded(ctx context.Context, id uuid.UUID, followUp bool, at time.Time) error {
	column := "reminder_sent_at"
	if followUp {
		column = "follow_up_reminder_sent_at"
	}
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET `+column+` = $2, updated_at = now() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

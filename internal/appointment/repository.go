package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/availability"
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	// WithTx runs fn against a repository bound to a single transaction.
	// Returning an error from fn rolls every write back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// For conflict checks: slot ranges of appointments that occupy the day.
	ListOccupiedRanges(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]availability.TimeRange, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error

	// Queue
	GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error)
	GetQueueEntryForAppointment(ctx context.Context, appointmentID uuid.UUID, date time.Time) (*QueueEntry, error)
	ListQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]QueueEntry, error)
	MaxTokenNumber(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	CreateQueueEntry(ctx context.Context, e *QueueEntry) error
	UpdateQueueEntry(ctx context.Context, e *QueueEntry) error

	// Reminders
	ListUpcoming(ctx context.Context, fromDate, toDate time.Time) ([]Appointment, error)
	ListFollowUpsDue(ctx context.Context, fromDate, toDate time.Time) ([]Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, followUp bool, at time.Time) error

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

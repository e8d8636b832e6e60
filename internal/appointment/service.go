package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/directory"
	"github.com/hackgods/consultation-queue/internal/notify"
	redisclient "github.com/hackgods/consultation-queue/internal/redis"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventEmergencyCreated       = "EMERGENCY_CREATED"
	EventCheckedIn              = "CHECKED_IN"
	EventQueueCalled            = "QUEUE_CALLED"
	EventQueueCompleted         = "QUEUE_COMPLETED"
	EventQueueReminded          = "QUEUE_REMINDED"
	EventQueueNoShow            = "QUEUE_NO_SHOW"
	EventQueueCancelled         = "QUEUE_CANCELLED"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	notifyTimeout   = 3 * time.Second
	scopeRetries    = 3
)

var errScopeMoved = errors.New("appointment moved to another schedule")

// Deps are the collaborators the service is built from.
type Deps struct {
	Repo      Repository
	Directory directory.Directory
	Leaves    directory.LeaveReader
	Locker    redisclient.Locker
	Notifier  notify.Sender
	Logger    *zap.Logger
}

type Service struct {
	repo     Repository
	dir      directory.Directory
	leaves   directory.LeaveReader
	locker   redisclient.Locker
	notifier notify.Sender
	log      *zap.Logger

	defaultSlotMinutes int
	loc                *time.Location
	now                func() time.Time
}

func NewService(deps Deps, cfg config.Config) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	slotMinutes := cfg.DefaultSlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = availability.DefaultSlotMinutes
	}
	return &Service{
		repo:               deps.Repo,
		dir:                deps.Directory,
		leaves:             deps.Leaves,
		locker:             deps.Locker,
		notifier:           deps.Notifier,
		log:                log,
		defaultSlotMinutes: slotMinutes,
		loc:                time.Local,
		now:                time.Now,
	}
}

// today is the clinic's current calendar day in canonical date form.
func (s *Service) today() time.Time {
	return availability.DateOf(s.now().In(s.loc))
}

func scopeKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("schedule:%s:%s", doctorID, availability.DateOf(date).Format(availability.DateLayout))
}

// withScope runs fn in one transaction while holding the doctor's day lock.
func (s *Service) withScope(ctx context.Context, doctorID uuid.UUID, date time.Time, fn func(ctx context.Context, tx Repository) error) error {
	err := s.locker.WithScopeLock(ctx, scopeKey(doctorID, date), func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, fn)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrScopeBusy
	}
	return err
}

// withAppointmentScope locks the schedule the appointment currently belongs
// to and hands fn a fresh copy read inside the transaction. A concurrent
// reschedule that moves the appointment is retried.
func (s *Service) withAppointmentScope(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Repository, a *Appointment) error) error {
	for range scopeRetries {
		current, err := s.repo.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		err = s.withScope(ctx, current.DoctorID, current.Date, func(ctx context.Context, tx Repository) error {
			a, err := tx.GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if a.DoctorID != current.DoctorID || !a.Date.Equal(current.Date) {
				return errScopeMoved
			}
			return fn(ctx, tx, a)
		})
		if !errors.Is(err, errScopeMoved) {
			return err
		}
	}
	return ErrScopeBusy
}

func (s *Service) withQueueEntryScope(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Repository, e *QueueEntry) error) error {
	current, err := s.repo.GetQueueEntry(ctx, id)
	if err != nil {
		return err
	}
	return s.withScope(ctx, current.DoctorID, current.Date, func(ctx context.Context, tx Repository) error {
		e, err := tx.GetQueueEntry(ctx, id)
		if err != nil {
			return err
		}
		return fn(ctx, tx, e)
	})
}

// logEvent appends to the event log inside the caller's transaction, so the
// entry commits or rolls back with the change it describes.
func (s *Service) logEvent(ctx context.Context, tx Repository, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event %s: %w", eventType, err)
	}
	return nil
}

// notify is called after commit. Failures are logged and never undo the
// state change.
func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = s.now()
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.Send(sendCtx, n); err != nil {
		s.log.Warn("notification failed",
			zap.String("kind", string(n.Kind)),
			zap.Stringer("appointment_id", n.AppointmentID),
			zap.Error(err),
		)
	}
}

func appointmentNotification(kind notify.Kind, a *Appointment, message string) notify.Notification {
	return notify.Notification{
		Kind:          kind,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		Message:       message,
		Data: map[string]string{
			"date": a.Date.Format(availability.DateLayout),
			"slot": a.Slot.String(),
		},
	}
}

func queueNotification(kind notify.Kind, e *QueueEntry, message string) notify.Notification {
	entryID := e.ID
	return notify.Notification{
		Kind:          kind,
		AppointmentID: e.AppointmentID,
		PatientID:     e.PatientID,
		DoctorID:      e.DoctorID,
		QueueEntryID:  &entryID,
		TokenNumber:   e.TokenNumber,
		Message:       message,
	}
}

// GetAppointment returns the appointment read model.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// ListAppointmentsByDoctor returns a doctor's appointments over an inclusive
// date range.
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	from, to = availability.DateOf(from), availability.DateOf(to)
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByPatient retrieves appointments for a specific patient,
// newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	e, err := s.repo.GetQueueEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

// QueueView is a doctor's queue for one day: who is being seen, who is next
// in serving order, and who has left the queue.
type QueueView struct {
	DoctorID uuid.UUID
	Date     time.Time
	Current  *QueueEntry
	Waiting  []QueueEntry
	Done     []QueueEntry
}

func (s *Service) GetQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) (*QueueView, error) {
	date = availability.DateOf(date)
	entries, err := s.repo.ListQueue(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	view := &QueueView{DoctorID: doctorID, Date: date, Waiting: []QueueEntry{}, Done: []QueueEntry{}}
	for _, e := range entries {
		switch e.Status {
		case QueueInConsultation:
			current := e
			view.Current = &current
		case QueueWaiting:
			view.Waiting = append(view.Waiting, e)
		default:
			view.Done = append(view.Done, e)
		}
	}
	sortServingOrder(view.Waiting)
	return view, nil
}

// CurrentConsultation returns the entry the doctor is seeing on date, or
// ErrQueueEntryNotFound when nobody is in consultation.
func (s *Service) CurrentConsultation(ctx context.Context, doctorID uuid.UUID, date time.Time) (*QueueEntry, error) {
	view, err := s.GetQueue(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if view.Current == nil {
		return nil, fmt.Errorf("current consultation: %w", ErrQueueEntryNotFound)
	}
	return view.Current, nil
}

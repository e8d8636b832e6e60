package appointment

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/availability"
)

// MemoryRepository keeps everything in process memory. Transactions are
// serialized and applied copy-on-write, and the Postgres uniqueness and
// exclusion constraints are enforced by hand.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

func (m *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := m.state.clone()
	if err := fn(ctx, draft); err != nil {
		return err
	}
	m.state = draft
	return nil
}

func (m *MemoryRepository) read() *memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MemoryRepository) write(ctx context.Context, fn func(tx Repository) error) error {
	return m.WithTx(ctx, func(_ context.Context, tx Repository) error { return fn(tx) })
}

// Committed states are never mutated, so reads can run against a snapshot
// without holding the lock.

func (m *MemoryRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.read().GetAppointment(ctx, id)
}

func (m *MemoryRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return m.read().ListAppointmentsByDoctor(ctx, doctorID, from, to)
}

func (m *MemoryRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.read().ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

func (m *MemoryRepository) ListOccupiedRanges(ctx context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]availability.TimeRange, error) {
	return m.read().ListOccupiedRanges(ctx, doctorID, date, excludeID)
}

func (m *MemoryRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	return m.write(ctx, func(tx Repository) error { return tx.CreateAppointment(ctx, a) })
}

func (m *MemoryRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	return m.write(ctx, func(tx Repository) error { return tx.UpdateAppointment(ctx, a) })
}

func (m *MemoryRepository) GetQueueEntry(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	return m.read().GetQueueEntry(ctx, id)
}

func (m *MemoryRepository) GetQueueEntryForAppointment(ctx context.Context, appointmentID uuid.UUID, date time.Time) (*QueueEntry, error) {
	return m.read().GetQueueEntryForAppointment(ctx, appointmentID, date)
}

func (m *MemoryRepository) ListQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]QueueEntry, error) {
	return m.read().ListQueue(ctx, doctorID, date)
}

func (m *MemoryRepository) MaxTokenNumber(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	return m.read().MaxTokenNumber(ctx, doctorID, date)
}

func (m *MemoryRepository) CreateQueueEntry(ctx context.Context, e *QueueEntry) error {
	return m.write(ctx, func(tx Repository) error { return tx.CreateQueueEntry(ctx, e) })
}

func (m *MemoryRepository) UpdateQueueEntry(ctx context.Context, e *QueueEntry) error {
	return m.write(ctx, func(tx Repository) error { return tx.UpdateQueueEntry(ctx, e) })
}

func (m *MemoryRepository) ListUpcoming(ctx context.Context, fromDate, toDate time.Time) ([]Appointment, error) {
	return m.read().ListUpcoming(ctx, fromDate, toDate)
}

func (m *MemoryRepository) ListFollowUpsDue(ctx context.Context, fromDate, toDate time.Time) ([]Appointment, error) {
	return m.read().ListFollowUpsDue(ctx, fromDate, toDate)
}

func (m *MemoryRepository) MarkReminded(ctx context.Context, id uuid.UUID, followUp bool, at time.Time) error {
	return m.write(ctx, func(tx Repository) error { return tx.MarkReminded(ctx, id, followUp, at) })
}

func (m *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	return m.write(ctx, func(tx Repository) error { return tx.InsertEvent(ctx, ev) })
}

// Events returns the event log, oldest first.
func (m *MemoryRepository) Events() []EventLog {
	return slices.Clone(m.read().events)
}

type memState struct {
	appointments map[uuid.UUID]Appointment
	queue        map[uuid.UUID]QueueEntry
	events       []EventLog
}

func newMemState() *memState {
	return &memState{
		appointments: make(map[uuid.UUID]Appointment),
		queue:        make(map[uuid.UUID]QueueEntry),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		appointments: maps.Clone(s.appointments),
		queue:        maps.Clone(s.queue),
		events:       slices.Clip(s.events),
	}
}

func (s *memState) WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	return fn(ctx, s)
}

func (s *memState) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memState) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	from, to = availability.DateOf(from), availability.DateOf(to)
	var result []Appointment
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && !a.Date.Before(from) && !a.Date.After(to) {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(x, y Appointment) int {
		return cmp.Or(x.Date.Compare(y.Date), cmp.Compare(x.Slot.Start, y.Slot.Start))
	})
	return result, nil
}

func (s *memState) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	var result []Appointment
	for _, a := range s.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(x, y Appointment) int {
		return cmp.Or(y.Date.Compare(x.Date), cmp.Compare(y.Slot.Start, x.Slot.Start))
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (s *memState) ListOccupiedRanges(_ context.Context, doctorID uuid.UUID, date time.Time, excludeID uuid.UUID) ([]availability.TimeRange, error) {
	date = availability.DateOf(date)
	var result []availability.TimeRange
	for _, a := range s.appointments {
		if a.ID != excludeID && a.DoctorID == doctorID && a.Date.Equal(date) && a.occupiesSlot() {
			result = append(result, a.Slot)
		}
	}
	slices.SortFunc(result, func(x, y availability.TimeRange) int { return cmp.Compare(x.Start, y.Start) })
	return result, nil
}

// overlapsOccupied mirrors the appointments_no_overlap exclusion constraint.
func (s *memState) overlapsOccupied(a *Appointment) bool {
	if !a.occupiesSlot() {
		return false
	}
	for _, other := range s.appointments {
		if other.ID != a.ID && other.DoctorID == a.DoctorID && other.Date.Equal(a.Date) &&
			other.occupiesSlot() && other.Slot.Overlaps(a.Slot) {
			return true
		}
	}
	return false
}

func (s *memState) CreateAppointment(_ context.Context, a *Appointment) error {
	if _, exists := s.appointments[a.ID]; exists {
		return ErrSlotConflict
	}
	if s.overlapsOccupied(a) {
		return ErrSlotConflict
	}
	s.appointments[a.ID] = *a
	return nil
}

func (s *memState) UpdateAppointment(_ context.Context, a *Appointment) error {
	if _, exists := s.appointments[a.ID]; !exists {
		return ErrAppointmentNotFound
	}
	if s.overlapsOccupied(a) {
		return ErrSlotConflict
	}
	s.appointments[a.ID] = *a
	return nil
}

func (s *memState) GetQueueEntry(_ context.Context, id uuid.UUID) (*QueueEntry, error) {
	e, ok := s.queue[id]
	if !ok {
		return nil, ErrQueueEntryNotFound
	}
	return &e, nil
}

func (s *memState) GetQueueEntryForAppointment(_ context.Context, appointmentID uuid.UUID, date time.Time) (*QueueEntry, error) {
	date = availability.DateOf(date)
	for _, e := range s.queue {
		if e.AppointmentID == appointmentID && e.Date.Equal(date) {
			return &e, nil
		}
	}
	return nil, ErrQueueEntryNotFound
}

func (s *memState) ListQueue(_ context.Context, doctorID uuid.UUID, date time.Time) ([]QueueEntry, error) {
	date = availability.DateOf(date)
	var result []QueueEntry
	for _, e := range s.queue {
		if e.DoctorID == doctorID && e.Date.Equal(date) {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(x, y QueueEntry) int { return cmp.Compare(x.TokenNumber, y.TokenNumber) })
	return result, nil
}

func (s *memState) MaxTokenNumber(_ context.Context, doctorID uuid.UUID, date time.Time) (int, error) {
	date = availability.DateOf(date)
	highest := 0
	for _, e := range s.queue {
		if e.DoctorID == doctorID && e.Date.Equal(date) {
			highest = max(highest, e.TokenNumber)
		}
	}
	return highest, nil
}

func (s *memState) checkQueueConstraints(e *QueueEntry, creating bool) error {
	for _, other := range s.queue {
		if other.ID == e.ID || other.DoctorID != e.DoctorID || !other.Date.Equal(e.Date) {
			continue
		}
		if creating && other.TokenNumber == e.TokenNumber {
			return ErrDuplicateToken
		}
		if creating && other.AppointmentID == e.AppointmentID {
			return ErrAlreadyQueued
		}
		if e.Status == QueueInConsultation && other.Status == QueueInConsultation {
			return ErrConsultationInProgress
		}
	}
	return nil
}

func (s *memState) CreateQueueEntry(_ context.Context, e *QueueEntry) error {
	e.Date = availability.DateOf(e.Date)
	if err := s.checkQueueConstraints(e, true); err != nil {
		return err
	}
	s.queue[e.ID] = *e
	return nil
}

func (s *memState) UpdateQueueEntry(_ context.Context, e *QueueEntry) error {
	if _, exists := s.queue[e.ID]; !exists {
		return ErrQueueEntryNotFound
	}
	if err := s.checkQueueConstraints(e, false); err != nil {
		return err
	}
	s.queue[e.ID] = *e
	return nil
}

func (s *memState) ListUpcoming(_ context.Context, fromDate, toDate time.Time) ([]Appointment, error) {
	from, to := availability.DateOf(fromDate), availability.DateOf(toDate)
	var result []Appointment
	for _, a := range s.appointments {
		if (a.Status == StatusPending || a.Status == StatusConfirmed) && !a.CheckedIn.Status && a.ReminderSentAt == nil &&
			!a.Date.Before(from) && !a.Date.After(to) {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(x, y Appointment) int {
		return cmp.Or(x.Date.Compare(y.Date), cmp.Compare(x.Slot.Start, y.Slot.Start))
	})
	return result, nil
}

func (s *memState) ListFollowUpsDue(_ context.Context, fromDate, toDate time.Time) ([]Appointment, error) {
	from, to := availability.DateOf(fromDate), availability.DateOf(toDate)
	var result []Appointment
	for _, a := range s.appointments {
		f := a.Clinical.FollowUpDate
		if a.Status == StatusCompleted && f != nil && a.FollowUpReminderSentAt == nil &&
			!availability.DateOf(*f).Before(from) && !availability.DateOf(*f).After(to) {
			result = append(result, a)
		}
	}
	slices.SortFunc(result, func(x, y Appointment) int { return x.Clinical.FollowUpDate.Compare(*y.Clinical.FollowUpDate) })
	return result, nil
}

func (s *memState) MarkReminded(_ context.Context, id uuid.UUID, followUp bool, at time.Time) error {
	a, ok := s.appointments[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	if followUp {
		a.FollowUpReminderSentAt = &at
	} else {
		a.ReminderSentAt = &at
	}
	a.UpdatedAt = at
	s.appointments[id] = a
	return nil
}

func (s *memState) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = int64(len(s.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	s.events = append(s.events, ev)
	return nil
}

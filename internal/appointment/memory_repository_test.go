package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/consultation-queue/internal/availability"
)

func memAppointment(doctorID uuid.UUID, start, end availability.Clock) *Appointment {
	return &Appointment{
		ID:       uuid.New(),
		DoctorID: doctorID,
		Date:     testToday,
		Slot:     availability.TimeRange{Start: start, End: end},
		Type:     TypeRoutine,
		Status:   StatusPending,
	}
}

func TestMemoryRepository_OverlapConstraint(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doctor := uuid.New()

	require.NoError(t, repo.CreateAppointment(ctx, memAppointment(doctor, availability.NewClock(10, 0), availability.NewClock(10, 30))))
	err := repo.CreateAppointment(ctx, memAppointment(doctor, availability.NewClock(10, 15), availability.NewClock(10, 45)))
	assert.ErrorIs(t, err, ErrSlotConflict)

	// Other doctors and non-blocking rows are unaffected.
	assert.NoError(t, repo.CreateAppointment(ctx, memAppointment(uuid.New(), availability.NewClock(10, 15), availability.NewClock(10, 45))))
	cancelled := memAppointment(doctor, availability.NewClock(10, 0), availability.NewClock(10, 30))
	cancelled.Status = StatusCancelled
	assert.NoError(t, repo.CreateAppointment(ctx, cancelled))
}

func TestMemoryRepository_QueueConstraints(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doctor := uuid.New()

	newEntry := func(token int) *QueueEntry {
		return &QueueEntry{ID: uuid.New(), AppointmentID: uuid.New(), DoctorID: doctor, TokenNumber: token, Date: testToday, Status: QueueWaiting}
	}

	first, second := newEntry(1), newEntry(2)
	require.NoError(t, repo.CreateQueueEntry(ctx, first))
	require.NoError(t, repo.CreateQueueEntry(ctx, second))

	assert.ErrorIs(t, repo.CreateQueueEntry(ctx, newEntry(2)), ErrDuplicateToken)

	again := newEntry(3)
	again.AppointmentID = first.AppointmentID
	assert.ErrorIs(t, repo.CreateQueueEntry(ctx, again), ErrAlreadyQueued)

	first.Status = QueueInConsultation
	require.NoError(t, repo.UpdateQueueEntry(ctx, first))
	second.Status = QueueInConsultation
	assert.ErrorIs(t, repo.UpdateQueueEntry(ctx, second), ErrConsultationInProgress)

	max, err := repo.MaxTokenNumber(ctx, doctor, testToday)
	require.NoError(t, err)
	assert.Equal(t, 2, max)
}

func TestMemoryRepository_TxRollback(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	a := memAppointment(uuid.New(), availability.NewClock(9, 0), availability.NewClock(9, 30))

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		require.NoError(t, tx.CreateAppointment(ctx, a))
		require.NoError(t, tx.InsertEvent(ctx, EventLog{EventType: EventAppointmentCreated}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.GetAppointment(ctx, a.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.Empty(t, repo.Events())
}

func TestMemoryRepository_ReminderQueries(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	doctor := uuid.New()

	upcoming := memAppointment(doctor, availability.NewClock(9, 0), availability.NewClock(9, 30))
	require.NoError(t, repo.CreateAppointment(ctx, upcoming))

	followUp := testToday.AddDate(0, 0, 1)
	done := memAppointment(doctor, availability.NewClock(10, 0), availability.NewClock(10, 30))
	done.Status = StatusCompleted
	done.Clinical.FollowUpDate = &followUp
	require.NoError(t, repo.CreateAppointment(ctx, done))

	arrivedAt := time.Now()
	arrived := memAppointment(doctor, availability.NewClock(11, 0), availability.NewClock(11, 30))
	arrived.CheckedIn = CheckIn{Status: true, Time: &arrivedAt}
	require.NoError(t, repo.CreateAppointment(ctx, arrived))

	due, err := repo.ListUpcoming(ctx, testToday, testToday)
	require.NoError(t, err)
	require.Len(t, due, 1, "checked-in patients are already here")
	assert.Equal(t, upcoming.ID, due[0].ID)

	followUps, err := repo.ListFollowUpsDue(ctx, testToday, followUp)
	require.NoError(t, err)
	require.Len(t, followUps, 1)

	require.NoError(t, repo.MarkReminded(ctx, upcoming.ID, false, time.Now()))
	require.NoError(t, repo.MarkReminded(ctx, done.ID, true, time.Now()))

	due, err = repo.ListUpcoming(ctx, testToday, testToday)
	require.NoError(t, err)
	assert.Empty(t, due)
	followUps, err = repo.ListFollowUpsDue(ctx, testToday, followUp)
	require.NoError(t, err)
	assert.Empty(t, followUps)
}

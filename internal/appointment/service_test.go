package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/config"
	"github.com/hackgods/consultation-queue/internal/directory"
	"github.com/hackgods/consultation-queue/internal/notify"
	redisclient "github.com/hackgods/consultation-queue/internal/redis"
)

// 2026-03-02 is a Monday. Tests run at 08:00 before the clinic opens.
var (
	testNow   = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	testToday = availability.DateOf(testNow)
)

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recordingSender) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingSender) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	dir      *directory.MemoryDirectory
	sender   *recordingSender
	doctor   directory.Doctor
	patients []directory.Patient
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := directory.NewMemoryDirectory()
	doctor := dir.AddDoctor(directory.Doctor{
		Name: "Dr. Mehta",
		Hours: availability.WorkingHours{
			SlotMinutes: 30,
			Days: []availability.DayHours{{
				Weekday:     time.Monday,
				IsAvailable: true,
				Start:       availability.NewClock(9, 0),
				End:         availability.NewClock(17, 0),
				Break:       &availability.TimeRange{Start: availability.NewClock(13, 0), End: availability.NewClock(14, 0)},
			}},
		},
	})

	var patients []directory.Patient
	for _, name := range []string{"Asha", "Bilal", "Chen", "Dara", "Elif"} {
		patients = append(patients, dir.AddPatient(directory.Patient{Name: name}))
	}

	f := &fixture{
		repo:     NewMemoryRepository(),
		dir:      dir,
		sender:   &recordingSender{},
		doctor:   doctor,
		patients: patients,
		clock:    testNow,
	}
	f.svc = NewService(Deps{
		Repo:      f.repo,
		Directory: dir,
		Leaves:    dir,
		Locker:    redisclient.NewLocalLocker(5 * time.Second),
		Notifier:  f.sender,
		Logger:    zaptest.NewLogger(t),
	}, config.Config{DefaultSlotMinutes: 30})
	f.svc.loc = time.UTC
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func slot(t *testing.T, start, end string) availability.TimeRange {
	t.Helper()
	s, err := availability.ParseClock(start)
	require.NoError(t, err)
	e, err := availability.ParseClock(end)
	require.NoError(t, err)
	return availability.TimeRange{Start: s, End: e}
}

func (f *fixture) book(t *testing.T, patient int, start, end string) (*Appointment, error) {
	t.Helper()
	return f.svc.CreateAppointment(context.Background(), BookingRequest{
		DoctorID:  f.doctor.ID,
		PatientID: f.patients[patient].ID,
		Date:      testToday,
		Slot:      slot(t, start, end),
		Type:      TypeRoutine,
		Reason:    "checkup",
	})
}

func (f *fixture) mustBook(t *testing.T, patient int, start, end string) *Appointment {
	t.Helper()
	a, err := f.book(t, patient, start, end)
	require.NoError(t, err)
	return a
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, ev := range f.repo.Events() {
		out = append(out, ev.EventType)
	}
	return out
}

func TestGetSlots_FullDay(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.GetSlots(context.Background(), f.doctor.ID, testToday)
	require.NoError(t, err)
	require.Len(t, slots, 14)
	for _, s := range slots {
		assert.False(t, s.IsBooked)
	}
}

func TestGetSlots_MarksBookedAndIsRepeatable(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, 0, "10:00", "10:30")

	first, err := f.svc.GetSlots(context.Background(), f.doctor.ID, testToday)
	require.NoError(t, err)
	second, err := f.svc.GetSlots(context.Background(), f.doctor.ID, testToday)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, first[2].IsBooked)
	assert.Equal(t, "10:00", first[2].Start.String())
	assert.False(t, first[3].IsBooked)
}

func TestGetSlots_UnknownDoctor(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetSlots(context.Background(), uuid.New(), testToday)
	assert.ErrorIs(t, err, directory.ErrDoctorNotFound)
}

func TestGetSlots_ApprovedLeave(t *testing.T) {
	f := newFixture(t)
	f.dir.AddLeave(f.doctor.ID, availability.Leave{StartDate: testToday, EndDate: testToday, Status: availability.LeaveApproved})

	slots, err := f.svc.GetSlots(context.Background(), f.doctor.ID, testToday)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = f.book(t, 0, "10:00", "10:30")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateAppointment_Conflict(t *testing.T) {
	f := newFixture(t)

	first := f.mustBook(t, 0, "10:00", "10:30")
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, 0, first.Priority)

	_, err := f.book(t, 1, "10:15", "10:45")
	assert.ErrorIs(t, err, ErrSlotConflict)

	_, err = f.book(t, 1, "10:30", "11:00")
	assert.NoError(t, err)
}

func TestCreateAppointment_CancelledSlotCanBeRebooked(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, 0, "10:00", "10:30")

	_, err := f.svc.Cancel(context.Background(), a.ID, f.patients[0].ID, "travel")
	require.NoError(t, err)

	_, err = f.book(t, 1, "10:00", "10:30")
	assert.NoError(t, err)
}

func TestCreateAppointment_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   BookingRequest
		field string
	}{
		{
			name:  "missing patient",
			req:   BookingRequest{DoctorID: f.doctor.ID, Date: testToday, Slot: slot(t, "10:00", "10:30")},
			field: "patient_id",
		},
		{
			name:  "reversed range",
			req:   BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patients[0].ID, Date: testToday, Slot: slot(t, "10:30", "10:00")},
			field: "slot",
		},
		{
			name:  "past date",
			req:   BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patients[0].ID, Date: testToday.AddDate(0, 0, -7), Slot: slot(t, "10:00", "10:30")},
			field: "date",
		},
		{
			name:  "outside working hours",
			req:   BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patients[0].ID, Date: testToday, Slot: slot(t, "13:00", "13:30")},
			field: "slot",
		},
		{
			name:  "unknown type",
			req:   BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patients[0].ID, Date: testToday, Slot: slot(t, "10:00", "10:30"), Type: "surgery"},
			field: "type",
		},
		{
			name:  "emergency without details",
			req:   BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patients[0].ID, Date: testToday, Slot: slot(t, "10:00", "10:30"), Type: TypeEmergency},
			field: "emergency",
		},
		{
			name: "details on routine visit",
			req: BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patients[0].ID, Date: testToday, Slot: slot(t, "10:00", "10:30"),
				Emergency: &EmergencyDetails{Severity: SeverityMinor, ChiefComplaint: "cut"}},
			field: "emergency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(ctx, tt.req)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	appointments, err := f.svc.ListAppointmentsByDoctor(ctx, f.doctor.ID, testToday, testToday)
	require.NoError(t, err)
	assert.Empty(t, appointments)
}

func TestCreateAppointment_UnknownPatient(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAppointment(context.Background(), BookingRequest{
		DoctorID: f.doctor.ID, PatientID: uuid.New(), Date: testToday, Slot: slot(t, "10:00", "10:30"),
	})
	assert.ErrorIs(t, err, directory.ErrPatientNotFound)
}

func TestCreateAppointment_StaffBookingIsConfirmed(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.CreateAppointment(context.Background(), BookingRequest{
		DoctorID: f.doctor.ID, PatientID: f.patients[0].ID, Date: testToday,
		Slot: slot(t, "11:00", "11:30"), Type: TypeFollowUp, BookedByStaff: true,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)
	assert.Contains(t, f.eventTypes(), EventAppointmentCreated)
	assert.Equal(t, []notify.Kind{notify.KindBooked}, f.sender.kinds())
}

func TestCreateAppointment_EmergencyIgnoresSchedule(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, 0, "10:00", "10:30")

	a, err := f.svc.CreateAppointment(context.Background(), BookingRequest{
		DoctorID: f.doctor.ID, PatientID: f.patients[1].ID, Date: testToday,
		Slot: slot(t, "10:00", "10:30"), Type: TypeEmergency,
		Emergency: &EmergencyDetails{Severity: SeveritySevere, ChiefComplaint: "chest pain"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Priority)

	// The emergency does not take the slot away from scheduled bookings either.
	_, err = f.book(t, 2, "10:30", "11:00")
	assert.NoError(t, err)
}

func TestCreateAppointment_EmergencySeverityIsNormalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	book := func(patient int, severity Severity) *Appointment {
		a, err := f.svc.CreateAppointment(ctx, BookingRequest{
			DoctorID: f.doctor.ID, PatientID: f.patients[patient].ID, Date: testToday,
			Slot: slot(t, "09:00", "09:30"), Type: TypeEmergency,
			Emergency: &EmergencyDetails{Severity: severity, ChiefComplaint: " fainting "},
		})
		require.NoError(t, err)
		return a
	}

	minor := book(0, SeverityMinor)
	critical := book(1, " Critical ")
	assert.Equal(t, 4, critical.Priority)
	assert.Equal(t, SeverityCritical, critical.Emergency.Severity)
	assert.Equal(t, "fainting", critical.Emergency.ChiefComplaint)

	_, err := f.svc.CheckIn(ctx, minor.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckIn(ctx, critical.ID)
	require.NoError(t, err)

	called, err := f.svc.CallNext(ctx, f.doctor.ID, testToday)
	require.NoError(t, err)
	assert.Equal(t, critical.ID, called.AppointmentID)
}

func TestIsSlotAvailable(t *testing.T) {
	f := newFixture(t)
	f.mustBook(t, 0, "10:00", "10:30")
	ctx := context.Background()

	ok, err := f.svc.IsSlotAvailable(ctx, f.doctor.ID, testToday, slot(t, "10:15", "10:45"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.IsSlotAvailable(ctx, f.doctor.ID, testToday, slot(t, "10:30", "11:00"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.IsSlotAvailable(ctx, f.doctor.ID, testToday, slot(t, "11:00", "10:00"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, 0, "10:00", "10:30")

	confirmed, err := f.svc.Confirm(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = f.svc.Confirm(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	a := f.mustBook(t, 0, "10:00", "10:30")
	staff := uuid.New()

	cancelled, err := f.svc.Cancel(context.Background(), a.ID, staff, " doctor unavailable ")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, staff, cancelled.Cancellation.By)
	assert.Equal(t, "doctor unavailable", cancelled.Cancellation.Reason)
	assert.Equal(t, testNow, cancelled.Cancellation.At)

	_, err = f.svc.Cancel(context.Background(), a.ID, staff, "again")
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "cancelled", terr.From)

	_, err = f.svc.Cancel(context.Background(), uuid.New(), staff, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = f.svc.Cancel(context.Background(), a.ID, uuid.Nil, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCancel_ReleasesWaitingQueueEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustBook(t, 0, "10:00", "10:30")

	entry, err := f.svc.CheckIn(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, a.ID, f.patients[0].ID, "feeling better")
	require.NoError(t, err)

	got, err := f.svc.GetQueueEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, QueueCancelled, got.Status)

	_, err = f.svc.CallNext(ctx, f.doctor.ID, testToday)
	assert.ErrorIs(t, err, ErrNoWaitingPatients)
}

func TestCancel_RejectedDuringConsultation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustBook(t, 0, "10:00", "10:30")
	_, err := f.svc.CheckIn(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.svc.CallNext(ctx, f.doctor.ID, testToday)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, a.ID, f.patients[0].ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := f.svc.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustBook(t, 0, "10:00", "10:30")
	f.mustBook(t, 1, "11:00", "11:30")
	_, err := f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, a.ID, testToday, slot(t, "11:00", "11:30"))
	assert.ErrorIs(t, err, ErrSlotConflict)

	nextWeek := testToday.AddDate(0, 0, 7)
	moved, err := f.svc.Reschedule(ctx, a.ID, nextWeek, slot(t, "09:00", "09:30"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, moved.Status)
	assert.Equal(t, nextWeek, moved.Date)
	assert.Equal(t, "09:00-09:30", moved.Slot.String())

	// The old slot is free again.
	_, err = f.book(t, 2, "10:00", "10:30")
	assert.NoError(t, err)

	// Moving within its own range is not a conflict with itself.
	_, err = f.svc.Reschedule(ctx, a.ID, nextWeek, slot(t, "09:15", "09:45"))
	assert.NoError(t, err)

	assert.Contains(t, f.eventTypes(), EventAppointmentRescheduled)
}

func TestReschedule_InvalidStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkedIn := f.mustBook(t, 0, "10:00", "10:30")
	_, err := f.svc.CheckIn(ctx, checkedIn.ID)
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, checkedIn.ID, testToday, slot(t, "15:00", "15:30"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	cancelled := f.mustBook(t, 1, "11:00", "11:30")
	_, err = f.svc.Cancel(ctx, cancelled.ID, f.patients[1].ID, "")
	require.NoError(t, err)
	_, err = f.svc.Reschedule(ctx, cancelled.ID, testToday, slot(t, "15:00", "15:30"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Reschedule(ctx, cancelled.ID, testToday, slot(t, "13:00", "13:30"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestComplete_MergesClinicalNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustBook(t, 0, "10:00", "10:30")

	_, err := f.svc.Complete(ctx, a.ID, ClinicalNotes{Diagnosis: "flu"})
	assert.ErrorIs(t, err, ErrInvalidTransition, "a pending visit that never arrived cannot be completed")

	_, err = f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)

	pulse := 72
	followUp := testToday.AddDate(0, 0, 14)
	done, err := f.svc.Complete(ctx, a.ID, ClinicalNotes{
		Diagnosis:    "seasonal flu",
		Prescription: "rest, fluids",
		Vitals:       &Vitals{BloodPressure: "120/80", Pulse: &pulse},
		FollowUpDate: &followUp,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "seasonal flu", done.Clinical.Diagnosis)
	assert.Equal(t, 72, *done.Clinical.Vitals.Pulse)
	assert.Equal(t, followUp, *done.Clinical.FollowUpDate)

	// Completed visits keep their slot.
	_, err = f.book(t, 1, "10:00", "10:30")
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestComplete_RejectsFollowUpBeforeVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustBook(t, 0, "10:00", "10:30")
	_, err := f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)

	yesterday := testToday.AddDate(0, 0, -1)
	_, err = f.svc.Complete(ctx, a.ID, ClinicalNotes{FollowUpDate: &yesterday})
	assert.ErrorIs(t, err, ErrValidation)

	got, err := f.svc.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustBook(t, 0, "10:00", "10:30")

	_, err := f.svc.MarkNoShow(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Confirm(ctx, a.ID)
	require.NoError(t, err)
	noShow, err := f.svc.MarkNoShow(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, noShow.Status)

	// Terminal.
	_, err = f.svc.Cancel(ctx, a.ID, f.patients[0].ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.CheckIn(ctx, a.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// And the slot is free again.
	_, err = f.book(t, 1, "10:00", "10:30")
	assert.NoError(t, err)
}

func TestListAppointmentsByPatient_Paging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustBook(t, 0, "09:00", "09:30")
	f.mustBook(t, 0, "10:00", "10:30")
	f.mustBook(t, 0, "11:00", "11:30")
	f.mustBook(t, 1, "12:00", "12:30")

	page, err := f.svc.ListAppointmentsByPatient(ctx, f.patients[0].ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "11:00", page[0].Slot.Start.String())

	page, err = f.svc.ListAppointmentsByPatient(ctx, f.patients[0].ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "09:00", page[0].Slot.Start.String())

	page, err = f.svc.ListAppointmentsByPatient(ctx, f.patients[0].ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestNotificationFailureDoesNotUndoChange(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("broker unavailable")

	a, err := f.book(t, 0, "10:00", "10:30")
	require.NoError(t, err)

	entry, err := f.svc.CheckIn(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.TokenNumber)
	assert.Len(t, f.sender.kinds(), 2)
}

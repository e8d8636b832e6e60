// Package notify delivers patient-facing notifications. Delivery is best
// effort: callers log failures and move on.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindBooked           Kind = "appointment.booked"
	KindConfirmed        Kind = "appointment.confirmed"
	KindCancelled        Kind = "appointment.cancelled"
	KindRescheduled      Kind = "appointment.rescheduled"
	KindCompleted        Kind = "appointment.completed"
	KindCheckedIn        Kind = "queue.checked_in"
	KindCalled           Kind = "queue.called"
	KindQueueReminder    Kind = "queue.reminder"
	KindUpcomingReminder Kind = "reminder.upcoming"
	KindFollowUpReminder Kind = "reminder.follow_up"
)

type Notification struct {
	Kind          Kind              `json:"kind"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	DoctorID      uuid.UUID         `json:"doctor_id"`
	QueueEntryID  *uuid.UUID        `json:"queue_entry_id,omitempty"`
	TokenNumber   int               `json:"token_number,omitempty"`
	Message       string            `json:"message"`
	Data          map[string]string `json:"data,omitempty"`
	At            time.Time         `json:"at"`
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/availability"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCheckedIn   AppointmentStatus = "checked-in"
	StatusInProgress  AppointmentStatus = "in-progress"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusNoShow      AppointmentStatus = "no-show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Blocking reports whether an appointment in this status occupies its slot.
// Completed visits keep their slot for the rest of the day.
func (s AppointmentStatus) Blocking() bool {
	return s != StatusCancelled && s != StatusNoShow
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type AppointmentType string

const (
	TypeRoutine      AppointmentType = "routine"
	TypeFollowUp     AppointmentType = "followup"
	TypeConsultation AppointmentType = "consultation"
	TypeEmergency    AppointmentType = "emergency"
)

func (t AppointmentType) Valid() bool {
	switch t {
	case TypeRoutine, TypeFollowUp, TypeConsultation, TypeEmergency:
		return true
	}
	return false
}

// defaultPriority is the queue priority of scheduled visits; only emergencies
// rank above it.
var defaultPriority = map[AppointmentType]int{
	TypeRoutine:      0,
	TypeFollowUp:     0,
	TypeConsultation: 0,
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Priority maps severity onto the emergency ordering key. Unknown severities
// rank lowest.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeveritySevere:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	}
	return 0
}

// Normalize lowercases and trims s so it matches the severity constants.
func (s Severity) Normalize() Severity {
	return Severity(strings.ToLower(strings.TrimSpace(string(s))))
}

// EmergencyDetails is present only on TypeEmergency appointments.
type EmergencyDetails struct {
	Severity       Severity
	ChiefComplaint string
}

func (d EmergencyDetails) normalized() EmergencyDetails {
	return EmergencyDetails{Severity: d.Severity.Normalize(), ChiefComplaint: strings.TrimSpace(d.ChiefComplaint)}
}

type CheckIn struct {
	Status bool
	Time   *time.Time
}

type Cancellation struct {
	By     uuid.UUID
	Reason string
	At     time.Time
}

type Vitals struct {
	BloodPressure string   `json:"blood_pressure,omitempty"`
	Pulse         *int     `json:"pulse,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	SpO2          *int     `json:"spo2,omitempty"`
}

// ClinicalNotes are merged into the appointment on completion.
type ClinicalNotes struct {
	Diagnosis    string
	Prescription string
	Notes        string
	Vitals       *Vitals
	FollowUpDate *time.Time
}

type Appointment struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	Date          time.Time
	Slot          availability.TimeRange
	Type          AppointmentType
	Status        AppointmentStatus
	Priority      int
	Reason        string
	Emergency     *EmergencyDetails
	BookedByStaff bool
	CheckedIn     CheckIn
	Cancellation  *Cancellation
	CompletedAt   *time.Time
	Clinical      ClinicalNotes

	ReminderSentAt         *time.Time
	FollowUpReminderSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt is the wall-clock start of the appointment in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), a.Slot.Start.Hour(), a.Slot.Start.Minute(), 0, 0, loc)
}

// occupiesSlot reports whether the appointment takes part in conflict
// detection. Emergencies are fitted in around the schedule.
func (a *Appointment) occupiesSlot() bool {
	return a.Type != TypeEmergency && a.Status.Blocking()
}

// readyForVisit is true for confirmed appointments and for pending ones whose
// patient has already arrived.
func (a *Appointment) readyForVisit() bool {
	switch a.Status {
	case StatusConfirmed, StatusCheckedIn, StatusInProgress:
		return true
	case StatusPending:
		return a.CheckedIn.Status
	}
	return false
}

type QueueStatus string

const (
	QueueWaiting        QueueStatus = "waiting"
	QueueInConsultation QueueStatus = "in-consultation"
	QueueCompleted      QueueStatus = "completed"
	QueueCancelled      QueueStatus = "cancelled"
	QueueNoShow         QueueStatus = "no-show"
)

// QueueEntry is the same-day operational projection of a checked-in
// appointment.
type QueueEntry struct {
	ID                    uuid.UUID
	AppointmentID         uuid.UUID
	DoctorID              uuid.UUID
	PatientID             uuid.UUID
	TokenNumber           int
	Date                  time.Time
	Status                QueueStatus
	IsEmergency           bool
	Priority              int
	CheckInTime           time.Time
	ConsultationStartTime *time.Time
	ConsultationEndTime   *time.Time
	CallCount             int
	LastCalledTime        *time.Time
	ReminderCount         int
	LastReminderTime      *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

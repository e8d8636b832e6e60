package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/appointment"
	"github.com/hackgods/consultation-queue/internal/availability"
)

type CreateAppointmentRequest struct {
	DoctorID       string `json:"doctor_id" validate:"required,uuid"`
	PatientID      string `json:"patient_id" validate:"required,uuid"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	Start          string `json:"start" validate:"required,clock"`
	End            string `json:"end" validate:"required,clock"`
	Type           string `json:"type" validate:"omitempty,oneof=routine followup consultation emergency"`
	Reason         string `json:"reason" validate:"max=500"`
	BookedByStaff  bool   `json:"booked_by_staff"`
	Severity       string `json:"severity,omitempty" validate:"required_if=Type emergency"`
	ChiefComplaint string `json:"chief_complaint,omitempty" validate:"required_if=Type emergency,max=500"`
}

type CreateEmergencyRequest struct {
	DoctorID       string `json:"doctor_id" validate:"required,uuid"`
	PatientID      string `json:"patient_id" validate:"required,uuid"`
	Severity       string `json:"severity" validate:"required,max=32"`
	ChiefComplaint string `json:"chief_complaint" validate:"required,max=500"`
	Reason         string `json:"reason" validate:"max=500"`
}

type CancelRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required,uuid"`
	Reason      string `json:"reason" validate:"max=500"`
}

type RescheduleRequest struct {
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

type CompleteRequest struct {
	Diagnosis    string              `json:"diagnosis" validate:"max=2000"`
	Prescription string              `json:"prescription" validate:"max=2000"`
	Notes        string              `json:"notes" validate:"max=4000"`
	Vitals       *appointment.Vitals `json:"vitals,omitempty"`
	FollowUpDate string              `json:"follow_up_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type EmergencyResponse struct {
	Severity       string `json:"severity"`
	ChiefComplaint string `json:"chief_complaint"`
}

type CancellationResponse struct {
	By     uuid.UUID `json:"by"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

type ClinicalResponse struct {
	Diagnosis    string              `json:"diagnosis,omitempty"`
	Prescription string              `json:"prescription,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	Vitals       *appointment.Vitals `json:"vitals,omitempty"`
	FollowUpDate string              `json:"follow_up_date,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID             `json:"id"`
	DoctorID      uuid.UUID             `json:"doctor_id"`
	PatientID     uuid.UUID             `json:"patient_id"`
	Date          string                `json:"date"`
	Start         availability.Clock    `json:"start"`
	End           availability.Clock    `json:"end"`
	Type          string                `json:"type"`
	Status        string                `json:"status"`
	Priority      int                   `json:"priority"`
	Reason        string                `json:"reason,omitempty"`
	Emergency     *EmergencyResponse    `json:"emergency,omitempty"`
	BookedByStaff bool                  `json:"booked_by_staff"`
	CheckedIn     bool                  `json:"checked_in"`
	CheckedInAt   *time.Time            `json:"checked_in_at,omitempty"`
	Cancellation  *CancellationResponse `json:"cancellation,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	Clinical      *ClinicalResponse     `json:"clinical,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

type QueueEntryResponse struct {
	ID                    uuid.UUID  `json:"id"`
	AppointmentID         uuid.UUID  `json:"appointment_id"`
	DoctorID              uuid.UUID  `json:"doctor_id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	TokenNumber           int        `json:"token_number"`
	Date                  string     `json:"date"`
	Status                string     `json:"status"`
	IsEmergency           bool       `json:"is_emergency"`
	Priority              int        `json:"priority"`
	CheckInTime           time.Time  `json:"check_in_time"`
	ConsultationStartTime *time.Time `json:"consultation_start_time,omitempty"`
	ConsultationEndTime   *time.Time `json:"consultation_end_time,omitempty"`
	CallCount             int        `json:"call_count"`
	LastCalledTime        *time.Time `json:"last_called_time,omitempty"`
	ReminderCount         int        `json:"reminder_count"`
	LastReminderTime      *time.Time `json:"last_reminder_time,omitempty"`
}

type QueueResponse struct {
	DoctorID uuid.UUID            `json:"doctor_id"`
	Date     string               `json:"date"`
	Current  *QueueEntryResponse  `json:"current"`
	Waiting  []QueueEntryResponse `json:"waiting"`
	Done     []QueueEntryResponse `json:"done"`
}

type EmergencyCreatedResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	QueueEntry  QueueEntryResponse  `json:"queue_entry"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID           `json:"doctor_id"`
	Date     string              `json:"date"`
	Slots    []availability.Slot `json:"slots"`
}

type AvailabilityResponse struct {
	Available bool `json:"available"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:            a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		Date:          a.Date.Format(availability.DateLayout),
		Start:         a.Slot.Start,
		End:           a.Slot.End,
		Type:          string(a.Type),
		Status:        string(a.Status),
		Priority:      a.Priority,
		Reason:        a.Reason,
		BookedByStaff: a.BookedByStaff,
		CheckedIn:     a.CheckedIn.Status,
		CheckedInAt:   a.CheckedIn.Time,
		CompletedAt:   a.CompletedAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if a.Emergency != nil {
		resp.Emergency = &EmergencyResponse{Severity: string(a.Emergency.Severity), ChiefComplaint: a.Emergency.ChiefComplaint}
	}
	if a.Cancellation != nil {
		resp.Cancellation = &CancellationResponse{By: a.Cancellation.By, Reason: a.Cancellation.Reason, At: a.Cancellation.At}
	}
	c := a.Clinical
	if c.Diagnosis != "" || c.Prescription != "" || c.Notes != "" || c.Vitals != nil || c.FollowUpDate != nil {
		resp.Clinical = &ClinicalResponse{Diagnosis: c.Diagnosis, Prescription: c.Prescription, Notes: c.Notes, Vitals: c.Vitals}
		if c.FollowUpDate != nil {
			resp.Clinical.FollowUpDate = c.FollowUpDate.Format(availability.DateLayout)
		}
	}
	return resp
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

func toQueueEntryResponse(e *appointment.QueueEntry) QueueEntryResponse {
	return QueueEntryResponse{
		ID:                    e.ID,
		AppointmentID:         e.AppointmentID,
		DoctorID:              e.DoctorID,
		PatientID:             e.PatientID,
		TokenNumber:           e.TokenNumber,
		Date:                  e.Date.Format(availability.DateLayout),
		Status:                string(e.Status),
		IsEmergency:           e.IsEmergency,
		Priority:              e.Priority,
		CheckInTime:           e.CheckInTime,
		ConsultationStartTime: e.ConsultationStartTime,
		ConsultationEndTime:   e.ConsultationEndTime,
		CallCount:             e.CallCount,
		LastCalledTime:        e.LastCalledTime,
		ReminderCount:         e.ReminderCount,
		LastReminderTime:      e.LastReminderTime,
	}
}

func toQueueEntryList(list []appointment.QueueEntry) []QueueEntryResponse {
	out := make([]QueueEntryResponse, 0, len(list))
	for i := range list {
		out = append(out, toQueueEntryResponse(&list[i]))
	}
	return out
}

func toQueueResponse(v *appointment.QueueView) QueueResponse {
	resp := QueueResponse{
		DoctorID: v.DoctorID,
		Date:     v.Date.Format(availability.DateLayout),
		Waiting:  toQueueEntryList(v.Waiting),
		Done:     toQueueEntryList(v.Done),
	}
	if v.Current != nil {
		current := toQueueEntryResponse(v.Current)
		resp.Current = &current
	}
	return resp
}

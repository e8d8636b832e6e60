package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/appointment"
	"github.com/hackgods/consultation-queue/internal/availability"
)

type handlers struct {
	svc *appointment.Service
	log *zap.Logger
}

func urlUUID(w http.ResponseWriter, r *http.Request, param, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// queryDate parses a YYYY-MM-DD query parameter, defaulting to today.
func queryDate(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return availability.DateOf(time.Now()), true
	}
	d, err := availability.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+key, key+" must be formatted as YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func clockRange(start, end string) availability.TimeRange {
	// Both were checked by the clock validator.
	s, _ := availability.ParseClock(start)
	e, _ := availability.ParseClock(end)
	return availability.TimeRange{Start: s, End: e}
}

func (h *handlers) getSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return
	}

	slots, err := h.svc.GetSlots(r.Context(), doctorID, date)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: date.Format(availability.DateLayout), Slots: slots})
}

func (h *handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return
	}
	q := r.URL.Query()
	start, err1 := availability.ParseClock(q.Get("start"))
	end, err2 := availability.ParseClock(q.Get("end"))
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "invalid_time_range", "start and end must be formatted as HH:MM")
		return
	}

	free, err := h.svc.IsSlotAvailable(r.Context(), doctorID, date, availability.TimeRange{Start: start, End: end})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{Available: free})
}

func (h *handlers) listDoctorAppointments(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return
	}
	from, ok := queryDate(w, r, "from")
	if !ok {
		return
	}
	to := from
	if r.URL.Query().Get("to") != "" {
		if to, ok = queryDate(w, r, "to"); !ok {
			return
		}
	}

	list, err := h.svc.ListAppointmentsByDoctor(r.Context(), doctorID, from, to)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) getQueue(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return
	}

	view, err := h.svc.GetQueue(r.Context(), doctorID, date)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueResponse(view))
}

func (h *handlers) currentConsultation(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return
	}

	entry, err := h.svc.CurrentConsultation(r.Context(), doctorID, date)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueEntryResponse(entry))
}

func (h *handlers) callNext(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := urlUUID(w, r, "doctorID", "invalid_doctor_id")
	if !ok {
		return
	}
	date, ok := queryDate(w, r, "date")
	if !ok {
		return
	}

	entry, err := h.svc.CallNext(r.Context(), doctorID, date)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueEntryResponse(entry))
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, _ := availability.ParseDate(req.Date)
	booking := appointment.BookingRequest{
		DoctorID:      uuid.MustParse(req.DoctorID),
		PatientID:     uuid.MustParse(req.PatientID),
		Date:          date,
		Slot:          clockRange(req.Start, req.End),
		Type:          appointment.AppointmentType(req.Type),
		Reason:        req.Reason,
		BookedByStaff: req.BookedByStaff,
	}
	if booking.Type == appointment.TypeEmergency {
		booking.Emergency = &appointment.EmergencyDetails{
			Severity:       appointment.Severity(req.Severity),
			ChiefComplaint: req.ChiefComplaint,
		}
	}

	appt, err := h.svc.CreateAppointment(r.Context(), booking)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) createEmergency(w http.ResponseWriter, r *http.Request) {
	var req CreateEmergencyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, entry, err := h.svc.CreateEmergency(r.Context(), appointment.EmergencyRequest{
		DoctorID:       uuid.MustParse(req.DoctorID),
		PatientID:      uuid.MustParse(req.PatientID),
		Severity:       appointment.Severity(req.Severity),
		ChiefComplaint: req.ChiefComplaint,
		Reason:         req.Reason,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, EmergencyCreatedResponse{
		Appointment: toAppointmentResponse(appt),
		QueueEntry:  toQueueEntryResponse(entry),
	})
}

func (h *handlers) listPatientAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID, err := uuid.Parse(q.Get("patient_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	list, err := h.svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// appointmentAction adapts the id-only transitions.
func (h *handlers) appointmentAction(action func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}
		appt, err := action(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (h *handlers) checkIn(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}
	entry, err := h.svc.CheckIn(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toQueueEntryResponse(entry))
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}
	var req CancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.Cancel(r.Context(), id, uuid.MustParse(req.CancelledBy), req.Reason)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	date, _ := availability.ParseDate(req.Date)
	appt, err := h.svc.Reschedule(r.Context(), id, date, clockRange(req.Start, req.End))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (req CompleteRequest) notes() appointment.ClinicalNotes {
	notes := appointment.ClinicalNotes{
		Diagnosis:    req.Diagnosis,
		Prescription: req.Prescription,
		Notes:        req.Notes,
		Vitals:       req.Vitals,
	}
	if req.FollowUpDate != "" {
		if d, err := availability.ParseDate(req.FollowUpDate); err == nil {
			notes.FollowUpDate = &d
		}
	}
	return notes
}

func (h *handlers) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_appointment_id")
	if !ok {
		return
	}
	var req CompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.Complete(r.Context(), id, req.notes())
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) getQueueEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_queue_entry_id")
	if !ok {
		return
	}
	entry, err := h.svc.GetQueueEntry(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueEntryResponse(entry))
}

func (h *handlers) completeConsultation(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id", "invalid_queue_entry_id")
	if !ok {
		return
	}
	var req CompleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.CompleteConsultation(r.Context(), id, req.notes())
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// queueAction adapts the id-only queue transitions.
func (h *handlers) queueAction(action func(ctx context.Context, id uuid.UUID) (*appointment.QueueEntry, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id", "invalid_queue_entry_id")
		if !ok {
			return
		}
		entry, err := action(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, h.log, err)
			return
		}
		writeJSON(w, http.StatusOK, toQueueEntryResponse(entry))
	}
}

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/appointment"
	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/directory"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("clock", validateClock)
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := availability.ParseClock(fl.Field().String())
	return err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeJSON reads and validates the request body into dst. It writes the
// 400 response itself and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	// An empty body decodes as the zero value; required fields still fail validation.
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// handleServiceError maps domain errors onto HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, directory.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, directory.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrQueueEntryNotFound):
		writeError(w, http.StatusNotFound, "queue_entry_not_found", err.Error())
	case errors.Is(err, appointment.ErrNoWaitingPatients):
		writeError(w, http.StatusNotFound, "no_waiting_patients", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrConsultationInProgress):
		writeError(w, http.StatusConflict, "consultation_in_progress", err.Error())
	case errors.Is(err, appointment.ErrAlreadyQueued):
		writeError(w, http.StatusConflict, "already_queued", err.Error())
	case errors.Is(err, appointment.ErrDuplicateToken),
		errors.Is(err, appointment.ErrScopeBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is being updated, please retry shortly")
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}

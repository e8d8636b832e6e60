package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/notify"
)

// BookingRequest describes a new appointment. Emergency must be set exactly
// when Type is TypeEmergency.
type BookingRequest struct {
	DoctorID      uuid.UUID
	PatientID     uuid.UUID
	Date          time.Time
	Slot          availability.TimeRange
	Type          AppointmentType
	Reason        string
	BookedByStaff bool
	Emergency     *EmergencyDetails
}

// EmergencyRequest is a walk-in emergency seen today as soon as possible.
type EmergencyRequest struct {
	DoctorID       uuid.UUID
	PatientID      uuid.UUID
	Severity       Severity
	ChiefComplaint string
	Reason         string
}

func (s *Service) validateBooking(req *BookingRequest) error {
	if req.DoctorID == uuid.Nil {
		return invalid("doctor_id", "required")
	}
	if req.PatientID == uuid.Nil {
		return invalid("patient_id", "required")
	}
	if req.Type == "" {
		req.Type = TypeRoutine
	}
	if !req.Type.Valid() {
		return invalid("type", fmt.Sprintf("unknown appointment type %q", req.Type))
	}
	if req.Type == TypeEmergency {
		if req.Emergency != nil {
			details := req.Emergency.normalized()
			req.Emergency = &details
		}
		if err := validateEmergency(req.Emergency); err != nil {
			return err
		}
	} else if req.Emergency != nil {
		return invalid("emergency", "only allowed for emergency appointments")
	}
	if req.Date.IsZero() {
		return invalid("date", "required")
	}
	return s.validateSlot(availability.DateOf(req.Date), req.Slot, req.Type == TypeEmergency)
}

func validateEmergency(d *EmergencyDetails) error {
	if d == nil {
		return invalid("emergency", "severity and chief complaint are required")
	}
	if strings.TrimSpace(string(d.Severity)) == "" {
		return invalid("severity", "required")
	}
	if strings.TrimSpace(d.ChiefComplaint) == "" {
		return invalid("chief_complaint", "required")
	}
	return nil
}

// validateSlot rejects malformed ranges and times that have already passed.
func (s *Service) validateSlot(date time.Time, slot availability.TimeRange, emergency bool) error {
	if !slot.Valid() {
		return invalid("slot", "start must be before end within one day")
	}
	today := s.today()
	if date.Before(today) {
		return invalid("date", "must not be in the past")
	}
	if date.Equal(today) && !emergency && slot.Start < availability.ClockOf(s.now().In(s.loc)) {
		return invalid("slot", "start time has already passed")
	}
	return nil
}

// CreateAppointment books a slot. Scheduled visits must fit the doctor's
// working day and pass the conflict check inside the scope lock.
func (s *Service) CreateAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.validateBooking(&req); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}

	date := availability.DateOf(req.Date)
	hours, leaves, err := s.workingDay(ctx, req.DoctorID, date)
	if err != nil {
		return nil, err
	}
	if req.Type != TypeEmergency && !availability.InHours(hours, date, leaves, req.Slot) {
		return nil, invalid("slot", "outside the doctor's working hours")
	}

	now := s.now()
	appt := &Appointment{
		ID:            uuid.New(),
		DoctorID:      req.DoctorID,
		PatientID:     req.PatientID,
		Date:          date,
		Slot:          req.Slot,
		Type:          req.Type,
		Status:        StatusPending,
		Priority:      defaultPriority[req.Type],
		Reason:        strings.TrimSpace(req.Reason),
		BookedByStaff: req.BookedByStaff,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.BookedByStaff {
		appt.Status = StatusConfirmed
	}
	if req.Type == TypeEmergency {
		details := *req.Emergency
		appt.Emergency = &details
		appt.Priority = details.Severity.Priority()
	}

	err = s.withScope(ctx, appt.DoctorID, appt.Date, func(ctx context.Context, tx Repository) error {
		if appt.occupiesSlot() {
			if err := checkConflict(ctx, tx, appt.DoctorID, appt.Date, appt.Slot, uuid.Nil); err != nil {
				return err
			}
		}
		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return s.logEvent(ctx, tx, appt.ID, EventAppointmentCreated, map[string]any{
			"doctor_id":  appt.DoctorID.String(),
			"patient_id": appt.PatientID.String(),
			"date":       appt.Date.Format(availability.DateLayout),
			"slot":       appt.Slot.String(),
			"type":       appt.Type,
			"status":     appt.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment created", appointmentFields(appt)...)
	s.notify(ctx, appointmentNotification(notify.KindBooked, appt,
		fmt.Sprintf("Appointment booked for %s at %s", appt.Date.Format(availability.DateLayout), appt.Slot.Start)))
	return appt, nil
}

// CreateEmergency registers a walk-in emergency for today. The patient is
// checked in and queued in the same transaction.
func (s *Service) CreateEmergency(ctx context.Context, req EmergencyRequest) (*Appointment, *QueueEntry, error) {
	if req.DoctorID == uuid.Nil {
		return nil, nil, invalid("doctor_id", "required")
	}
	if req.PatientID == uuid.Nil {
		return nil, nil, invalid("patient_id", "required")
	}
	details := EmergencyDetails{Severity: req.Severity, ChiefComplaint: req.ChiefComplaint}.normalized()
	if err := validateEmergency(&details); err != nil {
		return nil, nil, err
	}
	if _, err := s.dir.GetPatient(ctx, req.PatientID); err != nil {
		return nil, nil, err
	}
	minutes, err := s.DoctorSlotMinutes(ctx, req.DoctorID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	start := availability.ClockOf(now.In(s.loc))
	end := min(start.Add(minutes), availability.NewClock(24, 0))
	checkedInAt := now

	appt := &Appointment{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      s.today(),
		Slot:      availability.TimeRange{Start: start, End: end},
		Type:      TypeEmergency,
		Status:    StatusPending,
		Priority:  details.Severity.Priority(),
		Reason:    strings.TrimSpace(req.Reason),
		Emergency: &details,
		CheckedIn: CheckIn{Status: true, Time: &checkedInAt},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var entry *QueueEntry
	err = s.withScope(ctx, appt.DoctorID, appt.Date, func(ctx context.Context, tx Repository) error {
		if err := tx.CreateAppointment(ctx, appt); err != nil {
			return fmt.Errorf("create emergency appointment: %w", err)
		}
		e, err := s.enqueue(ctx, tx, appt, now)
		if err != nil {
			return err
		}
		entry = e
		return s.logEvent(ctx, tx, appt.ID, EventEmergencyCreated, map[string]any{
			"doctor_id":       appt.DoctorID.String(),
			"severity":        details.Severity,
			"priority":        appt.Priority,
			"chief_complaint": details.ChiefComplaint,
			"token_number":    e.TokenNumber,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("emergency registered",
		append(appointmentFields(appt), zap.Int("token_number", entry.TokenNumber))...,
	)
	s.notify(ctx, queueNotification(notify.KindCheckedIn, entry,
		fmt.Sprintf("Emergency registered, token %d", entry.TokenNumber)))
	return appt, entry, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var updated *Appointment
	err := s.withAppointmentScope(ctx, id, func(ctx context.Context, tx Repository, a *Appointment) error {
		if a.Status != StatusPending {
			return transition("confirm", a.Status)
		}
		a.Status = StatusConfirmed
		a.UpdatedAt = s.now()
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("confirm appointment: %w", err)
		}
		updated = a
		return s.logEvent(ctx, tx, a.ID, EventAppointmentConfirmed, map[string]any{})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, appointmentNotification(notify.KindConfirmed, updated, "Appointment confirmed"))
	return updated, nil
}

// Cancel cancels a pending or confirmed appointment. A waiting queue entry
// for it is cancelled in the same transaction.
func (s *Service) Cancel(ctx context.Context, id, cancelledBy uuid.UUID, reason string) (*Appointment, error) {
	if cancelledBy == uuid.Nil {
		return nil, invalid("cancelled_by", "required")
	}

	var updated *Appointment
	err := s.withAppointmentScope(ctx, id, func(ctx context.Context, tx Repository, a *Appointment) error {
		if a.Status != StatusPending && a.Status != StatusConfirmed {
			return transition("cancel", a.Status)
		}
		now := s.now()

		entry, err := openQueueEntry(ctx, tx, a)
		if err != nil {
			return err
		}
		if entry != nil {
			if entry.Status == QueueInConsultation {
				return transition("cancel", entry.Status)
			}
			entry.Status = QueueCancelled
			entry.UpdatedAt = now
			if err := tx.UpdateQueueEntry(ctx, entry); err != nil {
				return fmt.Errorf("cancel queue entry: %w", err)
			}
			if err := s.logEvent(ctx, tx, a.ID, EventQueueCancelled, map[string]any{"token_number": entry.TokenNumber}); err != nil {
				return err
			}
		}

		a.Status = StatusCancelled
		a.Cancellation = &Cancellation{By: cancelledBy, Reason: strings.TrimSpace(reason), At: now}
		a.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		updated = a
		return s.logEvent(ctx, tx, a.ID, EventAppointmentCancelled, map[string]any{
			"cancelled_by": cancelledBy.String(),
			"reason":       a.Cancellation.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment cancelled", appointmentFields(updated)...)
	s.notify(ctx, appointmentNotification(notify.KindCancelled, updated, "Appointment cancelled"))
	return updated, nil
}

// Reschedule moves a pending or confirmed appointment to a new date and slot.
// Only the target day is locked: the old slot is released by the move.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date time.Time, slot availability.TimeRange) (*Appointment, error) {
	if date.IsZero() {
		return nil, invalid("date", "required")
	}
	date = availability.DateOf(date)

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Type == TypeEmergency {
		return nil, invalid("type", "emergency appointments cannot be rescheduled")
	}
	if err := s.validateSlot(date, slot, false); err != nil {
		return nil, err
	}
	hours, leaves, err := s.workingDay(ctx, current.DoctorID, date)
	if err != nil {
		return nil, err
	}
	if !availability.InHours(hours, date, leaves, slot) {
		return nil, invalid("slot", "outside the doctor's working hours")
	}

	var updated *Appointment
	err = s.withScope(ctx, current.DoctorID, date, func(ctx context.Context, tx Repository) error {
		a, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusPending && a.Status != StatusConfirmed {
			return transition("reschedule", a.Status)
		}
		if a.CheckedIn.Status {
			return transition("reschedule", StatusCheckedIn)
		}
		if err := checkConflict(ctx, tx, a.DoctorID, date, slot, a.ID); err != nil {
			return err
		}

		fromDate, fromSlot := a.Date, a.Slot
		a.Date = date
		a.Slot = slot
		a.Status = StatusPending
		a.ReminderSentAt = nil
		a.UpdatedAt = s.now()
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		updated = a
		return s.logEvent(ctx, tx, a.ID, EventAppointmentRescheduled, map[string]any{
			"from_date": fromDate.Format(availability.DateLayout),
			"from_slot": fromSlot.String(),
			"to_date":   date.Format(availability.DateLayout),
			"to_slot":   slot.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment rescheduled", appointmentFields(updated)...)
	s.notify(ctx, appointmentNotification(notify.KindRescheduled, updated,
		fmt.Sprintf("Appointment moved to %s at %s", updated.Date.Format(availability.DateLayout), updated.Slot.Start)))
	return updated, nil
}

// Complete closes the visit outside of the queue flow, for example when the
// doctor records notes for a patient who was never called. Any open queue
// entry is completed along with it.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes ClinicalNotes) (*Appointment, error) {
	var updated *Appointment
	err := s.withAppointmentScope(ctx, id, func(ctx context.Context, tx Repository, a *Appointment) error {
		entry, err := openQueueEntry(ctx, tx, a)
		if err != nil {
			return err
		}
		if err := s.completeAppointment(ctx, tx, a, notes); err != nil {
			return err
		}
		if entry != nil {
			now := s.now()
			if entry.ConsultationStartTime == nil {
				entry.ConsultationStartTime = &now
			}
			entry.ConsultationEndTime = &now
			entry.Status = QueueCompleted
			entry.UpdatedAt = now
			if err := tx.UpdateQueueEntry(ctx, entry); err != nil {
				return fmt.Errorf("complete queue entry: %w", err)
			}
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, appointmentNotification(notify.KindCompleted, updated, "Visit completed"))
	return updated, nil
}

// completeAppointment applies the complete transition and merges notes.
func (s *Service) completeAppointment(ctx context.Context, tx Repository, a *Appointment, notes ClinicalNotes) error {
	if !a.readyForVisit() {
		return transition("complete", a.Status)
	}
	if notes.FollowUpDate != nil {
		f := availability.DateOf(*notes.FollowUpDate)
		if !f.After(a.Date) {
			return invalid("follow_up_date", "must be after the appointment date")
		}
		notes.FollowUpDate = &f
	}

	now := s.now()
	mergeClinical(&a.Clinical, notes)
	a.Status = StatusCompleted
	a.CompletedAt = &now
	a.UpdatedAt = now
	if err := tx.UpdateAppointment(ctx, a); err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}

	payload := map[string]any{"completed_at": now}
	if a.Clinical.FollowUpDate != nil {
		payload["follow_up_date"] = a.Clinical.FollowUpDate.Format(availability.DateLayout)
	}
	s.log.Info("appointment completed", appointmentFields(a)...)
	return s.logEvent(ctx, tx, a.ID, EventAppointmentCompleted, payload)
}

func mergeClinical(dst *ClinicalNotes, src ClinicalNotes) {
	if v := strings.TrimSpace(src.Diagnosis); v != "" {
		dst.Diagnosis = v
	}
	if v := strings.TrimSpace(src.Prescription); v != "" {
		dst.Prescription = v
	}
	if v := strings.TrimSpace(src.Notes); v != "" {
		dst.Notes = v
	}
	if src.Vitals != nil {
		dst.Vitals = src.Vitals
	}
	if src.FollowUpDate != nil {
		dst.FollowUpDate = src.FollowUpDate
	}
}

// MarkNoShow records that the patient did not attend. Terminal.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var updated *Appointment
	err := s.withAppointmentScope(ctx, id, func(ctx context.Context, tx Repository, a *Appointment) error {
		entry, err := openQueueEntry(ctx, tx, a)
		if err != nil {
			return err
		}
		if entry != nil {
			if err := s.queueNoShow(ctx, tx, entry); err != nil {
				return err
			}
		}
		if err := s.appointmentNoShow(ctx, tx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) appointmentNoShow(ctx context.Context, tx Repository, a *Appointment) error {
	if !a.readyForVisit() {
		return transition("mark no-show", a.Status)
	}
	a.Status = StatusNoShow
	a.UpdatedAt = s.now()
	if err := tx.UpdateAppointment(ctx, a); err != nil {
		return fmt.Errorf("mark appointment no-show: %w", err)
	}
	return s.logEvent(ctx, tx, a.ID, EventAppointmentNoShow, map[string]any{})
}

// openQueueEntry returns the appointment's waiting or in-consultation entry,
// or nil when it has none.
func openQueueEntry(ctx context.Context, tx Repository, a *Appointment) (*QueueEntry, error) {
	if !a.CheckedIn.Status {
		return nil, nil
	}
	entry, err := tx.GetQueueEntryForAppointment(ctx, a.ID, a.Date)
	if errors.Is(err, ErrQueueEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load queue entry: %w", err)
	}
	if entry.Status != QueueWaiting && entry.Status != QueueInConsultation {
		return nil, nil
	}
	return entry, nil
}

func appointmentFields(a *Appointment) []zap.Field {
	return []zap.Field{
		zap.Stringer("appointment_id", a.ID),
		zap.Stringer("doctor_id", a.DoctorID),
		zap.String("date", a.Date.Format(availability.DateLayout)),
		zap.Stringer("slot", a.Slot),
		zap.String("type", string(a.Type)),
		zap.String("status", string(a.Status)),
	}
}

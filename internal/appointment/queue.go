package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/notify"
)

// CheckIn marks the patient as arrived and issues the next token for the
// doctor's day. Only possible on the day of the appointment.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*QueueEntry, error) {
	var entry *QueueEntry
	err := s.withAppointmentScope(ctx, id, func(ctx context.Context, tx Repository, a *Appointment) error {
		if a.Status != StatusPending && a.Status != StatusConfirmed {
			return transition("check in", a.Status)
		}
		if a.CheckedIn.Status {
			return ErrAlreadyQueued
		}
		if !a.Date.Equal(s.today()) {
			return invalid("date", "check-in is only possible on the day of the appointment")
		}

		now := s.now()
		a.CheckedIn = CheckIn{Status: true, Time: &now}
		a.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return fmt.Errorf("check in appointment: %w", err)
		}

		e, err := s.enqueue(ctx, tx, a, now)
		if err != nil {
			return err
		}
		entry = e
		return s.logEvent(ctx, tx, a.ID, EventCheckedIn, map[string]any{
			"queue_entry_id": e.ID.String(),
			"token_number":   e.TokenNumber,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("patient checked in",
		zap.Stringer("appointment_id", entry.AppointmentID),
		zap.Stringer("doctor_id", entry.DoctorID),
		zap.Int("token_number", entry.TokenNumber),
	)
	s.notify(ctx, queueNotification(notify.KindCheckedIn, entry,
		fmt.Sprintf("You are checked in, your token is %d", entry.TokenNumber)))
	return entry, nil
}

// enqueue issues max+1 as the token. Callers hold the scope lock; the unique
// (doctor, date, token) constraint backs it up.
func (s *Service) enqueue(ctx context.Context, tx Repository, a *Appointment, at time.Time) (*QueueEntry, error) {
	_, err := tx.GetQueueEntryForAppointment(ctx, a.ID, a.Date)
	switch {
	case err == nil:
		return nil, ErrAlreadyQueued
	case !errors.Is(err, ErrQueueEntryNotFound):
		return nil, fmt.Errorf("load queue entry: %w", err)
	}

	maxToken, err := tx.MaxTokenNumber(ctx, a.DoctorID, a.Date)
	if err != nil {
		return nil, fmt.Errorf("max token number: %w", err)
	}

	e := &QueueEntry{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		TokenNumber:   maxToken + 1,
		Date:          a.Date,
		Status:        QueueWaiting,
		IsEmergency:   a.Type == TypeEmergency,
		Priority:      a.Priority,
		CheckInTime:   at,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if err := tx.CreateQueueEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("create queue entry: %w", err)
	}
	return e, nil
}

// CallNext starts the next consultation for the doctor's day. Waiting
// emergencies are served first; otherwise the lowest token wins.
func (s *Service) CallNext(ctx context.Context, doctorID uuid.UUID, date time.Time) (*QueueEntry, error) {
	date = availability.DateOf(date)

	var called *QueueEntry
	err := s.withScope(ctx, doctorID, date, func(ctx context.Context, tx Repository) error {
		entries, err := tx.ListQueue(ctx, doctorID, date)
		if err != nil {
			return fmt.Errorf("list queue: %w", err)
		}
		for _, e := range entries {
			if e.Status == QueueInConsultation {
				return ErrConsultationInProgress
			}
		}

		next, ok := nextWaiting(entries)
		if !ok {
			return ErrNoWaitingPatients
		}

		now := s.now()
		next.Status = QueueInConsultation
		next.ConsultationStartTime = &now
		next.CallCount++
		next.LastCalledTime = &now
		next.UpdatedAt = now
		if err := tx.UpdateQueueEntry(ctx, &next); err != nil {
			return fmt.Errorf("call queue entry: %w", err)
		}
		called = &next
		return s.logEvent(ctx, tx, next.AppointmentID, EventQueueCalled, map[string]any{
			"queue_entry_id": next.ID.String(),
			"token_number":   next.TokenNumber,
			"emergency":      next.IsEmergency,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("patient called",
		zap.Stringer("doctor_id", doctorID),
		zap.Int("token_number", called.TokenNumber),
		zap.Bool("emergency", called.IsEmergency),
	)
	s.notify(ctx, queueNotification(notify.KindCalled, called,
		fmt.Sprintf("Token %d, the doctor will see you now", called.TokenNumber)))
	return called, nil
}

// CompleteConsultation ends the active consultation and completes the
// appointment with the supplied clinical notes, atomically.
func (s *Service) CompleteConsultation(ctx context.Context, entryID uuid.UUID, notes ClinicalNotes) (*Appointment, error) {
	var completed *Appointment
	err := s.withQueueEntryScope(ctx, entryID, func(ctx context.Context, tx Repository, e *QueueEntry) error {
		if e.Status != QueueInConsultation {
			return transition("complete consultation", e.Status)
		}

		now := s.now()
		e.Status = QueueCompleted
		e.ConsultationEndTime = &now
		e.UpdatedAt = now
		if err := tx.UpdateQueueEntry(ctx, e); err != nil {
			return fmt.Errorf("complete queue entry: %w", err)
		}
		if err := s.logEvent(ctx, tx, e.AppointmentID, EventQueueCompleted, map[string]any{
			"queue_entry_id": e.ID.String(),
			"token_number":   e.TokenNumber,
		}); err != nil {
			return err
		}

		a, err := tx.GetAppointment(ctx, e.AppointmentID)
		if err != nil {
			return err
		}
		if err := s.completeAppointment(ctx, tx, a, notes); err != nil {
			return err
		}
		completed = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, appointmentNotification(notify.KindCompleted, completed, "Visit completed"))
	return completed, nil
}

// Remind nudges a waiting patient.
func (s *Service) Remind(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	var reminded *QueueEntry
	err := s.withQueueEntryScope(ctx, entryID, func(ctx context.Context, tx Repository, e *QueueEntry) error {
		if e.Status != QueueWaiting {
			return transition("remind", e.Status)
		}
		now := s.now()
		e.ReminderCount++
		e.LastReminderTime = &now
		e.UpdatedAt = now
		if err := tx.UpdateQueueEntry(ctx, e); err != nil {
			return fmt.Errorf("remind queue entry: %w", err)
		}
		reminded = e
		return s.logEvent(ctx, tx, e.AppointmentID, EventQueueReminded, map[string]any{
			"reminder_count": e.ReminderCount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, queueNotification(notify.KindQueueReminder, reminded,
		fmt.Sprintf("Token %d, please stay close, you will be called soon", reminded.TokenNumber)))
	return reminded, nil
}

// MarkQueueNoShow drops a patient who did not answer the call, and records
// the appointment as a no-show.
func (s *Service) MarkQueueNoShow(ctx context.Context, entryID uuid.UUID) (*QueueEntry, error) {
	var dropped *QueueEntry
	err := s.withQueueEntryScope(ctx, entryID, func(ctx context.Context, tx Repository, e *QueueEntry) error {
		if err := s.queueNoShow(ctx, tx, e); err != nil {
			return err
		}
		a, err := tx.GetAppointment(ctx, e.AppointmentID)
		if err != nil {
			return err
		}
		if err := s.appointmentNoShow(ctx, tx, a); err != nil {
			return err
		}
		dropped = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dropped, nil
}

func (s *Service) queueNoShow(ctx context.Context, tx Repository, e *QueueEntry) error {
	if e.Status != QueueWaiting && e.Status != QueueInConsultation {
		return transition("mark no-show", e.Status)
	}
	now := s.now()
	if e.Status == QueueInConsultation {
		e.ConsultationEndTime = &now
	}
	e.Status = QueueNoShow
	e.UpdatedAt = now
	if err := tx.UpdateQueueEntry(ctx, e); err != nil {
		return fmt.Errorf("mark queue entry no-show: %w", err)
	}
	return s.logEvent(ctx, tx, e.AppointmentID, EventQueueNoShow, map[string]any{"token_number": e.TokenNumber})
}

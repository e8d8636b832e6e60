// Package reminder selects appointments and follow-ups whose time falls in
// the reminder window and sends one notification for each.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/appointment"
	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/notify"
)

// Source is the slice of the appointment repository reminders need.
type Source interface {
	ListUpcoming(ctx context.Context, fromDate, toDate time.Time) ([]appointment.Appointment, error)
	ListFollowUpsDue(ctx context.Context, fromDate, toDate time.Time) ([]appointment.Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, followUp bool, at time.Time) error
}

type Due struct {
	Appointment appointment.Appointment
	FollowUp    bool
	// At is the visit start, or the follow-up day for follow-ups.
	At time.Time
}

type Selector struct {
	source Source
	loc    *time.Location
}

func NewSelector(source Source, loc *time.Location) *Selector {
	if loc == nil {
		loc = time.Local
	}
	return &Selector{source: source, loc: loc}
}

// Select returns visits starting in [now, now+lead) that have not been
// reminded, and follow-ups dated on any day the window touches.
func (s *Selector) Select(ctx context.Context, now time.Time, lead time.Duration) ([]Due, error) {
	if lead <= 0 {
		return nil, nil
	}
	now = now.In(s.loc)
	end := now.Add(lead)
	fromDate, toDate := availability.DateOf(now), availability.DateOf(end)

	upcoming, err := s.source.ListUpcoming(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list upcoming: %w", err)
	}

	var due []Due
	for _, a := range upcoming {
		at := a.StartsAt(s.loc)
		if at.Before(now) || !at.Before(end) {
			continue
		}
		due = append(due, Due{Appointment: a, At: at})
	}

	followUps, err := s.source.ListFollowUpsDue(ctx, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list follow-ups: %w", err)
	}
	for _, a := range followUps {
		f := a.Clinical.FollowUpDate
		due = append(due, Due{
			Appointment: a,
			FollowUp:    true,
			At:          time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, s.loc),
		})
	}
	return due, nil
}

// Runner sends the reminders the selector finds. A failed send is left
// unmarked so the next run picks it up again.
type Runner struct {
	selector *Selector
	source   Source
	sender   notify.Sender
	lead     time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewRunner(source Source, sender notify.Sender, lead time.Duration, loc *time.Location, log *zap.Logger) *Runner {
	return &Runner{
		selector: NewSelector(source, loc),
		source:   source,
		sender:   sender,
		lead:     lead,
		log:      log,
		now:      time.Now,
	}
}

// RunOnce performs one pass and reports how many reminders went out.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.selector.Select(ctx, now, r.lead)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, d := range due {
		if err := r.sender.Send(ctx, notification(d, now)); err != nil {
			r.log.Warn("reminder send failed",
				zap.Stringer("appointment_id", d.Appointment.ID),
				zap.Bool("follow_up", d.FollowUp),
				zap.Error(err),
			)
			continue
		}
		if err := r.source.MarkReminded(ctx, d.Appointment.ID, d.FollowUp, now); err != nil {
			r.log.Error("failed to mark reminder sent",
				zap.Stringer("appointment_id", d.Appointment.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}

	r.log.Info("reminder pass finished", zap.Int("due", len(due)), zap.Int("sent", sent))
	return sent, nil
}

func notification(d Due, now time.Time) notify.Notification {
	a := d.Appointment
	n := notify.Notification{
		Kind:          notify.KindUpcomingReminder,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		Message:       fmt.Sprintf("Reminder: your appointment is on %s at %s", a.Date.Format(availability.DateLayout), a.Slot.Start),
		Data:          map[string]string{"at": d.At.Format(time.RFC3339)},
		At:            now,
	}
	if d.FollowUp {
		n.Kind = notify.KindFollowUpReminder
		n.Message = fmt.Sprintf("Reminder: your follow-up visit is due on %s", d.At.Format(availability.DateLayout))
	}
	return n
}

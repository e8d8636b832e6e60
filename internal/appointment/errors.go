package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrSlotConflict           = errors.New("slot overlaps an existing appointment")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConsultationInProgress = errors.New("a consultation is already in progress")
	ErrNoWaitingPatients      = errors.New("no waiting patients")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrQueueEntryNotFound     = errors.New("queue entry not found")
	ErrAlreadyQueued          = errors.New("appointment already has a queue entry")
	ErrScopeBusy              = errors.New("schedule is busy, please retry")
	ErrDuplicateToken         = errors.New("token number already issued")
)

// ValidationError is returned before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError names the operation that the current status disallows.
type TransitionError struct {
	Op   string
	From string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from status %q", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func transition[S ~string](op string, from S) error {
	return &TransitionError{Op: op, From: string(from)}
}

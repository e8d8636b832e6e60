// Package directory is the read-only view of doctors, patients and leave
// schedules that the scheduling core consults.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/availability"
)

var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrPatientNotFound = errors.New("patient not found")
)

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Email     *string
	Phone     *string
	Hours     availability.WorkingHours
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Directory looks up identities by id.
type Directory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// LeaveReader returns leave periods intersecting [from, to].
type LeaveReader interface {
	ListLeaves(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.Leave, error)
}

package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/availability"
)

// workingDay loads what slot generation and booking validation need to know
// about a doctor's day.
func (s *Service) workingDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (availability.WorkingHours, []availability.Leave, error) {
	doctor, err := s.dir.GetDoctor(ctx, doctorID)
	if err != nil {
		return availability.WorkingHours{}, nil, err
	}
	hours := doctor.Hours
	if hours.SlotMinutes == 0 {
		hours.SlotMinutes = s.defaultSlotMinutes
	}

	var leaves []availability.Leave
	if s.leaves != nil {
		leaves, err = s.leaves.ListLeaves(ctx, doctorID, date, date)
		if err != nil {
			return availability.WorkingHours{}, nil, fmt.Errorf("list leaves: %w", err)
		}
	}
	return hours, leaves, nil
}

// GetSlots returns the doctor's slots for date with booked ones flagged.
func (s *Service) GetSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]availability.Slot, error) {
	date = availability.DateOf(date)
	hours, leaves, err := s.workingDay(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	occupied, err := s.repo.ListOccupiedRanges(ctx, doctorID, date, uuid.Nil)
	if err != nil {
		return nil, fmt.Errorf("list occupied ranges: %w", err)
	}
	return availability.SlotList(hours, date, leaves, occupied)
}

// DoctorSlotMinutes is the slot length offered for the doctor.
func (s *Service) DoctorSlotMinutes(ctx context.Context, doctorID uuid.UUID) (int, error) {
	doctor, err := s.dir.GetDoctor(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	if doctor.Hours.SlotMinutes > 0 {
		return doctor.Hours.SlotMinutes, nil
	}
	return s.defaultSlotMinutes, nil
}

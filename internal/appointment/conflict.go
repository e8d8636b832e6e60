package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/availability"
)

// IsSlotAvailable answers whether [start, end) is free for the doctor on date.
// The answer is advisory; bookings re-check inside their own transaction.
func (s *Service) IsSlotAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, slot availability.TimeRange) (bool, error) {
	if !slot.Valid() {
		return false, invalid("slot", "start must be before end within one day")
	}
	occupied, err := s.repo.ListOccupiedRanges(ctx, doctorID, availability.DateOf(date), uuid.Nil)
	if err != nil {
		return false, fmt.Errorf("list occupied ranges: %w", err)
	}
	return !availability.OverlapsAny(slot, occupied), nil
}

// checkConflict is the transactional form of IsSlotAvailable. excludeID
// skips the appointment being moved.
func checkConflict(ctx context.Context, tx Repository, doctorID uuid.UUID, date time.Time, slot availability.TimeRange, excludeID uuid.UUID) error {
	occupied, err := tx.ListOccupiedRanges(ctx, doctorID, date, excludeID)
	if err != nil {
		return fmt.Errorf("list occupied ranges: %w", err)
	}
	if availability.OverlapsAny(slot, occupied) {
		return ErrSlotConflict
	}
	return nil
}

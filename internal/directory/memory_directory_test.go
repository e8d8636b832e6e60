package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/consultation-queue/internal/availability"
)

func TestMemoryDirectory_Lookups(t *testing.T) {
	dir := NewMemoryDirectory()
	doc := dir.AddDoctor(Doctor{Name: "Dr. Rao", Hours: availability.WorkingHours{SlotMinutes: 20}})
	pat := dir.AddPatient(Patient{Name: "Asha"})

	got, err := dir.GetDoctor(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Hours.SlotMinutes)

	_, err = dir.GetPatient(context.Background(), pat.ID)
	require.NoError(t, err)

	_, err = dir.GetDoctor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	_, err = dir.GetPatient(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestMemoryDirectory_ListLeavesIntersecting(t *testing.T) {
	dir := NewMemoryDirectory()
	doctorID := uuid.New()
	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	dir.AddLeave(doctorID, availability.Leave{StartDate: day.AddDate(0, 0, -3), EndDate: day.AddDate(0, 0, -1), Status: "approved"})
	dir.AddLeave(doctorID, availability.Leave{StartDate: day, EndDate: day.AddDate(0, 0, 2), Status: "approved"})
	dir.AddLeave(uuid.New(), availability.Leave{StartDate: day, EndDate: day, Status: "approved"})

	leaves, err := dir.ListLeaves(context.Background(), doctorID, day, day)
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	assert.True(t, leaves[0].Covers(day))
}

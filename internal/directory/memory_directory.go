package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-queue/internal/availability"
)

type memoryLeave struct {
	doctorID uuid.UUID
	leave    availability.Leave
}

// MemoryDirectory backs STORAGE_DRIVER=memory and the service tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]Doctor
	patients map[uuid.UUID]Patient
	leaves   []memoryLeave
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		doctors:  make(map[uuid.UUID]Doctor),
		patients: make(map[uuid.UUID]Patient),
	}
}

func (m *MemoryDirectory) AddDoctor(d Doctor) Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	d.CreatedAt, d.UpdatedAt = now, now
	m.doctors[d.ID] = d
	return d
}

func (m *MemoryDirectory) AddPatient(p Patient) Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.patients[p.ID] = p
	return p
}

func (m *MemoryDirectory) AddLeave(doctorID uuid.UUID, l availability.Leave) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, memoryLeave{doctorID: doctorID, leave: l})
}

func (m *MemoryDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *MemoryDirectory) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryDirectory) ListLeaves(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]availability.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to = availability.DateOf(from), availability.DateOf(to)
	var result []availability.Leave
	for _, ml := range m.leaves {
		if ml.doctorID != doctorID {
			continue
		}
		if availability.DateOf(ml.leave.StartDate).After(to) || availability.DateOf(ml.leave.EndDate).Before(from) {
			continue
		}
		result = append(result, ml.leave)
	}
	return result, nil
}

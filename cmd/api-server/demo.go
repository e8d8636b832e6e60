package main

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/availability"
	"github.com/hackgods/consultation-queue/internal/directory"
)

const (
	demoDoctors  = 3
	demoPatients = 20
)

var specialties = []string{"General Practice", "Cardiology", "Dermatology", "Pediatrics", "Orthopedics"}

// seedDemo fills an in-memory directory so the API is usable without Postgres.
func seedDemo(dir *directory.MemoryDirectory, log *zap.Logger) {
	for range demoDoctors {
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		email := gofakeit.Email()
		d := dir.AddDoctor(directory.Doctor{
			ID:        uuid.New(),
			Name:      "Dr. " + gofakeit.Name(),
			Specialty: &specialty,
			Email:     &email,
			Hours:     demoHours(),
		})
		log.Info("demo doctor", zap.Stringer("id", d.ID), zap.String("name", d.Name))
	}

	for range demoPatients {
		email, phone := gofakeit.Email(), gofakeit.Phone()
		p := dir.AddPatient(directory.Patient{
			ID:    uuid.New(),
			Name:  gofakeit.Name(),
			Email: &email,
			Phone: &phone,
		})
		log.Debug("demo patient", zap.Stringer("id", p.ID), zap.String("name", p.Name))
	}
}

// demoHours is Monday to Friday 09:00-17:00 with a lunch break.
func demoHours() availability.WorkingHours {
	lunch := availability.TimeRange{Start: availability.NewClock(13, 0), End: availability.NewClock(14, 0)}
	var days []availability.DayHours
	for wd := time.Monday; wd <= time.Friday; wd++ {
		days = append(days, availability.DayHours{
			Weekday:     wd,
			IsAvailable: true,
			Start:       availability.NewClock(9, 0),
			End:         availability.NewClock(17, 0),
			Break:       &lunch,
		})
	}
	return availability.WorkingHours{Days: days, SlotMinutes: 30}
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

type slotView struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	IsBooked bool   `json:"is_booked"`
}

// call performs one request and decodes a 2xx body into out when it is non-nil.
func (s *Simulator) call(ctx context.Context, method, path string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	}
	return resp.StatusCode, latency, nil
}

func (s *Simulator) pick(rng *rand.Rand, ids []uuid.UUID) uuid.UUID {
	return ids[rng.IntN(len(ids))]
}

// doBooking reads a doctor's slots for a random day and books a free one.
// Several workers often race for the same slot; losers see 409.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctorID := s.pick(rng, s.pool.Doctors)
	offset := rng.IntN(s.config.DaysAhead + 1)
	date := time.Now().AddDate(0, 0, offset).Format(dateLayout)

	var slots struct {
		Slots []slotView `json:"slots"`
	}
	status, latency, err := s.call(ctx, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=%s", doctorID, date), nil, &slots)
	s.metrics.Slots.Record(latency, err == nil && status == http.StatusOK, false)
	if err != nil || status != http.StatusOK {
		return
	}

	var free []slotView
	for _, sl := range slots.Slots {
		if !sl.IsBooked {
			free = append(free, sl)
		}
	}
	if len(free) == 0 {
		return
	}
	// Bias toward the first few slots to provoke contention.
	sl := free[rng.IntN(min(len(free), 4))]

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err = s.call(ctx, http.MethodPost, "/appointments", map[string]any{
		"doctor_id":  doctorID,
		"patient_id": s.pick(rng, s.pool.Patients),
		"date":       date,
		"start":      sl.Start,
		"end":        sl.End,
		"type":       "consultation",
	}, &created)
	s.metrics.Booking.Record(latency, err == nil && status == http.StatusCreated, status == http.StatusConflict)

	if err == nil && status == http.StatusCreated && offset == 0 {
		s.pool.addToday(created.ID)
	}
}

var severities = []string{"critical", "severe", "moderate", "minor"}

func (s *Simulator) doEmergency(ctx context.Context, rng *rand.Rand) {
	status, latency, err := s.call(ctx, http.MethodPost, "/appointments/emergency", map[string]any{
		"doctor_id":       s.pick(rng, s.pool.Doctors),
		"patient_id":      s.pick(rng, s.pool.Patients),
		"severity":        severities[rng.IntN(len(severities))],
		"chief_complaint": "simulated walk-in",
	}, nil)
	s.metrics.Emergency.Record(latency, err == nil && status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doCheckIn(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.takeToday(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/check-in", id), nil, nil)
	s.metrics.CheckIn.Record(latency, err == nil && status == http.StatusCreated, status == http.StatusConflict)
}

func (s *Simulator) doCallNext(ctx context.Context, rng *rand.Rand) {
	var entry struct {
		ID uuid.UUID `json:"id"`
	}
	path := fmt.Sprintf("/doctors/%s/queue/call-next", s.pick(rng, s.pool.Doctors))
	status, latency, err := s.call(ctx, http.MethodPost, path, nil, &entry)

	// 409 means a consultation is already running and 404 an empty queue;
	// both are expected outcomes under load.
	busy := status == http.StatusConflict || status == http.StatusNotFound
	s.metrics.CallNext.Record(latency, err == nil && status == http.StatusOK, busy)

	if err == nil && status == http.StatusOK {
		s.pool.addServing(entry.ID)
	}
}

func (s *Simulator) doCompleteConsultation(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.takeServing(rng)
	if !ok {
		return
	}
	status, latency, err := s.call(ctx, http.MethodPost, fmt.Sprintf("/queue/%s/complete", id), map[string]any{
		"diagnosis": "simulated",
	}, nil)
	s.metrics.Consultation.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doReadQueue(ctx context.Context, rng *rand.Rand) {
	status, latency, err := s.call(ctx, http.MethodGet, fmt.Sprintf("/doctors/%s/queue", s.pick(rng, s.pool.Doctors)), nil, nil)
	s.metrics.Queue.Record(latency, err == nil && status == http.StatusOK, false)
}

package api

import (
	"net/http"
	"time"

	"github.com/hackgods/consultation-queue/internal/health"
)

const readinessTimeout = time.Second

type HealthHandler struct {
	checks  []health.Check
	env     string
	version string
}

func NewHealthHandler(env, version string, checks ...health.Check) *HealthHandler {
	return &HealthHandler{checks: checks, env: env, version: version}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  health.StatusOK,
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	report := health.Run(r.Context(), readinessTimeout, h.checks)

	code := http.StatusOK
	if !report.Ready() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, ReadinessResponse{
		Status:       report.Status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: report.Dependencies,
	})
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/hackgods/consultation-queue/internal/appointment"
	"github.com/hackgods/consultation-queue/internal/health"
)

type RouterConfig struct {
	Service      *appointment.Service
	Logger       *zap.Logger
	HealthChecks []health.Check // pinged by /health/ready
	Env          string
	Version      string
	CORSOrigins  []string
	RateLimitRPM int
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.RateLimitRPM > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPM, time.Minute))
	}

	// Health endpoints
	hh := NewHealthHandler(cfg.Env, cfg.Version, cfg.HealthChecks...)
	r.Get("/health/live", hh.Liveness)
	r.Get("/health/ready", hh.Readiness)

	h := &handlers{svc: cfg.Service, log: log}

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", h.getSlots)
		r.Get("/availability", h.checkAvailability)
		r.Get("/appointments", h.listDoctorAppointments)
		r.Get("/queue", h.getQueue)
		r.Get("/queue/current", h.currentConsultation)
		r.Post("/queue/call-next", h.callNext)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.createAppointment)
		r.Get("/", h.listPatientAppointments)
		r.Post("/emergency", h.createEmergency)
		r.Get("/{id}", h.getAppointment)
		r.Post("/{id}/confirm", h.appointmentAction(cfg.Service.Confirm))
		r.Post("/{id}/check-in", h.checkIn)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/reschedule", h.reschedule)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/no-show", h.appointmentAction(cfg.Service.MarkNoShow))
	})

	r.Route("/queue/{id}", func(r chi.Router) {
		r.Get("/", h.getQueueEntry)
		r.Post("/complete", h.completeConsultation)
		r.Post("/remind", h.queueAction(cfg.Service.Remind))
		r.Post("/no-show", h.queueAction(cfg.Service.MarkQueueNoShow))
	})

	return r
}

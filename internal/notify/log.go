package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes notifications to the log. Used when no broker is
// configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.log.Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.Stringer("appointment_id", n.AppointmentID),
		zap.Stringer("patient_id", n.PatientID),
		zap.Int("token_number", n.TokenNumber),
		zap.String("message", n.Message),
	)
	return nil
}

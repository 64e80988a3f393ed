package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/logging"
)

// LogMailer writes messages to the log instead of sending them. It stands in for
// SendGrid in development when no API key is configured.
type LogMailer struct {
	logger *logrus.Entry
}

func NewLogMailer(logger *logrus.Entry) *LogMailer {
	if logger == nil {
		logger = logging.Logger()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg EmailMessage) error {
	emails := make([]string, 0, len(msg.To))
	for _, r := range msg.To {
		emails = append(emails, r.Email)
	}

	m.logger.WithFields(logging.Fields{
		"event":   "email_skipped",
		"to":      emails,
		"subject": msg.Subject,
	}).Info("email provider not configured; message logged only")
	return nil
}

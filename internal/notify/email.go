package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/config"
)

// ErrPermanent wraps delivery failures that must not be retried.
var ErrPermanent = errors.New("permanent delivery failure")

// EmailSender delivers a single message to an external mail transport.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogEmailSender is the development transport: it logs instead of sending.
type LogEmailSender struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewLogEmailSender builds the logging transport.
func NewLogEmailSender(logger *zap.Logger, cfg config.NotificationConfig) *LogEmailSender {
	return &LogEmailSender{logger: logger, cfg: cfg}
}

// Send logs the outbound message.
func (s *LogEmailSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Info("email sent",
		zap.String("from", s.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}

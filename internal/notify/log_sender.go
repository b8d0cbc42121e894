package notify

import (
	"context"
	"log/slog"

	"github.com/phrazzld/pm-api/internal/platform/logger"
)

// LogSender writes notifications to the log instead of sending them.
// It is used when no SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With(slog.String("component", "log_sender"))}
}

// SendProjectWelcome implements Sender.
func (s *LogSender) SendProjectWelcome(ctx context.Context, to string, data WelcomeData) {
	s.log(ctx, welcomeMessage(to, data))
}

// SendTaskAssignment implements Sender.
func (s *LogSender) SendTaskAssignment(ctx context.Context, to string, data AssignmentData) {
	s.log(ctx, assignmentMessage(to, data))
}

func (s *LogSender) log(ctx context.Context, m message) {
	logger.FromContextOrDefault(ctx, s.logger).Info("email not sent, smtp disabled",
		slog.String("kind", m.kind),
		slog.String("to", m.to),
		slog.String("subject", m.subject))
}

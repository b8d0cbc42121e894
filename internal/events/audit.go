package events

import (
	"context"
	"log/slog"

	"github.com/phrazzld/pm-api/internal/platform/logger"
)

// AuditLogHandler writes every event to the log.
type AuditLogHandler struct {
	logger *slog.Logger
}

// NewAuditLogHandler creates an AuditLogHandler.
func NewAuditLogHandler(l *slog.Logger) *AuditLogHandler {
	return &AuditLogHandler{logger: l.With("component", "audit_log")}
}

// HandleEvent implements EventHandler.
func (h *AuditLogHandler) HandleEvent(ctx context.Context, event *Event) error {
	logger.FromContextOrDefault(ctx, h.logger).Info("domain event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.Type),
		slog.Time("event_time", event.CreatedAt),
		slog.String("payload", string(event.Payload)))
	return nil
}

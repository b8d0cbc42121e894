package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/pm-api/internal/config"
	"github.com/phrazzld/pm-api/internal/platform/logger"
	"github.com/wneessen/go-mail"
)

const sendTimeout = 30 * time.Second

// SMTPSender delivers notifications through an SMTP relay.
type SMTPSender struct {
	from    string
	deliver func(ctx context.Context, msg *mail.Msg) error
	logger  *slog.Logger
}

var _ Sender = (*SMTPSender)(nil)

// NewSMTPSender creates an SMTPSender for the configured relay.
// SMTP authentication is only enabled when a username is set.
func NewSMTPSender(cfg config.SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(sendTimeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return newSMTPSender(cfg.From, func(ctx context.Context, msg *mail.Msg) error {
		return client.DialAndSendWithContext(ctx, msg)
	}, logger), nil
}

func newSMTPSender(from string, deliver func(context.Context, *mail.Msg) error, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		from:    from,
		deliver: deliver,
		logger:  logger.With(slog.String("component", "smtp_sender")),
	}
}

// SendProjectWelcome implements Sender.
func (s *SMTPSender) SendProjectWelcome(ctx context.Context, to string, data WelcomeData) {
	s.send(ctx, welcomeMessage(to, data))
}

// SendTaskAssignment implements Sender.
func (s *SMTPSender) SendTaskAssignment(ctx context.Context, to string, data AssignmentData) {
	s.send(ctx, assignmentMessage(to, data))
}

func (s *SMTPSender) send(ctx context.Context, m message) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("kind", m.kind),
		slog.String("to", m.to))

	msg, err := s.build(m)
	if err != nil {
		log.Error("failed to build email", slog.String("error", err.Error()))
		return
	}

	if err := s.deliver(ctx, msg); err != nil {
		log.Error("failed to send email", slog.String("error", err.Error()))
		return
	}
	log.Info("email sent")
}

func (s *SMTPSender) build(m message) (*mail.Msg, error) {
	body, err := m.render()
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(m.subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

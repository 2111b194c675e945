package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"

	"trustcore/internal/domain"
)

// ErrNoHost indicates that no SMTP host is configured.
var ErrNoHost = errors.New("smtp host is required")

// SMTPConfig holds the outbound mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends reset messages through an SMTP relay.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer creates a mailer. Authentication is only enabled when a
// username is configured.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, ErrNoHost
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp: new client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// SendPasswordReset delivers the reset link to msg.To.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, msg domain.PasswordResetEmail) error {
	out, err := buildResetMessage(m.from, msg)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

func buildResetMessage(from string, msg domain.PasswordResetEmail) (*gomail.Msg, error) {
	subject, body, err := renderReset(msg)
	if err != nil {
		return nil, err
	}

	out := gomail.NewMsg()
	if err := out.From(from); err != nil {
		return nil, fmt.Errorf("smtp: from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp: to address: %w", err)
	}
	out.Subject(subject)
	out.SetBodyString(gomail.TypeTextPlain, body)
	return out, nil
}

// Package mail implements notify.Mailer over SMTP and over the log.
package mail

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/xenking/oolio-shop/internal/domain/notify"
)

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS requires STARTTLS instead of trying it opportunistically.
	TLS bool
}

// SMTPMailer sends email through an SMTP relay.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

var _ notify.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates an SMTPMailer. Connections are opened per message.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.TLS {
		opts[1] = gomail.WithTLSPolicy(gomail.TLSMandatory)
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
		return nil, errors.Wrap(err, "create smtp client")
	}
	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send implements notify.Mailer.
func (m *SMTPMailer) Send(ctx context.Context, e notify.Email) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return errors.Wrap(err, "set from")
	}
	if err := msg.To(e.To); err != nil {
		return errors.Wrap(err, "set to")
	}
	msg.Subject(e.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, e.HTML)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrap(err, "send")
	}
	return nil
}

// LogMailer writes messages to the context logger instead of sending them.
// It is used when no SMTP relay is configured.
type LogMailer struct{}

var _ notify.Mailer = LogMailer{}

// Send implements notify.Mailer.
func (LogMailer) Send(ctx context.Context, e notify.Email) error {
	zctx.From(ctx).Info("Email",
		zap.String("to", e.To),
		zap.String("subject", e.Subject),
		zap.Int("body_bytes", len(e.HTML)),
	)
	return nil
}

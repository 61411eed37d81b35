package notify

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Dispatcher resolves templates, renders them and hands the result to a
// Mailer.
type Dispatcher struct {
	templates TemplateStore
	mailer    Mailer
	timeout   time.Duration
}

var _ Sender = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. Each send gets its own timeout and is
// detached from the caller's cancellation.
func NewDispatcher(templates TemplateStore, mailer Mailer, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{templates: templates, mailer: mailer, timeout: timeout}
}

// Send renders and delivers msg. Failures are logged and swallowed.
func (d *Dispatcher) Send(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	lg := zctx.From(ctx).With(
		zap.String("event", string(msg.Event)),
		zap.String("to", msg.To),
	)
	if msg.To == "" {
		lg.Debug("Skipping notification without recipient")
		return
	}

	email, err := d.Render(ctx, msg)
	if err != nil {
		lg.Error("Render notification", zap.Error(err))
		return
	}
	if err := d.mailer.Send(ctx, *email); err != nil {
		lg.Error("Deliver notification", zap.Error(err))
		return
	}
	lg.Debug("Notification sent")
}

// Render resolves the template for msg and renders it.
func (d *Dispatcher) Render(ctx context.Context, msg Message) (*Email, error) {
	tpl, err := d.resolve(ctx, msg.Event)
	if err != nil {
		return nil, err
	}
	data := msg.Data
	if data == nil {
		data = map[string]any{}
	}

	subject, err := renderText(tpl.Subject, data)
	if err != nil {
		return nil, errors.Wrapf(err, "subject %q", msg.Event)
	}
	body, err := renderHTML(tpl.Body, data)
	if err != nil {
		return nil, errors.Wrapf(err, "body %q", msg.Event)
	}
	return &Email{To: msg.To, Subject: strings.TrimSpace(subject), HTML: body}, nil
}

func (d *Dispatcher) resolve(ctx context.Context, event Event) (Template, error) {
	if d.templates != nil {
		t, err := d.templates.FindTemplate(ctx, string(event))
		switch {
		case err == nil:
			return *t, nil
		case !errors.Is(err, ErrTemplateNotFound):
			// Store outage falls through to built-ins so the mail still goes out.
			zctx.From(ctx).Warn("Lookup email template", zap.String("name", string(event)), zap.Error(err))
		}
	}
	if t, ok := builtin[event]; ok {
		return t, nil
	}
	return generic, nil
}

func renderText(src string, data map[string]any) (string, error) {
	t, err := texttemplate.New("subject").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", errors.Wrap(err, "parse")
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "execute")
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

func renderHTML(src string, data map[string]any) (string, error) {
	t, err := htmltemplate.New("body").Option("missingkey=zero").Parse(src)
	if err != nil {
		return "", errors.Wrap(err, "parse")
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "execute")
	}
	return buf.String(), nil
}

// Package notify renders event templates and delivers them by email.
//
// Delivery is fire-and-forget: Dispatcher.Send logs failures and never
// returns them, so a lost notification never undoes the operation that
// triggered it. There is no retry and no queue.
package notify

import (
	"context"

	"github.com/xenking/oolio-shop/internal/apperr"
)

// Event names a notification kind and doubles as its template name.
type Event string

const (
	EventOrderConfirmation    Event = "order_confirmation"
	EventOrderStatusUpdate    Event = "order_status_update"
	EventWelcome              Event = "welcome"
	EventPasswordReset        Event = "password_reset"
	EventPasswordResetSuccess Event = "password_reset_success"
	EventAdminAlert           Event = "admin_alert"
)

// Message is a notification to render and deliver.
type Message struct {
	Event Event
	To    string
	Data  map[string]any
}

// Template is a stored subject/body pair. Body is an html/template source,
// Subject a text/template source.
type Template struct {
	Name    string
	Subject string
	Body    string
}

// ErrTemplateNotFound is returned by a TemplateStore without a matching row.
var ErrTemplateNotFound = apperr.NotFound("email template")

// TemplateStore looks up admin-editable templates.
type TemplateStore interface {
	FindTemplate(ctx context.Context, name string) (*Template, error)
}

// Email is a rendered message ready for delivery.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers rendered email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// Sender is the fire-and-forget entry point used by domain services.
type Sender interface {
	Send(ctx context.Context, msg Message)
}

// Nop discards every message.
type Nop struct{}

// Send implements Sender.
func (Nop) Send(context.Context, Message) {}

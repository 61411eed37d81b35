package notify

import (
	"slices"
	"strings"
)

// builtin holds the minimal templates used when no stored template exists.
var builtin = map[Event]Template{
	EventOrderConfirmation: {
		Subject: "Order {{.order_id}} confirmed",
		Body: `<h1>Thank you for your order, {{.customer_name}}!</h1>
<p>Your payment for order <strong>{{.order_id}}</strong> was received.</p>
<p>Total: {{.total_amount}}</p>`,
	},
	EventOrderStatusUpdate: {
		Subject: "Order {{.order_id}} is now {{.status}}",
		Body: `<h1>Hello {{.customer_name}},</h1>
<p>Your order <strong>{{.order_id}}</strong> is now <strong>{{.status}}</strong>.</p>
{{if .tracking_number}}<p>Tracking number: {{.tracking_number}}</p>{{end}}
{{if .notes}}<p>{{.notes}}</p>{{end}}`,
	},
	EventWelcome: {
		Subject: "Welcome, {{.name}}",
		Body:    `<h1>Welcome, {{.name}}!</h1><p>Your account has been created.</p>`,
	},
	EventPasswordReset: {
		Subject: "Reset your password",
		Body: `<p>Hello {{.name}},</p>
<p>Use the link below to reset your password. It expires in {{.expires_in}}.</p>
<p><a href="{{.reset_url}}">Reset password</a></p>`,
	},
	EventPasswordResetSuccess: {
		Subject: "Your password was changed",
		Body:    `<p>Hello {{.name}},</p><p>Your password has been changed successfully.</p>`,
	},
	EventAdminAlert: {
		Subject: "[Admin] {{.title}}",
		Body: `<h1>{{.title}}</h1><p>{{.message}}</p>
{{if .order_id}}<p>Order: {{.order_id}} ({{.status}}), total {{.total_amount}}</p>{{end}}`,
	},
}

// generic renders events without a stored or built-in template.
var generic = Template{
	Subject: "{{.title}}",
	Body:    `<h1>{{.title}}</h1><p>{{.message}}</p>`,
}

// Builtin returns the default templates keyed by event name, ready to be
// stored for editing.
func Builtin() []Template {
	out := make([]Template, 0, len(builtin))
	for event, t := range builtin {
		t.Name = string(event)
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Template) int { return strings.Compare(a.Name, b.Name) })
	return out
}

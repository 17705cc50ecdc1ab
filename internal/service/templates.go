package service

import (
	"bytes"
	"html/template"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// StatusTemplate is the email copy for one order status.
type StatusTemplate struct {
	Subject string
	Color   string
	Icon    string
	Message string
}

var statusTemplates = map[models.OrderStatus]StatusTemplate{
	models.OrderStatusReceived: {
		Subject: "We've received your order",
		Color:   "#4CAF50",
		Icon:    "🛒",
		Message: "Your order has been received and is waiting to be processed.",
	},
	models.OrderStatusProcessing: {
		Subject: "Your order is being processed",
		Color:   "#2196F3",
		Icon:    "⚙️",
		Message: "We're preparing your items for dispatch.",
	},
	models.OrderStatusDispatched: {
		Subject: "Your order has been dispatched",
		Color:   "#FF9800",
		Icon:    "📦",
		Message: "Your order has left our warehouse.",
	},
	models.OrderStatusShipped: {
		Subject: "Your order has shipped",
		Color:   "#3F51B5",
		Icon:    "🚚",
		Message: "Your order is with our delivery partner.",
	},
	models.OrderStatusInTransit: {
		Subject: "Your order is on the way",
		Color:   "#009688",
		Icon:    "📍",
		Message: "Your order is in transit and will reach you soon.",
	},
	models.OrderStatusDelivered: {
		Subject: "Your order has been delivered",
		Color:   "#2E7D32",
		Icon:    "✅",
		Message: "Your order has been delivered. Enjoy your purchase!",
	},
	models.OrderStatusCancelled: {
		Subject: "Your order has been cancelled",
		Color:   "#F44336",
		Icon:    "❌",
		Message: "Your order has been cancelled. If you were charged, the amount will be returned to you.",
	},
}

var defaultStatusTemplate = StatusTemplate{
	Subject: "Your order has been updated",
	Color:   "#607D8B",
	Icon:    "ℹ️",
	Message: "There is an update on your order.",
}

// TemplateForStatus returns the copy for status, falling back to a generic update.
func TemplateForStatus(status models.OrderStatus) StatusTemplate {
	if t, ok := statusTemplates[status]; ok {
		return t
	}
	return defaultStatusTemplate
}

type emailView struct {
	Name    string
	OrderID string
	Status  models.OrderStatus
	Color   string
	Icon    string
	Heading string
	Message string
	Items   []models.OrderItem
	Total   string
	Method  models.PaymentMethod
}

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif; color: #333333; background-color: #f9f9f9;">
  <div style="background-color: {{.Color}}; padding: 24px; text-align: center;">
    <h1 style="color: white; margin: 0; font-size: 24px;">{{.Icon}} {{.Heading}}</h1>
  </div>
  <div style="max-width: 600px; margin: 0 auto; padding: 30px 20px; background-color: white;">
    <p style="font-size: 16px;">Hi {{.Name}},</p>
    <p style="font-size: 16px;">{{.Message}}</p>
    <p style="font-size: 14px; color: #666;">Order #{{.OrderID}} &middot; Status: <strong>{{.Status}}</strong></p>
    {{- if .Items}}
    <table style="width: 100%; border-collapse: collapse; margin-top: 16px;">
      {{- range .Items}}
      <tr>
        <td style="padding: 6px 0;">{{.Name}}</td>
        <td style="padding: 6px 0; text-align: right;">{{.Quantity}} &times; {{.Price.StringFixed 2}}</td>
      </tr>
      {{- end}}
    </table>
    {{- end}}
    {{- if .Total}}
    <p style="font-size: 16px; font-weight: bold;">Total: ₹{{.Total}} ({{.Method}})</p>
    {{- end}}
  </div>
</body>
</html>`))

func renderEmail(view emailView) (string, error) {
	var buf bytes.Buffer
	if err := emailLayout.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderConfirmationEmail builds the order confirmation sent after checkout or payment.
func RenderConfirmationEmail(order *models.Order, name string) (string, string, error) {
	t := TemplateForStatus(order.Status)
	body, err := renderEmail(emailView{
		Name:    displayName(name),
		OrderID: order.ShortID(),
		Status:  order.Status,
		Color:   t.Color,
		Icon:    "🎉",
		Heading: "Thank you for your order",
		Message: "Your order has been placed successfully.",
		Items:   order.Items,
		Total:   order.TotalPrice.StringFixed(2),
		Method:  order.PaymentMethod,
	})
	return "Order confirmation #" + order.ShortID(), body, err
}

// RenderPaymentFailedEmail builds the notice sent when the gateway reports a failed payment.
func RenderPaymentFailedEmail(order *models.Order, name string) (string, string, error) {
	t := TemplateForStatus(models.OrderStatusCancelled)
	body, err := renderEmail(emailView{
		Name:    displayName(name),
		OrderID: order.ShortID(),
		Status:  order.Status,
		Color:   t.Color,
		Icon:    t.Icon,
		Heading: "Payment failed",
		Message: "We could not complete the payment for your order, so it has been cancelled. You can place the order again at any time.",
		Total:   order.TotalPrice.StringFixed(2),
		Method:  order.PaymentMethod,
	})
	return "Payment failed for order #" + order.ShortID(), body, err
}

// RenderStatusEmail builds the status-specific update email.
func RenderStatusEmail(order *models.Order, name string) (string, string, error) {
	t := TemplateForStatus(order.Status)
	body, err := renderEmail(emailView{
		Name:    displayName(name),
		OrderID: order.ShortID(),
		Status:  order.Status,
		Color:   t.Color,
		Icon:    t.Icon,
		Heading: t.Subject,
		Message: t.Message,
	})
	return t.Subject + " #" + order.ShortID(), body, err
}

func displayName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}

package email

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     int64
}

// Receipt is everything the payment confirmation shows
type Receipt struct {
	Merchant   string
	BuyerName  string
	OrderID    string
	PaymentRef string
	Currency   string
	Total      int64
	Items      []OrderItem
	PaidAt     time.Time
}

var confirmationTemplate = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": FormatAmount,
	"line": func(item OrderItem) int64 {
		return item.Price * int64(item.Quantity)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #8B5CF6 0%, #EC4899 100%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Hi {{.BuyerName}}, we have received your payment. Your order from {{.Merchant}} is confirmed.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.OrderID}}</p>
			<p style="margin: 10px 0 0 0; font-size: 14px; color: #666;">Payment {{.PaymentRef}} on {{.PaidAt.Format "02 Jan 2006, 15:04 MST"}}</p>
		</div>

		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Items}}
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">{{if .Name}}{{.Name}}{{else}}{{.ProductID}}{{end}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money .Price $.Currency}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money (line .) $.Currency}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total paid</span>
			<span style="font-size: 24px; font-weight: bold; color: #8B5CF6; margin-left: 10px;">{{money .Total .Currency}}</span>
		</div>

		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This is an automated message. If anything looks wrong, reply to this email and our support team will help.
		</p>
	</div>
</body>
</html>`))

// BuildPaymentConfirmationBody builds the HTML body for the payment confirmation email
func BuildPaymentConfirmationBody(r Receipt) (string, error) {
	var b strings.Builder
	if err := confirmationTemplate.Execute(&b, r); err != nil {
		return "", fmt.Errorf("failed to render confirmation: %w", err)
	}
	return b.String(), nil
}

// FormatAmount renders minor units with the currency symbol. Rupees use
// Indian digit grouping (12,34,567.00).
func FormatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	major, fraction := minor/100, minor%100
	switch strings.ToUpper(currency) {
	case "INR":
		return fmt.Sprintf("%s₹%s.%02d", sign, groupIndian(major), fraction)
	case "USD":
		return fmt.Sprintf("%s$%s.%02d", sign, groupThousands(major), fraction)
	default:
		return fmt.Sprintf("%s%s %s.%02d", sign, strings.ToUpper(currency), groupThousands(major), fraction)
	}
}

// groupThousands formats a number with comma separators
func groupThousands(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	remainder := len(str) % 3
	if remainder > 0 {
		result.WriteString(str[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < len(str); i += 3 {
		result.WriteString(str[i : i+3])
		if i+3 < len(str) {
			result.WriteString(",")
		}
	}
	return result.String()
}

// groupIndian keeps the last three digits together and groups the rest in pairs.
func groupIndian(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	head, tail := str[:len(str)-3], str[len(str)-3:]

	var result strings.Builder
	remainder := len(head) % 2
	if remainder > 0 {
		result.WriteString(head[:remainder])
		result.WriteString(",")
	}
	for i := remainder; i < len(head); i += 2 {
		result.WriteString(head[i : i+2])
		result.WriteString(",")
	}
	result.WriteString(tail)
	return result.String()
}

package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"text/template"
	"time"

	"github.com/freshbasket/freshbasket/internal/models"
)

const (
	TagOTP      = "otp"
	TagNewOrder = "new-order"
)

// OTPInfo is the data behind a login code email.
type OTPInfo struct {
	To       string
	Code     string
	ValidFor time.Duration
}

// OrderInfo is the data behind the admin new-order email.
type OrderInfo struct {
	To          string
	OrderID     string
	OwnerID     string
	PlacedAt    string
	Items       []OrderItem
	Subtotal    string
	DeliveryFee string
	Total       string
	Address     string
	Latitude    string
	Longitude   string
}

type OrderItem struct {
	Name       string
	Quantity   string
	UnitPrice  string
	TotalPrice string
}

// NewOrderInfo flattens an order into template data.
func NewOrderInfo(to string, order *models.Order) *OrderInfo {
	info := &OrderInfo{
		To:          to,
		OrderID:     order.ID,
		OwnerID:     order.OwnerID,
		PlacedAt:    order.CreatedAt.Format("January 2, 2006 15:04 MST"),
		Subtotal:    formatRupees(order.Subtotal),
		DeliveryFee: formatRupees(order.DeliveryFee),
		Total:       formatRupees(order.Total),
		Address:     order.Address,
		Latitude:    strconv.FormatFloat(order.Location.Latitude, 'f', 6, 64),
		Longitude:   strconv.FormatFloat(order.Location.Longitude, 'f', 6, 64),
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, OrderItem{
			Name:       item.Name,
			Quantity:   strconv.FormatFloat(item.Quantity, 'f', -1, 64),
			UnitPrice:  formatRupees(item.Price),
			TotalPrice: formatRupees(item.Price * item.Quantity),
		})
	}
	return info
}

func formatRupees(amount float64) string {
	return "Rs. " + strconv.FormatFloat(amount, 'f', 2, 64)
}

type Renderer struct {
	text *template.Template
	html *htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	funcMap := map[string]any{
		"minutes": func(d time.Duration) int {
			return int(d.Round(time.Minute) / time.Minute)
		},
	}

	text := template.New("email").Funcs(funcMap)
	html := htmltemplate.New("email").Funcs(funcMap)
	for name, body := range map[string]string{"otp": otpText, "new_order": newOrderText} {
		if _, err := text.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", name, err)
		}
	}
	for name, body := range map[string]string{"otp": otpHTML, "new_order": newOrderHTML} {
		if _, err := html.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", name, err)
		}
	}

	return &Renderer{text: text, html: html}, nil
}

func (r *Renderer) OTP(info *OTPInfo) (*Email, error) {
	email, err := r.render("otp", info)
	if err != nil {
		return nil, err
	}
	email.To = info.To
	email.Subject = "Your FreshBasket login code"
	email.Tag = TagOTP
	return email, nil
}

func (r *Renderer) NewOrder(info *OrderInfo) (*Email, error) {
	email, err := r.render("new_order", info)
	if err != nil {
		return nil, err
	}
	email.To = info.To
	email.Subject = fmt.Sprintf("New order %s - %s", info.OrderID, info.Total)
	email.Tag = TagNewOrder
	return email, nil
}

func (r *Renderer) render(name string, data any) (*Email, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := r.html.ExecuteTemplate(&htmlBuf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.text.ExecuteTemplate(&textBuf, name, data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	return &Email{Text: textBuf.String(), HTML: htmlBuf.String()}, nil
}

const otpText = `Your FreshBasket login code is {{.Code}}

It expires in {{minutes .ValidFor}} minutes. If you did not request it you can ignore this email.
`

const otpHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Login code</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 480px; margin: 0 auto; padding: 20px; }
    .code { font-size: 32px; font-weight: bold; letter-spacing: 8px; color: #15803d; text-align: center; padding: 20px; background: #f0fdf4; border-radius: 8px; }
    .footer { color: #6b7280; font-size: 13px; margin-top: 20px; }
  </style>
</head>
<body>
  <p>Use this code to sign in to FreshBasket:</p>
  <div class="code">{{.Code}}</div>
  <p class="footer">It expires in {{minutes .ValidFor}} minutes. If you did not request it you can ignore this email.</p>
</body>
</html>
`

const newOrderText = `A new order was placed.

Order: {{.OrderID}}
Customer: {{.OwnerID}}
Placed: {{.PlacedAt}}

Items:
{{range .Items}}- {{.Name}} x{{.Quantity}} @ {{.UnitPrice}} = {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Delivery: {{.DeliveryFee}}
Total: {{.Total}}

{{if .Address}}Address: {{.Address}}
{{end}}Location: {{.Latitude}}, {{.Longitude}}
`

const newOrderHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>New order</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #15803d; color: white; padding: 20px; border-radius: 8px 8px 0 0; }
    .items-table { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items-table th { text-align: left; padding: 8px; background: #f3f4f6; }
    .items-table td { padding: 8px; border-bottom: 1px solid #e5e7eb; }
    .total { font-weight: bold; text-align: right; }
  </style>
</head>
<body>
  <div class="header">
    <h2>New order {{.OrderID}}</h2>
    <p>Placed {{.PlacedAt}} by {{.OwnerID}}</p>
  </div>
  <table class="items-table">
    <thead><tr><th>Item</th><th>Qty</th><th>Price</th><th>Total</th></tr></thead>
    <tbody>
      {{range .Items}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td><td>{{.TotalPrice}}</td></tr>
      {{end}}
    </tbody>
  </table>
  <div class="total">
    <p>Subtotal: {{.Subtotal}}</p>
    <p>Delivery: {{.DeliveryFee}}</p>
    <p>Total: {{.Total}}</p>
  </div>
  {{if .Address}}<p><strong>Address:</strong> {{.Address}}</p>{{end}}
  <p><strong>Location:</strong> {{.Latitude}}, {{.Longitude}}</p>
</body>
</html>
`

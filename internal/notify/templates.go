package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/money"
)

const (
	tplWelcome       = "welcome"
	tplOrder         = "order_confirmation"
	tplPasswordReset = "password_reset"
	tplPurchaseOrder = "purchase_order"
)

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"kes":  money.FormatKES,
	"date": func(t time.Time) string { return t.Format("02 Jan 2006") },
	"qty":  func(v float64) string { return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".") },
}).Parse(`
{{define "welcome"}}<h2>Welcome to {{.AppName}}, {{.Name}}!</h2>
<p>Your back-office account for {{.Email}} is ready.</p>
<p><a href="{{.LoginURL}}">Sign in</a> to start managing products, suppliers and purchase orders.</p>{{end}}

{{define "order_confirmation"}}<h2>Order {{.OrderNumber}} confirmed</h2>
<p>Hi {{.CustomerName}}, thank you for your order.</p>
<table>
<tr><th>Item</th><th>Qty</th><th>Unit price</th><th>Total</th></tr>
{{range .Lines}}<tr><td>{{.Name}}</td><td>{{qty .Quantity}}</td><td>{{kes .UnitPrice}}</td><td>{{kes .Total}}</td></tr>
{{end}}</table>
<p>Taxable amount: {{kes .Subtotal}}<br>VAT: {{kes .Tax}}<br><strong>Total: {{kes .Total}}</strong></p>{{end}}

{{define "password_reset"}}<h2>Reset your password</h2>
<p>Hi {{.Name}}, we received a request to reset the password for {{.Email}}.</p>
<p><a href="{{.ResetURL}}">Choose a new password</a>. The link expires in {{.ExpiresIn}}.</p>
<p>If you did not request this you can ignore this email.</p>{{end}}

{{define "purchase_order"}}<h2>Purchase order {{.PONumber}}</h2>
<p>Dear {{.SupplierName}}, please supply the following items by {{date .DueDate}}.</p>
<table>
<tr><th>Code</th><th>Item</th><th>Qty</th><th>Unit price</th><th>VAT</th><th>Amount</th></tr>
{{range .Lines}}<tr><td>{{.Code}}</td><td>{{.Name}}</td><td>{{qty .Quantity}}</td><td>{{kes .UnitPrice}}</td><td>{{kes .Tax}}</td><td>{{kes .Amount}}</td></tr>
{{end}}</table>
<p>Subtotal: {{kes .Subtotal}}<br>VAT: {{kes .Tax}}<br><strong>Grand total: {{kes .GrandTotal}}</strong></p>{{end}}
`))

// WelcomeEmail is sent after an account is registered.
type WelcomeEmail struct {
	Name  string
	Email string
}

// OrderLine is one row of an order confirmation.
type OrderLine struct {
	Name      string
	Quantity  float64
	UnitPrice float64
	Total     float64
}

// OrderConfirmation is sent when a customer order is stored.
type OrderConfirmation struct {
	CustomerName  string
	CustomerEmail string
	OrderNumber   string
	Lines         []OrderLine
	Subtotal      float64
	Tax           float64
	Total         float64
}

// PasswordReset carries the one-time reset token.
type PasswordReset struct {
	Name      string
	Email     string
	Token     string
	ExpiresIn time.Duration
}

// PurchaseOrderLine is one row of a supplier purchase order.
type PurchaseOrderLine struct {
	Code      string
	Name      string
	Quantity  float64
	UnitPrice float64
	Tax       float64
	Amount    float64
}

// PurchaseOrderEmail is sent to a supplier for every new purchase order.
type PurchaseOrderEmail struct {
	SupplierName  string
	SupplierEmail string
	PONumber      string
	DueDate       time.Time
	Lines         []PurchaseOrderLine
	Subtotal      float64
	Tax           float64
	GrandTotal    float64
}

// NotifierConfig carries branding and link settings.
type NotifierConfig struct {
	AppName     string
	FrontendURL string
	// Deferred, when set, carries order confirmations. Every other email goes through the
	// direct sender because its outcome decides what the caller records.
	Deferred Sender
}

// Notifier renders templates and hands them to a Sender.
type Notifier struct {
	sender   Sender
	deferred Sender
	cfg      NotifierConfig
	logger   *slog.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(sender Sender, cfg NotifierConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AppName == "" {
		cfg.AppName = "Back Office"
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	deferred := cfg.Deferred
	if deferred == nil {
		deferred = sender
	}
	return &Notifier{sender: sender, deferred: deferred, cfg: cfg, logger: logger}
}

// SendWelcome delivers the welcome email.
func (n *Notifier) SendWelcome(ctx context.Context, in WelcomeEmail) error {
	data := struct {
		WelcomeEmail
		AppName  string
		LoginURL string
	}{in, n.cfg.AppName, n.cfg.FrontendURL + "/login"}
	return n.deliver(ctx, n.sender, tplWelcome, in.Email, "Welcome to "+n.cfg.AppName, data)
}

// SendOrderConfirmation delivers the order confirmation email.
func (n *Notifier) SendOrderConfirmation(ctx context.Context, in OrderConfirmation) error {
	return n.deliver(ctx, n.deferred, tplOrder, in.CustomerEmail, fmt.Sprintf("Order %s confirmed", in.OrderNumber), in)
}

// SendPasswordReset delivers the reset link.
func (n *Notifier) SendPasswordReset(ctx context.Context, in PasswordReset) error {
	data := struct {
		PasswordReset
		ResetURL  string
		ExpiresIn string
	}{in, n.ResetURL(in.Token), in.ExpiresIn.String()}
	return n.deliver(ctx, n.sender, tplPasswordReset, in.Email, "Password reset request", data)
}

// SendPurchaseOrder delivers a purchase order to its supplier.
func (n *Notifier) SendPurchaseOrder(ctx context.Context, in PurchaseOrderEmail) error {
	return n.deliver(ctx, n.sender, tplPurchaseOrder, in.SupplierEmail, fmt.Sprintf("Purchase order %s", in.PONumber), in)
}

// ResetURL builds the frontend link for a reset token.
func (n *Notifier) ResetURL(token string) string {
	return n.cfg.FrontendURL + "/reset-password/" + token
}

func (n *Notifier) deliver(ctx context.Context, sender Sender, name, to, subject string, data any) error {
	if n == nil || sender == nil {
		return fmt.Errorf("%w: notifier not configured", ErrSend)
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("%w: %s: recipient missing", ErrSend, name)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("notify: render %s: %w", name, err)
	}
	if err := sender.Send(ctx, Message{To: to, Subject: subject, HTML: buf.String()}); err != nil {
		n.logger.Error("send email", slog.String("template", name), slog.String("to", to), slog.Any("error", err))
		return fmt.Errorf("notify: %s email: %w", name, err)
	}
	return nil
}

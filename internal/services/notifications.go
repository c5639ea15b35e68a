package services

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/domain/customer"
	"billing-lifecycle/internal/providers"
	"billing-lifecycle/internal/repository"
	"billing-lifecycle/pkg/logger"
)

type mailTemplate struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

func newMailTemplate(name, subject, text, html string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New(name + ".subject").Parse(subject)),
		text:    template.Must(template.New(name + ".text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name + ".html").Parse(html)),
	}
}

const (
	mailOrderCreated     = "order_created"
	mailOrderActivated   = "order_activated"
	mailOrderSuspended   = "order_suspended"
	mailDomainRegistered = "domain_registered"
	mailDomainRenewed    = "domain_renewed"
	mailDomainExpired    = "domain_expired"
	mailRenewalReminder  = "renewal_reminder"
)

var mailTemplates = map[string]mailTemplate{
	mailOrderCreated: newMailTemplate(mailOrderCreated,
		"Order {{.OrderNumber}} received",
		"Hello {{.Name}},\n\nWe received order {{.OrderNumber}}{{if .Subject}} for {{.Subject}}{{end}}.\nInvoice {{.InvoiceNumber}}: {{.Price}}.\n",
		"<p>Hello {{.Name}},</p><p>We received order <b>{{.OrderNumber}}</b>{{if .Subject}} for {{.Subject}}{{end}}.</p><p>Invoice {{.InvoiceNumber}}: {{.Price}}.</p>"),
	mailOrderActivated: newMailTemplate(mailOrderActivated,
		"Order {{.OrderNumber}} is active",
		"Hello {{.Name}},\n\nOrder {{.OrderNumber}} ({{.Subject}}) is now active.\n",
		"<p>Hello {{.Name}},</p><p>Order <b>{{.OrderNumber}}</b> ({{.Subject}}) is now active.</p>"),
	mailOrderSuspended: newMailTemplate(mailOrderSuspended,
		"Order {{.OrderNumber}} needs attention",
		"Hello {{.Name}},\n\nOrder {{.OrderNumber}} was suspended: {{.Reason}}.\nOur team has been notified.\n",
		"<p>Hello {{.Name}},</p><p>Order <b>{{.OrderNumber}}</b> was suspended: {{.Reason}}.</p><p>Our team has been notified.</p>"),
	mailDomainRegistered: newMailTemplate(mailDomainRegistered,
		"{{.Subject}} is registered",
		"Hello {{.Name}},\n\n{{.Subject}} is registered until {{.Date}}.\n",
		"<p>Hello {{.Name}},</p><p><b>{{.Subject}}</b> is registered until {{.Date}}.</p>"),
	mailDomainRenewed: newMailTemplate(mailDomainRenewed,
		"{{.Subject}} renewed",
		"Hello {{.Name}},\n\n{{.Subject}} was renewed until {{.Date}}. Charged {{.Price}}.\n",
		"<p>Hello {{.Name}},</p><p><b>{{.Subject}}</b> was renewed until {{.Date}}. Charged {{.Price}}.</p>"),
	mailDomainExpired: newMailTemplate(mailDomainExpired,
		"{{.Subject}} has expired",
		"Hello {{.Name}},\n\n{{.Subject}} expired on {{.Date}}. Renew it soon to keep it.\n",
		"<p>Hello {{.Name}},</p><p><b>{{.Subject}}</b> expired on {{.Date}}. Renew it soon to keep it.</p>"),
	mailRenewalReminder: newMailTemplate(mailRenewalReminder,
		"{{.Subject}} expires on {{.Date}}",
		"Hello {{.Name}},\n\n{{.Subject}} expires on {{.Date}}. Invoice {{.InvoiceNumber}} ({{.Price}}) is open.{{if .Reason}}\nAutomatic renewal did not complete: {{.Reason}}.{{end}}\n",
		"<p>Hello {{.Name}},</p><p><b>{{.Subject}}</b> expires on {{.Date}}. Invoice {{.InvoiceNumber}} ({{.Price}}) is open.</p>{{if .Reason}}<p>Automatic renewal did not complete: {{.Reason}}.</p>{{end}}"),
}

// mailData is the union of fields the templates use.
type mailData struct {
	Name          string
	OrderNumber   string
	InvoiceNumber string
	Subject       string
	Amount        decimal.Decimal
	Currency      string
	Reason        string
	Date          string
}

// Notifications renders customer mail and hands it to the Notifier.
type Notifications struct {
	notifier  providers.Notifier
	customers repository.CustomerRepository
	log       *zap.Logger
}

func NewNotifications(notifier providers.Notifier, customers repository.CustomerRepository, log *zap.Logger) *Notifications {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifications{notifier: notifier, customers: customers, log: log}
}

// Send renders template name for customerID. dedupeKey lets the mail
// subsystem drop copies produced by redelivered events.
func (n *Notifications) Send(ctx context.Context, name string, customerID int64, dedupeKey string, data mailData) error {
	tmpl, ok := mailTemplates[name]
	if !ok {
		return fmt.Errorf("unknown mail template %q", name)
	}
	cust, err := n.customers.GetByID(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	email, err := render(tmpl, cust, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	email.DedupeKey = dedupeKey
	if err := n.notifier.QueueEmail(ctx, email); err != nil {
		return fmt.Errorf("queue %s: %w", name, err)
	}
	logger.WithContext(ctx, n.log).Debug("Notification queued",
		zap.String("template", name),
		zap.Int64("customer_id", customerID),
	)
	return nil
}

func render(tmpl mailTemplate, cust customer.Customer, data mailData) (providers.Email, error) {
	data.Name = cust.Name
	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return providers.Email{}, err
	}
	if err := tmpl.text.Execute(&text, data); err != nil {
		return providers.Email{}, err
	}
	if err := tmpl.html.Execute(&html, data); err != nil {
		return providers.Email{}, err
	}
	return providers.Email{
		To:       cust.Email,
		Subject:  subject.String(),
		BodyText: text.String(),
		BodyHTML: html.String(),
	}, nil
}

// Price renders Amount with the currency's minor units.
func (d mailData) Price() string {
	if d.Currency == "" {
		return d.Amount.String()
	}
	return d.Amount.StringFixed(currency.MinorUnits(d.Currency)) + " " + d.Currency
}

func mailDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

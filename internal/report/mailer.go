// Package report mails the csv exports of a run to the people who asked for
// them.
package report

import (
	"context"
	"fmt"
	"net/smtp"
	"path/filepath"
	"pmcautomation/internal/components/telemetry"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("pmcautomation/report")

const report_mailer_send_csv = "mailer.send-csv"

type SmtpConfig struct {
	Server       string `json:"server" env:"SERVER"`
	Port         int    `json:"port" env:"PORT"`
	EmailAddress string `json:"email_address" env:"EMAIL_ADDRESS"`
	Password     string `json:"password" env:"PASSWORD"`
	// FromName is shown in front of the address, "PMC Automation" when empty.
	FromName string `json:"from_name" env:"FROM_NAME"`
}

func (c SmtpConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

type sendFunc = func(mail *email.Email, addr string, auth smtp.Auth) error

func sendMail(mail *email.Email, addr string, auth smtp.Auth) error {
	return mail.Send(addr, auth)
}

type Mailer struct {
	config SmtpConfig
	send   sendFunc
	tel    telemetry.API
}

func NewMailer(config SmtpConfig, tel telemetry.API) Mailer {
	return Mailer{
		config: config,
		send:   sendMail,
		tel:    telemetry.NewScopedAPI("report", tel),
	}
}

// Compose builds the message carrying every csv in `paths` as an attachment.
func (m Mailer) Compose(to []string, subject, body string, paths ...string) (*email.Email, error) {
	if len(to) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	fromName := m.config.FromName
	if fromName == "" {
		fromName = "PMC Automation"
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("%s <%s>", fromName, m.config.EmailAddress)
	mail.To = to
	mail.Subject = subject
	mail.Text = []byte(body)
	for _, path := range paths {
		attachment, err := mail.AttachFile(path)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", filepath.Base(path), err)
		}
		attachment.ContentType = "text/csv; charset=utf-8"
	}
	return mail, nil
}

// SendCSV mails the csv files in `paths` to `to`. Servers that do not
// support AUTH are retried without authentication.
func (m Mailer) SendCSV(ctx context.Context, to []string, subject, body string, paths ...string) error {
	_, span := tracer.Start(ctx, "SendCSV")
	defer span.End()

	mail, err := m.Compose(to, subject, body, paths...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compose email")
		return err
	}

	auth := smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server)
	err = m.send(mail, m.config.addr(), auth)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = m.send(mail, m.config.addr(), nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		m.tel.ReportBroken(report_mailer_send_csv, err, subject)
		return err
	}

	m.tel.ReportDebug("sent csv report", "subject", subject, "attachments", len(paths))
	return nil
}

package report

import (
	"context"
	"errors"
	"net/smtp"
	"os"
	"path/filepath"
	"pmcautomation/internal/components/telemetry"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

func writeCSV(t testing.TB) string {
	path := filepath.Join(t.TempDir(), "customers.csv")
	err := os.WriteFile(path, []byte("name,status\nNISSAN MOTOR,Active\n"), 0600)
	require.NoError(t, err)
	return path
}

func TestCompose(t *testing.T) {
	mailer := NewMailer(SmtpConfig{EmailAddress: "automation@example.com"}, &telemetry.Recorder{})

	mail, err := mailer.Compose([]string{"planner@example.com"}, "Customers", "see attached", writeCSV(t))
	require.NoError(t, err)
	require.Equal(t, "PMC Automation <automation@example.com>", mail.From)
	require.Len(t, mail.Attachments, 1)
	require.Equal(t, "customers.csv", mail.Attachments[0].Filename)

	raw, err := mail.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(raw), "Subject: Customers")

	_, err = mailer.Compose(nil, "Customers", "")
	require.Error(t, err)
	_, err = mailer.Compose([]string{"a@example.com"}, "x", "", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestSendCSVFallsBackWithoutAuth(t *testing.T) {
	mailer := NewMailer(SmtpConfig{Server: "localhost", Port: 2525, EmailAddress: "automation@example.com"}, &telemetry.Recorder{})

	var auths []smtp.Auth
	mailer.send = func(mail *email.Email, addr string, auth smtp.Auth) error {
		require.Equal(t, "localhost:2525", addr)
		auths = append(auths, auth)
		if auth != nil {
			return errors.New("smtp: server doesn't support AUTH")
		}
		return nil
	}

	err := mailer.SendCSV(context.Background(), []string{"planner@example.com"}, "Customers", "", writeCSV(t))
	require.NoError(t, err)
	require.Len(t, auths, 2)
	require.NotNil(t, auths[0])
	require.Nil(t, auths[1])
}

func TestSendCSVReportsFailures(t *testing.T) {
	tel := &telemetry.Recorder{}
	mailer := NewMailer(SmtpConfig{Server: "localhost", Port: 2525}, tel)
	mailer.send = func(*email.Email, string, smtp.Auth) error {
		return errors.New("connection refused")
	}

	err := mailer.SendCSV(context.Background(), []string{"planner@example.com"}, "Customers", "", writeCSV(t))
	require.Error(t, err)
	broken := tel.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "report: mailer.send-csv", broken[0].ID)
}

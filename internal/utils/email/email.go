package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/config"
	"github.com/Dan9191/cuotificador/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendSyncReport mails the outcome of an external rate sync
func (s *Sender) SendSyncReport(to string, report models.SyncReport) error {
	e := BuildSyncReport(s.cfg.SenderEmail, to, report)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send sync report to %s: %v", to, err)
		return fmt.Errorf("failed to send sync report: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}

// BuildSyncReport formats a sync report as a plain-text email
func BuildSyncReport(from, to string, report models.SyncReport) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}

	failed := report.Failed()
	if failed > 0 {
		e.Subject = fmt.Sprintf("Rate sync: %d of %d banks failed", failed, len(report.Results))
	} else {
		e.Subject = fmt.Sprintf("Rate sync: %d banks updated", len(report.Results))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "External rate sync started %s and finished %s.\n\n",
		report.StartedAt.Format("2006-01-02 15:04:05"), report.FinishedAt.Format("2006-01-02 15:04:05"))
	if len(report.Results) == 0 {
		b.WriteString("No bank has an API integration enabled.\n")
	}
	for _, r := range report.Results {
		if !r.Success {
			fmt.Fprintf(&b, "%s: FAILED: %s\n", r.BankCode, r.Error)
			continue
		}
		fmt.Fprintf(&b, "%s: %d inserted, %d updated, %d unchanged, %d skipped\n",
			r.BankCode, r.Inserted, r.Updated, r.Unchanged, r.Skipped)
	}
	b.WriteString("\nCuotificador")
	e.Text = []byte(b.String())
	return e
}

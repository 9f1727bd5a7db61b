package notifier

import (
	"fmt"
	"strings"

	gomail "gopkg.in/gomail.v2"

	"github.com/flagkeeper/retention-api/internal/config"
	"github.com/flagkeeper/retention-api/internal/model"
)

// Mailer notifies operators by email when a cleanup tick partially
// fails. It is optional; a nil *Mailer is a no-op.
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer returns nil when SMTP is not configured.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	if cfg.Host == "" || len(cfg.To) == 0 {
		return nil
	}
	return &Mailer{cfg: cfg}
}

func (m *Mailer) NotifyTickFailure(result *model.CleanupResult) error {
	if m == nil {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", "Flag retention cleanup partially failed")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Cleanup tick at %s deleted %d flaggings but failed for flag types: %s.\n"+
			"Failed types will be retried on the next tick.\n",
		result.StartedAt.Format("2006-01-02 15:04:05 MST"),
		result.TotalDeleted,
		strings.Join(result.FailedFlagIDs, ", "),
	))

	dialer := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send failure notice: %w", err)
	}

	return nil
}

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/mail"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	log "github.com/sirupsen/logrus"
)

const alertMailTimeout = 30 * time.Second

// publisher forwards committed records to the notifier and mails alert recipients.
type publisher struct {
	notifier Notifier
	mailer   mail.Sender
}

func (p publisher) errorLogged(applicationID uint64, record *models.ErrorLog) {
	if p.notifier == nil || record == nil {
		return
	}
	defer p.recoverNotify("error logged")
	p.notifier.OnErrorLogged(applicationID, record)
}

func (p publisher) alertTriggered(alert *models.Alert) {
	if alert == nil {
		return
	}
	if p.notifier != nil {
		func() {
			defer p.recoverNotify("alert triggered")
			p.notifier.OnAlertTriggered(alert)
		}()
	}
	if p.mailer != nil && strings.TrimSpace(alert.Recipients) != "" {
		copied := *alert
		go p.mailAlert(&copied)
	}
}

func (p publisher) recoverNotify(kind string) {
	if r := recover(); r != nil {
		log.WithField("panic", r).Errorf("store: notify %s panicked", kind)
	}
}

// mailAlert sends the alert to each recipient. Failures are logged only.
func (p publisher) mailAlert(alert *models.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), alertMailTimeout)
	defer cancel()
	subject := fmt.Sprintf("[%s] %s", alert.AlertLevel, alert.Name)
	body := fmt.Sprintf("Alert: %s\nLevel: %s\nCondition: %s\n\n%s\n", alert.Name, alert.AlertLevel, alert.Condition, alert.Message)
	for _, recipient := range splitRecipients(alert.Recipients) {
		if errSend := p.mailer.Send(ctx, recipient, subject, body); errSend != nil {
			log.WithError(errSend).WithFields(log.Fields{"alert_id": alert.ID, "to": recipient}).Warn("store: send alert email failed")
		}
	}
}

func splitRecipients(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key := strings.ToLower(part)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, part)
	}
	return out
}

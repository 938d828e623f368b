package billing

import (
	"fmt"
	"log"

	"github.com/membergate/membergate/app/models"
	"github.com/membergate/membergate/internal/pkg/anet"
	"github.com/membergate/membergate/internal/pkg/env"
	"github.com/membergate/membergate/internal/pkg/mail"
)

// MailNotifier sends billing alerts to the site administrator via SMTP.
// Send failures are logged only; notifications never fail event handling.
type MailNotifier struct {
	AdminEmail string
}

func NewMailNotifier() *MailNotifier {
	return &MailNotifier{AdminEmail: env.GetEnv("ADMIN_EMAIL", "")}
}

func (n *MailNotifier) PaymentFailed(m *models.Membership, ev *anet.GatewayEvent) {
	reason := "declined"
	if ev.ResponseCode != anet.ResponseCodeDeclined {
		reason = "errored"
	}
	subject := fmt.Sprintf("Recurring payment %s for membership #%d", reason, m.ID)
	body := fmt.Sprintf(
		"A recurring payment of $%.2f for membership #%d (%s) %s.<br>Transaction ID: %s",
		ev.Amount, m.ID, m.LevelName, reason, ev.TransactionID,
	)
	n.send(subject, body)
}

func (n *MailNotifier) DuplicatePayment(m *models.Membership, transactionID string) {
	subject := fmt.Sprintf("Duplicate payment webhook for membership #%d", m.ID)
	body := fmt.Sprintf(
		"A webhook for transaction %s was received again for membership #%d (%s). "+
			"The payment was already recorded, no action was taken.",
		transactionID, m.ID, m.LevelName,
	)
	n.send(subject, body)
}

func (n *MailNotifier) send(subject, body string) {
	if n.AdminEmail == "" {
		log.Printf("billing: ADMIN_EMAIL not set, dropping notification %q", subject)
		return
	}
	if err := mail.SendMail(n.AdminEmail, subject, body); err != nil {
		log.Printf("billing: sending notification %q failed: %v", subject, err)
	}
}

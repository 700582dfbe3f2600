package services

import (
	"fmt"
	"log"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/models"
)

// Mailer is the delivery channel the Notifier writes to. utils.SESMailer is
// the production implementation; tests substitute a fake.
type Mailer interface {
	Send(to, subject, text, html string) error
}

// DeliveryOutcome is the result of one recipient's delivery attempt.
type DeliveryOutcome struct {
	FriendID string
	Address  string
	Err      error
}

type Notifier struct {
	mailer Mailer
}

func NewNotifier(mailer Mailer) *Notifier {
	return &Notifier{mailer: mailer}
}

// Notify delivers the expiry notification to every recipient. One failed
// delivery never aborts the rest; each outcome is captured and returned.
// Failures are not retried here. An empty recipient list is a no-op.
func (n *Notifier) Notify(alert *models.Alert, ownerName string, recipients []ResolvedRecipient) []DeliveryOutcome {
	if len(recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("%s missed a check-in", ownerName)
	text := fmt.Sprintf(
		"%s armed a check-in alert at %s and did not check in by the %s deadline.\n\nTheir message: %s\n",
		ownerName,
		alert.StartTime.Format("15:04 Jan 2"),
		alert.EndTime.Format("15:04 Jan 2"),
		alert.Message,
	)
	html := fmt.Sprintf(
		"<p><b>%s</b> armed a check-in alert at %s and did not check in by the %s deadline.</p><p><b>Their message:</b> %s</p>",
		ownerName,
		alert.StartTime.Format("15:04 Jan 2"),
		alert.EndTime.Format("15:04 Jan 2"),
		alert.Message,
	)

	outcomes := make([]DeliveryOutcome, 0, len(recipients))
	for _, r := range recipients {
		err := n.mailer.Send(r.Email, subject, text, html)
		if err != nil {
			log.Printf("notifier: delivery to %s failed for alert %s: %v", r.Email, alert.AlertID, err)
		}
		outcomes = append(outcomes, DeliveryOutcome{
			FriendID: r.FriendID,
			Address:  r.Email,
			Err:      err,
		})
	}
	return outcomes
}

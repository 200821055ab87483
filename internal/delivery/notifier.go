package delivery

import (
	"context"
	"fmt"

	"github.com/crewpipe/crewpipe/internal/logging"
	"go.uber.org/zap"
)

// Mailer is the mail-transport collaborator boundary.
type Mailer interface {
	SendMessage(ctx context.Context, subject, body, recipient string) error
}

// Notifier composes and sends the requester notification. Notification is
// best-effort: a send failure is logged and never alters the run outcome.
type Notifier struct {
	mailer Mailer
	log    *logging.Logger
}

// NewNotifier creates a notifier over the given mail transport.
func NewNotifier(mailer Mailer, log *logging.Logger) *Notifier {
	if log == nil {
		log = logging.NewNop()
	}
	return &Notifier{mailer: mailer, log: log}
}

// Notify emails the requester. With a pull request URL it sends a success
// message; without one, a distinct failure message. Returns whether the
// message was actually sent.
func (n *Notifier) Notify(ctx context.Context, prURL, recipient string) bool {
	if recipient == "" {
		n.log.Debug(ctx, "no requester contact, skipping notification")
		return false
	}

	// Both wordings are part of the Notify contract; the coordinator
	// currently notifies only after a successful publish, but the failure
	// wording stays available to any caller without a URL.
	var subject, body string
	if prURL != "" {
		subject = "Your task is done"
		body = fmt.Sprintf("Task complete. Pull request: %s", prURL)
	} else {
		subject = "Your task could not be delivered"
		body = "The task finished but the pull request could not be created."
	}

	if err := n.mailer.SendMessage(ctx, subject, body, recipient); err != nil {
		n.log.Warn(ctx, "notification send failed",
			zap.String("recipient", recipient),
			zap.Error(err),
		)
		return false
	}

	n.log.Info(ctx, "notification sent", zap.String("recipient", recipient))
	return true
}

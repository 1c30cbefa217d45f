// Package notify delivers user-facing import notifications and templated
// mail. Mail delivery is fire-and-forget; the mail subsystem handles its own
// retries.
package notify

import (
	"context"
	"fmt"

	"github.com/library-sync/internal/logging"
	"github.com/library-sync/internal/models"
	"github.com/library-sync/internal/storage"
)

// Mail template keys
const (
	MailImportFinished    = "sync_accounts"
	MailOldResyncFinished = "sync_old"
)

// Mailer sends templated mail. Implementations must not block the caller on
// delivery.
type Mailer interface {
	SendTemplated(template string, context map[string]interface{}, recipient, language string)
}

// LogMailer logs mail instead of sending it; used in development and tests
type LogMailer struct{}

// SendTemplated implements Mailer
func (LogMailer) SendTemplated(template string, context map[string]interface{}, recipient, language string) {
	logging.WithFields(map[string]interface{}{
		"template":  template,
		"recipient": recipient,
		"language":  language,
	}).Info("mail suppressed")
}

// Notifier records import outcomes as user notifications
type Notifier struct {
	notifications *storage.NotificationRepository
	mailer        Mailer
	logger        *logging.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(notifications *storage.NotificationRepository, mailer Mailer) *Notifier {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Notifier{
		notifications: notifications,
		mailer:        mailer,
		logger:        logging.GetGlobalLogger().WithField("component", "notify"),
	}
}

// NotifyImportResult writes the per-network status map the product renders
// the import outcome from
func (n *Notifier) NotifyImportResult(ctx context.Context, userID int64, statuses map[string]interface{}) error {
	notification := &models.Notification{
		UserID: userID,
		Action: models.NotificationImport,
		Data:   statuses,
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to create import notification: %w", err)
	}
	return nil
}

// NotifyImportWaiting tells the user their import is queued, with a position
// and rough wait estimate
func (n *Notifier) NotifyImportWaiting(ctx context.Context, userID int64, position int, approxSeconds int64) error {
	notification := &models.Notification{
		UserID: userID,
		Action: models.NotificationImportWaiting,
		Data: map[string]interface{}{
			"position":       position,
			"approx_seconds": approxSeconds,
		},
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to create waiting notification: %w", err)
	}
	return nil
}

// MailImportResult sends the "import finished" mail
func (n *Notifier) MailImportResult(user *models.User, statuses map[string]interface{}) {
	n.mailer.SendTemplated(MailImportFinished, map[string]interface{}{
		"statuses": statuses,
	}, user.Email, user.Language)
}

// MailOldResync sends the "old resync finished" mail listing the networks
// whose status changed, gated by the user's subscription preference
func (n *Notifier) MailOldResync(user *models.User, changed []map[string]interface{}) {
	if !user.SubscribeMailSync {
		return
	}
	n.mailer.SendTemplated(MailOldResyncFinished, map[string]interface{}{
		"changes": changed,
	}, user.Email, user.Language)
}

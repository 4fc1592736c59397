package alert

import (
	"context"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

// AlertInterface sends the mails of the platform:
//  1. invitation of a profile into a company
//  2. task and activity deadline reminders
//  3. digest of unread notifications
type AlertInterface interface {
	SendInvitation(ctx context.Context, invited *model.Profile, company *model.Company, link string) error
	TaskDeadlineReminder(ctx context.Context, receiver *model.Profile, task *model.Task) error
	ActivityDeadlineReminder(ctx context.Context, receiver *model.Profile, activity *model.Activity) error
	NotificationDigest(ctx context.Context, receiver *model.Profile, notifies []model.Notify) error
}

// Receiver of a message.
type Receiver struct {
	Name  string
	Email string
}

// alertHandlerInterface is implemented by every delivery backend (SMTP, SendGrid, webhook).
type alertHandlerInterface interface {
	SendMessageTo(ctx context.Context, receiver *Receiver, subject, body string) error
}

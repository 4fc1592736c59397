package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

var ErrNoEmail = errors.New("receiver has no email address")

type alertMgr struct {
	handlers []alertHandlerInterface
	appName  string
	host     string
}

var (
	once    sync.Once
	alerter *alertMgr
)

func GetAlertMgr() AlertInterface {
	once.Do(func() {
		alerter = initAlertMgr()
	})
	return alerter
}

// initAlertMgr picks the mail backend from the config and adds the webhook when one is set.
func initAlertMgr() *alertMgr {
	cfg := config.GetConfig()
	var handlers []alertHandlerInterface
	switch cfg.Mail.Backend {
	case "smtp":
		handlers = append(handlers, newSMTPAlerter(cfg))
	case "sendgrid":
		handlers = append(handlers, newSendGridAlerter(cfg))
	default:
		logutils.Log.Warnf("mail backend %q, mails are only logged", cfg.Mail.Backend)
		handlers = append(handlers, logAlerter{})
	}
	if cfg.Webhook.URL != "" {
		handlers = append(handlers, newWebhookAlerter(cfg.Webhook.URL))
	}
	return newAlertMgr(cfg.Mail.AppName, cfg.Host, handlers...)
}

func newAlertMgr(appName, host string, handlers ...alertHandlerInterface) *alertMgr {
	return &alertMgr{handlers: handlers, appName: appName, host: strings.TrimSuffix(host, "/")}
}

// NewAlertMgrWith builds a manager on explicit backends.
func NewAlertMgrWith(appName, host string, handlers ...alertHandlerInterface) AlertInterface {
	return newAlertMgr(appName, host, handlers...)
}

func receiverOf(p *model.Profile) (*Receiver, error) {
	if p.Email == "" {
		return nil, ErrNoEmail
	}
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		name = p.Email
	}
	return &Receiver{Name: name, Email: p.Email}, nil
}

func (a *alertMgr) send(ctx context.Context, p *model.Profile, subject, body string) error {
	receiver, err := receiverOf(p)
	if err != nil {
		logutils.Log.Warnf("profile %d: %v", p.ID, err)
		return err
	}
	subject = "[" + a.appName + "] " + subject
	var errs []error
	for _, h := range a.handlers {
		if err := h.SendMessageTo(ctx, receiver, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *alertMgr) SendInvitation(ctx context.Context, invited *model.Profile, company *model.Company, link string) error {
	subject := fmt.Sprintf("Invitation to join %s", company.Name)
	body := fmt.Sprintf("Hello %s,\n\nyou have been invited to join %s on %s.\nAccept the invitation: %s\n",
		invited.FirstName, company.Name, a.appName, a.link(link))
	return a.send(ctx, invited, subject, body)
}

func (a *alertMgr) TaskDeadlineReminder(ctx context.Context, receiver *model.Profile, task *model.Task) error {
	subject := fmt.Sprintf("Task %q is due on %s", task.Name, task.DateEnd.Format("2006-01-02"))
	body := fmt.Sprintf("Hello %s,\n\nthe task %q of project %q ends on %s and is %d%% complete.\n%s\n",
		receiver.FirstName, task.Name, task.Project.Name, task.DateEnd.Format("2006-01-02"), task.Progress,
		a.link(fmt.Sprintf("/projects/%d/tasks/%d", task.ProjectID, task.ID)))
	return a.send(ctx, receiver, subject, body)
}

func (a *alertMgr) ActivityDeadlineReminder(ctx context.Context, receiver *model.Profile, activity *model.Activity) error {
	subject := fmt.Sprintf("Activity %q is due on %s", activity.Title, activity.DateTimeEnd.Format("2006-01-02"))
	body := fmt.Sprintf("Hello %s,\n\nthe activity %q of task %q ends on %s.\n%s\n",
		receiver.FirstName, activity.Title, activity.Task.Name, activity.DateTimeEnd.Format("2006-01-02 15:04"),
		a.link(fmt.Sprintf("/projects/%d/tasks/%d", activity.Task.ProjectID, activity.TaskID)))
	return a.send(ctx, receiver, subject, body)
}

func (a *alertMgr) NotificationDigest(ctx context.Context, receiver *model.Profile, notifies []model.Notify) error {
	if len(notifies) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nyou have %d new notifications:\n\n", receiver.FirstName, len(notifies))
	for i := range notifies {
		fmt.Fprintf(&b, "- %s\n", notifies[i].Subject)
		if notifies[i].Body != "" {
			fmt.Fprintf(&b, "  %s\n", notifies[i].Body)
		}
	}
	b.WriteString("\n" + a.link("/notifications") + "\n")
	subject := fmt.Sprintf("%d new notifications", len(notifies))
	if len(notifies) == 1 {
		subject = notifies[0].Subject
	}
	return a.send(ctx, receiver, subject, b.String())
}

func (a *alertMgr) link(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return a.host + path
}

type logAlerter struct{}

func (logAlerter) SendMessageTo(_ context.Context, receiver *Receiver, subject, _ string) error {
	logutils.Log.WithFields(logutils.Fields{
		"to":      receiver.Email,
		"subject": subject,
	}).Info("mail not sent, no backend configured")
	return nil
}

package alert

import (
	"context"

	"gopkg.in/gomail.v2"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

type SMTPAlerter struct {
	dialer *gomail.Dialer
	from   string
	name   string
}

func newSMTPAlerter(cfg *config.Config) alertHandlerInterface {
	smtpConfig := cfg.Mail.SMTP
	return &SMTPAlerter{
		dialer: gomail.NewDialer(smtpConfig.Host, smtpConfig.Port, smtpConfig.User, smtpConfig.Password),
		from:   cfg.Mail.From,
		name:   cfg.Mail.AppName,
	}
}

func (sa *SMTPAlerter) SendMessageTo(_ context.Context, receiver *Receiver, subject, body string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", sa.from, sa.name)
	m.SetAddressHeader("To", receiver.Email, receiver.Name)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := sa.dialer.DialAndSend(m); err != nil {
		logutils.Log.Errorf("Failed to send email to %s: %v", receiver.Email, err)
		return err
	}

	logutils.Log.Infof("Sent email to %s", receiver.Email)
	return nil
}

package alert

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

var (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

type sendGridAlerter struct {
	key  string
	from *sgmail.Email
}

func newSendGridAlerter(cfg *config.Config) alertHandlerInterface {
	return &sendGridAlerter{
		key:  cfg.Mail.SendGrid.APIKey,
		from: sgmail.NewEmail(cfg.Mail.AppName, cfg.Mail.From),
	}
}

func (s *sendGridAlerter) SendMessageTo(_ context.Context, receiver *Receiver, subject, body string) error {
	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail(receiver.Name, receiver.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", body))

	req := sendgrid.GetRequest(s.key, sendGridEndpoint, sendGridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		logutils.Log.Errorf("Failed to send email to %s: %v", receiver.Email, err)
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	logutils.Log.Infof("Sent email to %s", receiver.Email)
	return nil
}

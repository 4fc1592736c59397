package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"
)

// Message is the JSON body posted to the webhook.
type Message struct {
	Msgtype string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type webhookAlerter struct {
	url    string
	client *req.Client
}

func newWebhookAlerter(url string) alertHandlerInterface {
	return &webhookAlerter{
		url:    url,
		client: req.C().SetTimeout(10 * time.Second),
	}
}

func (w *webhookAlerter) SendMessageTo(ctx context.Context, receiver *Receiver, subject, body string) error {
	msg := Message{Msgtype: "text"}
	msg.Text.Content = fmt.Sprintf("%s (%s)\n%s", subject, receiver.Email, body)

	resp, err := w.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(msg).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

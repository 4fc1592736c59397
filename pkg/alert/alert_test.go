package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

type sent struct {
	to, subject, body string
}

type recordingHandler struct {
	messages []sent
}

func (r *recordingHandler) SendMessageTo(_ context.Context, receiver *Receiver, subject, body string) error {
	r.messages = append(r.messages, sent{to: receiver.Email, subject: subject, body: body})
	return nil
}

func TestInvitation(t *testing.T) {
	h := &recordingHandler{}
	mgr := newAlertMgr("Edilcloud", "https://app.example.com/", h)

	invited := &model.Profile{Email: "mario@example.com", FirstName: "Mario"}
	err := mgr.SendInvitation(context.Background(), invited, &model.Company{Name: "Rossi Srl"}, "/invitations/abc")
	require.NoError(t, err)
	require.Len(t, h.messages, 1)
	assert.Equal(t, "mario@example.com", h.messages[0].to)
	assert.Equal(t, "[Edilcloud] Invitation to join Rossi Srl", h.messages[0].subject)
	assert.Contains(t, h.messages[0].body, "https://app.example.com/invitations/abc")
}

func TestNoEmail(t *testing.T) {
	h := &recordingHandler{}
	mgr := newAlertMgr("Edilcloud", "", h)
	err := mgr.TaskDeadlineReminder(context.Background(), &model.Profile{}, &model.Task{DateEnd: time.Now()})
	assert.ErrorIs(t, err, ErrNoEmail)
	assert.Empty(t, h.messages)
}

func TestDigest(t *testing.T) {
	h := &recordingHandler{}
	mgr := newAlertMgr("Edilcloud", "", h)
	p := &model.Profile{Email: "a@example.com", FirstName: "Anna"}

	require.NoError(t, mgr.NotificationDigest(context.Background(), p, nil))
	assert.Empty(t, h.messages)

	notifies := []model.Notify{{Subject: "Task assigned"}, {Subject: "New post", Body: "hello"}}
	require.NoError(t, mgr.NotificationDigest(context.Background(), p, notifies))
	require.Len(t, h.messages, 1)
	assert.Equal(t, "[Edilcloud] 2 new notifications", h.messages[0].subject)
	assert.Contains(t, h.messages[0].body, "- Task assigned")
	assert.Contains(t, h.messages[0].body, "  hello")
}

func TestWebhook(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := newWebhookAlerter(srv.URL)
	err := h.SendMessageTo(context.Background(), &Receiver{Email: "a@example.com"}, "subject", "body")
	require.NoError(t, err)
	assert.Equal(t, "text", got.Msgtype)
	assert.Contains(t, got.Text.Content, "subject (a@example.com)")
}

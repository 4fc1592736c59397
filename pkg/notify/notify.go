// Package notify persists notifications and fans them out to their recipients.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/realtime"
)

// Notification kinds.
const (
	KindTeamAdded          = "team.added"
	KindTeamApproved       = "team.approved"
	KindTeamRefused        = "team.refused"
	KindTaskAssigned       = "task.assigned"
	KindActivityWorker     = "activity.worker"
	KindActivityStatus     = "activity.status"
	KindPostCreated        = "post.created"
	KindCommentCreated     = "comment.created"
	KindBomSent            = "bom.sent"
	KindQuotationSubmitted = "quotation.submitted"
	KindQuotationAccepted  = "quotation.accepted"
	KindQuotationRejected  = "quotation.rejected"
	KindProfileInvited     = "profile.invited"
	KindMessage            = "talk.message"
)

// RealtimeEvent is the websocket event name of a new notification.
const RealtimeEvent = "notification"

// CreatedTotal counts notifications by kind.
var CreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "edilcloud_notifications_total",
	Help: "Number of notifications fanned out, by kind",
}, []string{"kind"})

// Event describes something that happened and who should hear about it.
type Event struct {
	Kind       string
	SenderID   *uint
	Subject    string
	Body       string
	OwnerType  model.OwnerType
	OwnerID    uint
	Payload    any
	Recipients []uint
}

type Notifier interface {
	Notify(ctx context.Context, e Event) (*model.Notify, error)
}

type Service struct {
	db    *gorm.DB
	pub   realtime.Publisher
	cache *cache.Cache
}

func NewService(db *gorm.DB, pub realtime.Publisher, c *cache.Cache) *Service {
	return &Service{db: db, pub: pub, cache: c}
}

// Recipients removes duplicates, zero ids and the sender, keeping the first-seen order.
func Recipients(candidates []uint, sender *uint) []uint {
	ids := lo.Uniq(lo.Filter(candidates, func(id uint, _ int) bool {
		return id != 0 && (sender == nil || id != *sender)
	}))
	return ids
}

// KeepActive drops the ids missing from active, keeping the order of ids.
func KeepActive(ids, active []uint) []uint {
	set := lo.SliceToMap(active, func(id uint) (uint, struct{}) { return id, struct{}{} })
	return lo.Filter(ids, func(id uint, _ int) bool { _, ok := set[id]; return ok })
}

// Push is the realtime payload of a notification.
type Push struct {
	ID        uint            `json:"id"`
	Kind      string          `json:"kind"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	OwnerType model.OwnerType `json:"ownerType"`
	OwnerID   uint            `json:"ownerID"`
	SenderID  *uint           `json:"senderID"`
}

// Notify stores the event for every active recipient and pushes it to their open connections.
// It returns nil without error when nobody is left to notify. Mail delivery is left to the digest
// job, which honours each profile's settings.
func (s *Service) Notify(ctx context.Context, e Event) (*model.Notify, error) {
	ids := Recipients(e.Recipients, e.SenderID)
	if len(ids) == 0 {
		return nil, nil
	}

	var active []uint
	if err := s.db.WithContext(ctx).Model(&model.Profile{}).
		Where("id IN ? AND status = ?", ids, model.StatusActive).
		Pluck("id", &active).Error; err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	ids = KeepActive(ids, active)
	if len(ids) == 0 {
		return nil, nil
	}

	var payload datatypes.JSON
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		payload = raw
	}

	n := &model.Notify{
		Kind:      e.Kind,
		SenderID:  e.SenderID,
		Subject:   e.Subject,
		Body:      e.Body,
		OwnerType: e.OwnerType,
		OwnerID:   e.OwnerID,
		Payload:   payload,
		Recipients: lo.Map(ids, func(id uint, _ int) model.NotificationRecipient {
			return model.NotificationRecipient{ProfileID: id}
		}),
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("create notify: %w", err)
	}
	CreatedTotal.WithLabelValues(e.Kind).Inc()

	s.cache.Delete(ctx, lo.Map(ids, func(id uint, _ int) string { return cache.UnreadKey(id) })...)
	if s.pub != nil {
		delivered := s.pub.SendToProfiles(ids, realtime.NewEvent(RealtimeEvent, Push{
			ID:        n.ID,
			Kind:      n.Kind,
			Subject:   n.Subject,
			Body:      n.Body,
			OwnerType: n.OwnerType,
			OwnerID:   n.OwnerID,
			SenderID:  n.SenderID,
		}))
		logutils.Log.WithFields(logutils.Fields{
			"kind":       e.Kind,
			"recipients": len(ids),
			"pushed":     delivered,
		}).Debug("notification created")
	}
	return n, nil
}

// Safe runs Notify and only logs failures. Notifications never fail the request that caused them.
func Safe(ctx context.Context, n Notifier, e Event) {
	if n == nil {
		return
	}
	if _, err := n.Notify(ctx, e); err != nil {
		logutils.Log.WithFields(logutils.Fields{"kind": e.Kind}).Errorf("notify: %v", err)
	}
}

package reminder

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"k8s.io/klog/v2"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
)

const defaultDigestBatch = 200

type DigestRequest struct {
	BatchSize int `json:"batchSize"`
}

// groupDigest groups pending rows by profile.
func groupDigest(rows []model.NotificationRecipient) map[uint][]model.NotificationRecipient {
	return lo.GroupBy(rows, func(r model.NotificationRecipient) uint { return r.ProfileID })
}

func mailable(p *model.Profile, rows []model.NotificationRecipient) []model.Notify {
	settings := p.Settings.Data()
	var out []model.Notify
	for i := range rows {
		if rows[i].IsRead {
			continue
		}
		if settings.EmailEnabled(rows[i].Notify.Kind) {
			out = append(out, rows[i].Notify)
		}
	}
	return out
}

// SendNotificationDigests mails every profile one digest of its notifications not mailed yet.
// Rows are marked as mailed even when the profile opted out, so they are not loaded again.
func SendNotificationDigests(ctx context.Context, c *Clients, req *DigestRequest) (*Result, error) {
	batch := req.BatchSize
	if batch <= 0 {
		batch = defaultDigestBatch
	}
	var rows []model.NotificationRecipient
	err := c.DB.WithContext(ctx).
		Preload("Notify").
		Preload("Profile").
		Where("is_email_sent = ?", false).
		Order("id").
		Limit(batch).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load pending notifications: %w", err)
	}

	res := &Result{}
	for profileID, group := range groupDigest(rows) {
		p := &group[0].Profile
		ids := lo.Map(group, func(r model.NotificationRecipient, _ int) uint { return r.ID })

		var notifies []model.Notify
		if p.Status == model.StatusActive {
			notifies = mailable(p, group)
		}
		if len(notifies) == 0 {
			res.Skipped++
		} else {
			if err := c.Alert.NotificationDigest(ctx, p, notifies); err != nil {
				klog.Errorf("digest to profile %d: %v", profileID, err)
				res.Failed++
				continue
			}
			res.Sent++
		}

		now := c.now()
		if err := c.DB.WithContext(ctx).Model(&model.NotificationRecipient{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"is_email_sent": true, "email_sent_at": now}).Error; err != nil {
			return res, fmt.Errorf("mark digest sent: %w", err)
		}
	}
	klog.Infof("%s: %d rows, %d sent, %d skipped, %d failed", NOTIFY_MAIL_DIGEST, len(rows), res.Sent, res.Skipped, res.Failed)
	return res, nil
}

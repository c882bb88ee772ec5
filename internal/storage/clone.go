package storage

import (
	"maps"
	"time"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneRequest(req model.DocumentRequest) model.DocumentRequest {
	req.DueDate = cloneTime(req.DueDate)
	return req
}

func cloneRecord(rec model.DocumentRecord) model.DocumentRecord {
	rec.ReviewedAt = cloneTime(rec.ReviewedAt)
	return rec
}

func cloneMailboxItem(item model.MailboxItem) model.MailboxItem {
	item.PaidAt = cloneTime(item.PaidAt)
	item.SentAt = cloneTime(item.SentAt)
	item.DeliveredAt = cloneTime(item.DeliveredAt)
	item.ViewedAt = cloneTime(item.ViewedAt)
	item.DownloadedAt = cloneTime(item.DownloadedAt)
	return item
}

func cloneNotification(n model.Notification) model.Notification {
	n.Payload = maps.Clone(n.Payload)
	return n
}

package repository

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

// SaveNotification inserts a delivered notification. Redelivery of the same
// id is ignored so queue retries stay idempotent.
func (r *Repository) SaveNotification(ctx context.Context, n model.Notification) error {
	payload := n.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, event, recipient_id, severity, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.Event, n.RecipientID, n.Severity, payload, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (r *Repository) ListNotifications(ctx context.Context, recipientID string) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event, recipient_id, severity, payload, created_at
		FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC LIMIT 200
	`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Event, &n.RecipientID, &n.Severity, &n.Payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

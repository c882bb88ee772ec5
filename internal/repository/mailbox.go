package repository

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

const mailboxColumns = `id, client_id, consultant_id, document_name, document_type, description,
	file_ref, status, shipping_option, shipping_fee_cents, payment_status, payment_ref,
	shipping_address, tracking_number, paid_at, sent_at, delivered_at, viewed_at, downloaded_at,
	created_at, updated_at`

func scanMailboxItem(r row) (model.MailboxItem, error) {
	var (
		item     model.MailboxItem
		tracking *string
	)
	err := r.Scan(&item.ID, &item.ClientID, &item.ConsultantID, &item.DocumentName, &item.DocumentType,
		&item.Description, &item.FileRef, &item.Status, &item.ShippingOption, &item.ShippingFeeCents,
		&item.PaymentStatus, &item.PaymentRef, &item.ShippingAddress, &tracking, &item.PaidAt,
		&item.SentAt, &item.DeliveredAt, &item.ViewedAt, &item.DownloadedAt, &item.CreatedAt,
		&item.UpdatedAt)
	item.TrackingNumber = deref(tracking)
	return item, err
}

// CreateMailboxItem inserts a new mailbox item.
func (r *Repository) CreateMailboxItem(ctx context.Context, item model.MailboxItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mailbox_items (`+mailboxColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, item.ID, item.ClientID, item.ConsultantID, item.DocumentName, item.DocumentType,
		item.Description, item.FileRef, item.Status, item.ShippingOption, item.ShippingFeeCents,
		item.PaymentStatus, item.PaymentRef, item.ShippingAddress, nullable(item.TrackingNumber),
		item.PaidAt, item.SentAt, item.DeliveredAt, item.ViewedAt, item.DownloadedAt,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert mailbox item: %w", err)
	}
	return nil
}

// GetMailboxItem returns an item by id.
func (r *Repository) GetMailboxItem(ctx context.Context, id string) (model.MailboxItem, error) {
	item, err := scanMailboxItem(r.pool.QueryRow(ctx, `SELECT `+mailboxColumns+` FROM mailbox_items WHERE id=$1`, id))
	if err != nil {
		return model.MailboxItem{}, notFound("mailbox item", id, err)
	}
	return item, nil
}

// ListMailboxItems returns every item addressed to clientID, newest first.
func (r *Repository) ListMailboxItems(ctx context.Context, clientID string) ([]model.MailboxItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mailboxColumns+` FROM mailbox_items
		WHERE client_id=$1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list mailbox items: %w", err)
	}
	defer rows.Close()
	out := make([]model.MailboxItem, 0)
	for rows.Next() {
		item, err := scanMailboxItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mailbox item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateMailboxItem replaces the mutable columns while the stored status and
// payment status still match the guards.
func (r *Repository) UpdateMailboxItem(ctx context.Context, item model.MailboxItem, prevStatus model.MailboxStatus, prevPayment model.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE mailbox_items
		SET status=$1, payment_status=$2, payment_ref=$3, shipping_address=$4, tracking_number=$5,
			paid_at=$6, sent_at=$7, delivered_at=$8, viewed_at=$9, downloaded_at=$10, updated_at=$11
		WHERE id=$12 AND status=$13 AND payment_status=$14
	`, item.Status, item.PaymentStatus, item.PaymentRef, item.ShippingAddress,
		nullable(item.TrackingNumber), item.PaidAt, item.SentAt, item.DeliveredAt, item.ViewedAt,
		item.DownloadedAt, item.UpdatedAt, item.ID, prevStatus, prevPayment)
	if err != nil {
		return fmt.Errorf("update mailbox item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return guardFailed(ctx, r.pool, "mailbox_items", "mailbox item", item.ID)
	}
	return nil
}

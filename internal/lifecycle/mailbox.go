package lifecycle

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

const (
	entityMailbox = "mailbox item"
	entityPayment = "mailbox payment"
)

// forward lists the post-shipment statuses in order.
var forward = []model.MailboxStatus{
	model.MailboxSent,
	model.MailboxDelivered,
	model.MailboxViewed,
	model.MailboxDownloaded,
}

// NewMailboxItem is the input to Create.
type NewMailboxItem struct {
	ConsultantID     string
	ClientID         string
	DocumentName     string
	DocumentType     string
	Description      string
	FileRef          string
	ShippingFeeCents int64
	ShippingOption   model.ShippingOption
}

// PaymentConfirmation is delivered by the external payment flow.
type PaymentConfirmation struct {
	PaymentRef      string
	ShippingAddress string
}

// MailboxService drives mailbox items from creation to download.
type MailboxService struct {
	base
	store    MailboxStore
	tracking func() string
}

// NewMailboxService builds a MailboxService. tracking generates tracking
// numbers; nil selects NewTrackingNumber.
func NewMailboxService(store MailboxStore, notifier Notifier, tracking func() string, opts Options) *MailboxService {
	if tracking == nil {
		tracking = NewTrackingNumber
	}
	return &MailboxService{base: newBase(notifier, opts), store: store, tracking: tracking}
}

// NewTrackingNumber returns a random tracking number with 76 bits of
// entropy drawn from a version 4 UUID.
func NewTrackingNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CD" + strings.ToUpper(raw[:20])
}

// Create registers a pending item. A zero fee waives payment.
func (s *MailboxService) Create(ctx context.Context, in NewMailboxItem) (model.MailboxItem, error) {
	if in.ConsultantID == "" || in.ClientID == "" {
		return model.MailboxItem{}, invalid("consultant and client ids are required")
	}
	if strings.TrimSpace(in.DocumentName) == "" {
		return model.MailboxItem{}, invalid("document name is required")
	}
	if in.ShippingFeeCents < 0 {
		return model.MailboxItem{}, invalid("shipping fee must not be negative")
	}
	option, err := model.ParseShippingOption(string(in.ShippingOption))
	if err != nil {
		return model.MailboxItem{}, invalid("%v", err)
	}
	payment := model.PaymentUnpaid
	if in.ShippingFeeCents == 0 {
		payment = model.PaymentWaived
	}
	now := s.clock()
	item := model.MailboxItem{
		ID:               uuid.NewString(),
		ClientID:         in.ClientID,
		ConsultantID:     in.ConsultantID,
		DocumentName:     strings.TrimSpace(in.DocumentName),
		DocumentType:     in.DocumentType,
		Description:      in.Description,
		FileRef:          in.FileRef,
		Status:           model.MailboxPending,
		ShippingOption:   option,
		ShippingFeeCents: in.ShippingFeeCents,
		PaymentStatus:    payment,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.persist(ctx, func(ctx context.Context) error { return s.store.CreateMailboxItem(ctx, item) })
	if err != nil {
		return model.MailboxItem{}, persistErr("create mailbox item", err)
	}
	s.transitioned(entityMailbox, string(item.Status))
	return item, nil
}

// RequestShipment ships the item when its fee is settled. Otherwise it returns
// the item together with ErrPaymentRequired; the caller routes the client
// through payment and then calls ConfirmPayment and ConfirmShipment.
func (s *MailboxService) RequestShipment(ctx context.Context, id, shippingAddress string) (model.MailboxItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return model.MailboxItem{}, err
	}
	if !item.PaymentStatus.Settled() {
		return item, ErrPaymentRequired
	}
	return s.ConfirmShipment(ctx, id, shippingAddress)
}

// ConfirmPayment records a settled shipping fee. It does not change the
// delivery status. Confirming the same payment twice is a no-op.
func (s *MailboxService) ConfirmPayment(ctx context.Context, id string, in PaymentConfirmation) (model.MailboxItem, error) {
	if strings.TrimSpace(in.PaymentRef) == "" {
		return model.MailboxItem{}, invalid("payment reference is required")
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return model.MailboxItem{}, err
	}
	switch item.PaymentStatus {
	case model.PaymentPaid:
		if item.PaymentRef == in.PaymentRef {
			return item, nil
		}
		return model.MailboxItem{}, &TransitionError{Entity: entityPayment, From: string(item.PaymentStatus), To: string(model.PaymentPaid)}
	case model.PaymentWaived:
		return model.MailboxItem{}, &TransitionError{Entity: entityPayment, From: string(item.PaymentStatus), To: string(model.PaymentPaid)}
	case model.PaymentUnpaid:
	}

	updated := item
	now := s.clock()
	updated.PaymentStatus = model.PaymentPaid
	updated.PaymentRef = in.PaymentRef
	updated.PaidAt = &now
	updated.UpdatedAt = now
	if addr := strings.TrimSpace(in.ShippingAddress); addr != "" && updated.Status == model.MailboxPending {
		updated.ShippingAddress = addr
	}
	if err := s.update(ctx, updated, item); err != nil {
		return model.MailboxItem{}, persistErr("confirm payment", err)
	}
	s.transitioned(entityPayment, string(updated.PaymentStatus))
	s.notify(ctx, model.EventMailboxPaymentReceived, updated.ConsultantID, model.SeverityNormal, map[string]string{
		"mailboxItemId": updated.ID,
		"documentName":  updated.DocumentName,
		"paymentRef":    updated.PaymentRef,
		"amountCents":   strconv.FormatInt(updated.ShippingFeeCents, 10),
	})
	return updated, nil
}

// ConfirmShipment moves a pending, settled item to sent and assigns its
// tracking number. An empty address falls back to one captured at payment.
func (s *MailboxService) ConfirmShipment(ctx context.Context, id, shippingAddress string) (model.MailboxItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return model.MailboxItem{}, err
	}
	if item.Status != model.MailboxPending {
		return model.MailboxItem{}, &TransitionError{Entity: entityMailbox, From: string(item.Status), To: string(model.MailboxSent)}
	}
	if !item.PaymentStatus.Settled() {
		return model.MailboxItem{}, ErrPaymentRequired
	}
	addr := strings.TrimSpace(shippingAddress)
	if addr == "" {
		addr = item.ShippingAddress
	}
	if addr == "" {
		return model.MailboxItem{}, invalid("shipping address is required")
	}

	updated := item
	now := s.clock()
	updated.Status = model.MailboxSent
	updated.TrackingNumber = s.tracking()
	updated.ShippingAddress = addr
	updated.SentAt = &now
	updated.UpdatedAt = now
	if err := s.update(ctx, updated, item); err != nil {
		return model.MailboxItem{}, persistErr("confirm shipment", err)
	}
	s.transitioned(entityMailbox, string(updated.Status))
	s.notify(ctx, model.EventMailboxDocumentReady, updated.ClientID, model.SeverityNormal, map[string]string{
		"mailboxItemId":  updated.ID,
		"documentName":   updated.DocumentName,
		"trackingNumber": updated.TrackingNumber,
	})
	return updated, nil
}

// MarkDelivered records that the item reached the client.
func (s *MailboxService) MarkDelivered(ctx context.Context, id string) (model.MailboxItem, error) {
	return s.advance(ctx, id, model.MailboxDelivered)
}

// MarkViewed records that the client opened the item.
func (s *MailboxService) MarkViewed(ctx context.Context, id string) (model.MailboxItem, error) {
	return s.advance(ctx, id, model.MailboxViewed)
}

// MarkDownloaded records that the client downloaded the item.
func (s *MailboxService) MarkDownloaded(ctx context.Context, id string) (model.MailboxItem, error) {
	return s.advance(ctx, id, model.MailboxDownloaded)
}

// advance moves a shipped item forward to target. Items already at or past
// target are returned unchanged. Skipped intermediate statuses get the same
// timestamp as target.
func (s *MailboxService) advance(ctx context.Context, id string, target model.MailboxStatus) (model.MailboxItem, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return model.MailboxItem{}, err
	}
	if item.Status.Rank() >= target.Rank() {
		return item, nil
	}
	if item.Status == model.MailboxPending {
		return model.MailboxItem{}, &TransitionError{Entity: entityMailbox, From: string(item.Status), To: string(target)}
	}

	updated := item
	now := s.clock()
	for _, status := range forward {
		if status.Rank() <= item.Status.Rank() || status.Rank() > target.Rank() {
			continue
		}
		if stamp := updated.StampFor(status); stamp != nil && *stamp == nil {
			at := now
			*stamp = &at
		}
	}
	updated.Status = target
	updated.UpdatedAt = now

	err = s.update(ctx, updated, item)
	if errors.Is(err, ErrConflict) {
		// A concurrent actor may have applied the same transition.
		if current, getErr := s.Get(ctx, id); getErr == nil && current.Status.Rank() >= target.Rank() {
			return current, nil
		}
	}
	if err != nil {
		return model.MailboxItem{}, persistErr("advance mailbox item", err)
	}
	s.transitioned(entityMailbox, string(updated.Status))
	return updated, nil
}

// Get loads an item.
func (s *MailboxService) Get(ctx context.Context, id string) (model.MailboxItem, error) {
	var item model.MailboxItem
	err := s.persist(ctx, func(ctx context.Context) (err error) {
		item, err = s.store.GetMailboxItem(ctx, id)
		return err
	})
	return item, persistErr("get mailbox item", err)
}

// List returns a client's items, newest first.
func (s *MailboxService) List(ctx context.Context, clientID string) ([]model.MailboxItem, error) {
	var out []model.MailboxItem
	err := s.persist(ctx, func(ctx context.Context) (err error) {
		out, err = s.store.ListMailboxItems(ctx, clientID)
		return err
	})
	return out, persistErr("list mailbox items", err)
}

func (s *MailboxService) update(ctx context.Context, updated, prev model.MailboxItem) error {
	return s.persist(ctx, func(ctx context.Context) error {
		return s.store.UpdateMailboxItem(ctx, updated, prev.Status, prev.PaymentStatus)
	})
}

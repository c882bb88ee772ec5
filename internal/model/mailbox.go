package model

import "time"

// MailboxItem is a consultant-to-client document delivery. Fees are stored in
// cents.
type MailboxItem struct {
	ID               string         `json:"id"`
	ClientID         string         `json:"clientId"`
	ConsultantID     string         `json:"consultantId"`
	DocumentName     string         `json:"documentName"`
	DocumentType     string         `json:"documentType"`
	Description      string         `json:"description,omitempty"`
	FileRef          string         `json:"fileRef,omitempty"`
	Status           MailboxStatus  `json:"status"`
	ShippingOption   ShippingOption `json:"shippingOption"`
	ShippingFeeCents int64          `json:"shippingFeeCents"`
	PaymentStatus    PaymentStatus  `json:"paymentStatus"`
	PaymentRef       string         `json:"paymentRef,omitempty"`
	ShippingAddress  string         `json:"shippingAddress,omitempty"`
	TrackingNumber   string         `json:"trackingNumber,omitempty"`
	PaidAt           *time.Time     `json:"paidAt,omitempty"`
	SentAt           *time.Time     `json:"sentAt,omitempty"`
	DeliveredAt      *time.Time     `json:"deliveredAt,omitempty"`
	ViewedAt         *time.Time     `json:"viewedAt,omitempty"`
	DownloadedAt     *time.Time     `json:"downloadedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// StampFor returns a pointer to the timestamp field recorded when the item
// enters status s, or nil for statuses without one.
func (m *MailboxItem) StampFor(s MailboxStatus) **time.Time {
	switch s {
	case MailboxSent:
		return &m.SentAt
	case MailboxDelivered:
		return &m.DeliveredAt
	case MailboxViewed:
		return &m.ViewedAt
	case MailboxDownloaded:
		return &m.DownloadedAt
	case MailboxPending:
		return nil
	}
	return nil
}

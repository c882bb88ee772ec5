package model

import "time"

// EventType names a lifecycle notification.
type EventType string

const (
	EventDocumentRequested      EventType = "document_requested"
	EventDocumentUploaded       EventType = "document_uploaded"
	EventDocumentApproved       EventType = "document_approved"
	EventDocumentRejected       EventType = "document_rejected"
	EventDocumentNeedsRevision  EventType = "document_needs_revision"
	EventMailboxDocumentReady   EventType = "mailbox_document_ready"
	EventMailboxPaymentReceived EventType = "mailbox_payment_received"
)

// Severity controls how prominently the client UI surfaces a notification.
type Severity string

const (
	SeverityNormal Severity = "normal"
	SeverityHigh   Severity = "high"
)

// Notification is handed to a Notifier after a lifecycle transition commits.
type Notification struct {
	ID          string            `json:"id"`
	Event       EventType         `json:"event"`
	RecipientID string            `json:"recipientId"`
	Severity    Severity          `json:"severity"`
	Payload     map[string]string `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

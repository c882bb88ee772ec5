// Package model contains the struct definitions and closed enumerations shared
// across the lifecycle services, stores, and the API.
package model

import "fmt"

// Category classifies a client document. In Go a type declared via
// "type X string" creates a new named type, so a Category cannot be mixed up
// with an arbitrary string without an explicit conversion.
type Category string

const (
	CategoryIdentity  Category = "identity"
	CategoryBusiness  Category = "business"
	CategoryFinancial Category = "financial"
	CategoryMedical   Category = "medical"
	CategoryOther     Category = "other"
)

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	switch c {
	case CategoryIdentity, CategoryBusiness, CategoryFinancial, CategoryMedical, CategoryOther:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Priority ranks how urgently a consultant needs a requested document.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority converts user input into a Priority. An empty string yields
// PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// DocumentStatus is the review state of a DocumentRecord.
type DocumentStatus string

const (
	DocumentPending       DocumentStatus = "pending"
	DocumentApproved      DocumentStatus = "approved"
	DocumentRejected      DocumentStatus = "rejected"
	DocumentNeedsRevision DocumentStatus = "needs_revision"
)

// Terminal reports whether no further review is permitted.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case DocumentApproved:
		return true
	case DocumentPending, DocumentRejected, DocumentNeedsRevision:
		return false
	}
	return false
}

// RequestStatus is the state of a DocumentRequest. It mirrors the linked
// record's review outcome but adds the requested and uploaded states.
type RequestStatus string

const (
	RequestRequested     RequestStatus = "requested"
	RequestUploaded      RequestStatus = "uploaded"
	RequestApproved      RequestStatus = "approved"
	RequestRejected      RequestStatus = "rejected"
	RequestNeedsRevision RequestStatus = "needs_revision"
)

// AcceptsResubmission reports whether a fresh upload may replace the linked
// record.
func (s RequestStatus) AcceptsResubmission() bool {
	switch s {
	case RequestRejected, RequestNeedsRevision:
		return true
	case RequestRequested, RequestUploaded, RequestApproved:
		return false
	}
	return false
}

// ReviewOutcome is the decision a consultant records on a DocumentRecord.
type ReviewOutcome string

const (
	OutcomeApproved      ReviewOutcome = "approved"
	OutcomeRejected      ReviewOutcome = "rejected"
	OutcomeNeedsRevision ReviewOutcome = "needs_revision"
)

// ParseReviewOutcome converts user input into a ReviewOutcome.
func ParseReviewOutcome(s string) (ReviewOutcome, error) {
	o := ReviewOutcome(s)
	switch o {
	case OutcomeApproved, OutcomeRejected, OutcomeNeedsRevision:
		return o, nil
	}
	return "", fmt.Errorf("unknown review outcome %q", s)
}

// DocumentStatus maps the outcome onto the record status it produces.
func (o ReviewOutcome) DocumentStatus() DocumentStatus {
	switch o {
	case OutcomeApproved:
		return DocumentApproved
	case OutcomeRejected:
		return DocumentRejected
	case OutcomeNeedsRevision:
		return DocumentNeedsRevision
	}
	panic(fmt.Sprintf("model: unhandled review outcome %q", string(o)))
}

// RequestStatus maps the outcome onto the request status it produces.
func (o ReviewOutcome) RequestStatus() RequestStatus {
	switch o {
	case OutcomeApproved:
		return RequestApproved
	case OutcomeRejected:
		return RequestRejected
	case OutcomeNeedsRevision:
		return RequestNeedsRevision
	}
	panic(fmt.Sprintf("model: unhandled review outcome %q", string(o)))
}

// Event maps the outcome onto the notification event sent to the client.
func (o ReviewOutcome) Event() EventType {
	switch o {
	case OutcomeApproved:
		return EventDocumentApproved
	case OutcomeRejected:
		return EventDocumentRejected
	case OutcomeNeedsRevision:
		return EventDocumentNeedsRevision
	}
	panic(fmt.Sprintf("model: unhandled review outcome %q", string(o)))
}

// Severity of the notification sent to the client.
func (o ReviewOutcome) Severity() Severity {
	switch o {
	case OutcomeRejected:
		return SeverityHigh
	case OutcomeApproved, OutcomeNeedsRevision:
		return SeverityNormal
	}
	panic(fmt.Sprintf("model: unhandled review outcome %q", string(o)))
}

// MailboxStatus tracks a mailbox item from creation to the client's download.
// Progression is forward only.
type MailboxStatus string

const (
	MailboxPending    MailboxStatus = "pending"
	MailboxSent       MailboxStatus = "sent"
	MailboxDelivered  MailboxStatus = "delivered"
	MailboxViewed     MailboxStatus = "viewed"
	MailboxDownloaded MailboxStatus = "downloaded"
)

// Rank orders the statuses so transitions can be compared.
func (s MailboxStatus) Rank() int {
	switch s {
	case MailboxPending:
		return 0
	case MailboxSent:
		return 1
	case MailboxDelivered:
		return 2
	case MailboxViewed:
		return 3
	case MailboxDownloaded:
		return 4
	}
	return -1
}

// PaymentStatus describes whether the shipping fee has been settled.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentWaived PaymentStatus = "waived"
)

// Settled reports whether shipment may proceed.
func (s PaymentStatus) Settled() bool {
	switch s {
	case PaymentPaid, PaymentWaived:
		return true
	case PaymentUnpaid:
		return false
	}
	return false
}

// ShippingOption selects how a mailbox item reaches the client.
type ShippingOption string

const (
	ShippingDigital   ShippingOption = "digital"
	ShippingStandard  ShippingOption = "standard"
	ShippingExpress   ShippingOption = "express"
	ShippingOvernight ShippingOption = "overnight"
)

// ParseShippingOption converts user input into a ShippingOption. An empty
// string yields ShippingDigital.
func ParseShippingOption(s string) (ShippingOption, error) {
	if s == "" {
		return ShippingDigital, nil
	}
	o := ShippingOption(s)
	switch o {
	case ShippingDigital, ShippingStandard, ShippingExpress, ShippingOvernight:
		return o, nil
	}
	return "", fmt.Errorf("unknown shipping option %q", s)
}

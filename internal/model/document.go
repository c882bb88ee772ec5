package model

import "time"

// DocumentRequest is a consultant's ask that a client supply a document.
// RecordID points at the newest DocumentRecord attached to the request and is
// empty while the request is still requested.
type DocumentRequest struct {
	ID           string        `json:"id"`
	ConsultantID string        `json:"consultantId"`
	ClientID     string        `json:"clientId"`
	DocumentName string        `json:"documentName"`
	DocumentType string        `json:"documentType"`
	Category     Category      `json:"category"`
	Description  string        `json:"description,omitempty"`
	DueDate      *time.Time    `json:"dueDate,omitempty"`
	Priority     Priority      `json:"priority"`
	Status       RequestStatus `json:"status"`
	RecordID     string        `json:"recordId,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// DocumentRecord is a client's persisted document.
type DocumentRecord struct {
	ID            string         `json:"id"`
	ClientID      string         `json:"clientId"`
	ConsultantID  string         `json:"consultantId,omitempty"`
	RequestID     string         `json:"requestId,omitempty"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	Category      Category       `json:"category"`
	Status        DocumentStatus `json:"status"`
	FileName      string         `json:"fileName,omitempty"`
	FileRef       string         `json:"fileRef"`
	FileSizeBytes int64          `json:"fileSizeBytes"`
	MimeType      string         `json:"mimeType,omitempty"`
	UploadedAt    time.Time      `json:"uploadedAt"`
	ReviewedAt    *time.Time     `json:"reviewedAt,omitempty"`
	ReviewedBy    string         `json:"reviewedBy,omitempty"`
	ReviewNotes   string         `json:"reviewNotes,omitempty"`
	// Filled in by the inspection worker after upload.
	PageCount  int    `json:"pageCount,omitempty"`
	PreviewRef string `json:"previewRef,omitempty"`
}

// DocumentSpec describes the document being requested or submitted.
type DocumentSpec struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Category Category `json:"category"`
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dharsanguruparan/clientdesk/internal/model"
)

const requestColumns = `id, consultant_id, client_id, document_name, document_type, category,
	description, due_date, priority, status, record_id, created_at, updated_at`

const recordColumns = `id, client_id, consultant_id, request_id, name, type, category, status,
	file_name, file_ref, file_size_bytes, mime_type, uploaded_at, reviewed_at, reviewed_by,
	review_notes, page_count, preview_ref`

func scanRequest(r row) (model.DocumentRequest, error) {
	var (
		req      model.DocumentRequest
		recordID *string
	)
	err := r.Scan(&req.ID, &req.ConsultantID, &req.ClientID, &req.DocumentName, &req.DocumentType,
		&req.Category, &req.Description, &req.DueDate, &req.Priority, &req.Status, &recordID,
		&req.CreatedAt, &req.UpdatedAt)
	req.RecordID = deref(recordID)
	return req, err
}

func scanRecord(r row) (model.DocumentRecord, error) {
	var (
		rec       model.DocumentRecord
		requestID *string
	)
	err := r.Scan(&rec.ID, &rec.ClientID, &rec.ConsultantID, &requestID, &rec.Name, &rec.Type,
		&rec.Category, &rec.Status, &rec.FileName, &rec.FileRef, &rec.FileSizeBytes, &rec.MimeType,
		&rec.UploadedAt, &rec.ReviewedAt, &rec.ReviewedBy, &rec.ReviewNotes, &rec.PageCount,
		&rec.PreviewRef)
	rec.RequestID = deref(requestID)
	return rec, err
}

// CreateRequest inserts a new request.
func (r *Repository) CreateRequest(ctx context.Context, req model.DocumentRequest) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO document_requests (`+requestColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, req.ID, req.ConsultantID, req.ClientID, req.DocumentName, req.DocumentType, req.Category,
		req.Description, req.DueDate, req.Priority, req.Status, nullable(req.RecordID),
		req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document request: %w", err)
	}
	return nil
}

// GetRequest returns a request by id.
func (r *Repository) GetRequest(ctx context.Context, id string) (model.DocumentRequest, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM document_requests WHERE id=$1`, id))
	if err != nil {
		return model.DocumentRequest{}, notFound("document request", id, err)
	}
	return req, nil
}

// ListRequests returns every request addressed to clientID, newest first.
func (r *Repository) ListRequests(ctx context.Context, clientID string) ([]model.DocumentRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM document_requests
		WHERE client_id=$1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list document requests: %w", err)
	}
	defer rows.Close()
	out := make([]model.DocumentRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CreateRecord inserts a record that answers no request.
func (r *Repository) CreateRecord(ctx context.Context, rec model.DocumentRecord) error {
	return insertRecord(ctx, r.pool, rec)
}

func insertRecord(ctx context.Context, q querier, rec model.DocumentRecord) error {
	_, err := q.Exec(ctx, `
		INSERT INTO document_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, rec.ID, rec.ClientID, rec.ConsultantID, nullable(rec.RequestID), rec.Name, rec.Type,
		rec.Category, rec.Status, rec.FileName, rec.FileRef, rec.FileSizeBytes, rec.MimeType,
		rec.UploadedAt, rec.ReviewedAt, rec.ReviewedBy, rec.ReviewNotes, rec.PageCount,
		rec.PreviewRef)
	if err != nil {
		return fmt.Errorf("insert document record: %w", err)
	}
	return nil
}

// GetRecord returns a record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (model.DocumentRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM document_records WHERE id=$1`, id))
	if err != nil {
		return model.DocumentRecord{}, notFound("document record", id, err)
	}
	return rec, nil
}

// ListRecords returns every record uploaded by clientID, newest first.
func (r *Repository) ListRecords(ctx context.Context, clientID string) ([]model.DocumentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM document_records
		WHERE client_id=$1 ORDER BY uploaded_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list document records: %w", err)
	}
	defer rows.Close()
	out := make([]model.DocumentRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AttachRecord moves the request out of prev and inserts rec in one
// transaction.
func (r *Repository) AttachRecord(ctx context.Context, rec model.DocumentRecord, req model.DocumentRequest, prev model.RequestStatus) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE document_requests
			SET status=$1, record_id=$2, updated_at=$3
			WHERE id=$4 AND status=$5
		`, req.Status, nullable(req.RecordID), req.UpdatedAt, req.ID, prev)
		if err != nil {
			return fmt.Errorf("update document request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return guardFailed(ctx, tx, "document_requests", "document request", req.ID)
		}
		return insertRecord(ctx, tx, rec)
	})
}

// SaveReview stores the reviewed record and, when req is non-nil, the
// request that still points at it.
func (r *Repository) SaveReview(ctx context.Context, rec model.DocumentRecord, prev model.DocumentStatus, req *model.DocumentRequest) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE document_records
			SET status=$1, reviewed_at=$2, reviewed_by=$3, review_notes=$4
			WHERE id=$5 AND status=$6
		`, rec.Status, rec.ReviewedAt, rec.ReviewedBy, rec.ReviewNotes, rec.ID, prev)
		if err != nil {
			return fmt.Errorf("update document record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return guardFailed(ctx, tx, "document_records", "document record", rec.ID)
		}
		if req == nil {
			return nil
		}
		tag, err = tx.Exec(ctx, `
			UPDATE document_requests
			SET status=$1, updated_at=$2
			WHERE id=$3 AND record_id=$4
		`, req.Status, req.UpdatedAt, req.ID, rec.ID)
		if err != nil {
			return fmt.Errorf("update document request: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return guardFailed(ctx, tx, "document_requests", "document request", req.ID)
		}
		return nil
	})
}

// UpdateInspection stores background inspection results.
func (r *Repository) UpdateInspection(ctx context.Context, recordID string, pageCount int, previewRef string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE document_records SET page_count=$1, preview_ref=$2 WHERE id=$3
	`, pageCount, previewRef, recordID)
	if err != nil {
		return fmt.Errorf("update inspection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return guardFailed(ctx, r.pool, "document_records", "document record", recordID)
	}
	return nil
}

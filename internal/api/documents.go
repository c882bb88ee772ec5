package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

type createRequestBody struct {
	ConsultantID string     `json:"consultantId"`
	ClientID     string     `json:"clientId"`
	DocumentName string     `json:"documentName"`
	DocumentType string     `json:"documentType"`
	Category     string     `json:"category"`
	Description  string     `json:"description"`
	Priority     string     `json:"priority"`
	DueDate      *time.Time `json:"dueDate"`
}

type reviewBody struct {
	Outcome    string `json:"outcome"`
	ReviewerID string `json:"reviewerId"`
	Notes      string `json:"notes"`
}

// submission is returned by every upload endpoint.
type submission struct {
	Record model.DocumentRecord `json:"record"`
	Upload upload.Task          `json:"upload"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	req, err := s.Documents.CreateRequest(r.Context(), lifecycle.NewRequest{
		ConsultantID: body.ConsultantID,
		ClientID:     body.ClientID,
		Document: model.DocumentSpec{
			Name:     body.DocumentName,
			Type:     body.DocumentType,
			Category: model.Category(body.Category),
		},
		Description: body.Description,
		Priority:    model.Priority(body.Priority),
		DueDate:     body.DueDate,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.Documents.GetRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Documents.GetRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.Documents.ListRequests(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reqs)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Documents.ListRecords(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, err := s.Documents.Review(r.Context(), r.PathValue("id"), lifecycle.Review{
		Outcome:    model.ReviewOutcome(body.Outcome),
		ReviewerID: body.ReviewerID,
		Notes:      body.Notes,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSubmitForRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.submit(w, r, func(ctx context.Context, f upload.File, _ map[string]string) (model.DocumentRecord, upload.Task, error) {
		return s.Intake.SubmitForRequest(ctx, id, f)
	})
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.submit(w, r, func(ctx context.Context, f upload.File, _ map[string]string) (model.DocumentRecord, upload.Task, error) {
		return s.Intake.Resubmit(ctx, id, f)
	})
}

// handleSubmitUnrequested takes the document description from the form
// fields name, type, category, and consultantId.
func (s *Server) handleSubmitUnrequested(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("id")
	s.submit(w, r, func(ctx context.Context, f upload.File, fields map[string]string) (model.DocumentRecord, upload.Task, error) {
		return s.Intake.SubmitUnrequested(ctx, lifecycle.NewSubmission{
			ClientID:     clientID,
			ConsultantID: fields["consultantId"],
			Document: model.DocumentSpec{
				Name:     fields["name"],
				Type:     fields["type"],
				Category: model.Category(fields["category"]),
			},
		}, f)
	})
}

type submitFunc func(ctx context.Context, f upload.File, fields map[string]string) (model.DocumentRecord, upload.Task, error)

func (s *Server) submit(w http.ResponseWriter, r *http.Request, fn submitFunc) {
	tmp, fields, err := s.readMultipart(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer tmp.Close()
	f, err := tmp.File()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rec, task, err := fn(r.Context(), f, fields)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, submission{Record: rec, Upload: task})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.Inbox.ListNotifications(r.Context(), r.PathValue("recipient"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.Tracker.List())
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	task, ok := s.Tracker.Get(r.PathValue("key"))
	if !ok {
		s.respondError(w, r, upload.ErrUnknownTask)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelUpload(w http.ResponseWriter, r *http.Request) {
	if !s.Tracker.Cancel(r.PathValue("key")) {
		s.respondError(w, r, upload.ErrUnknownTask)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/signing"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

const maxJSONBody = 1 << 20

type errorBody struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are refused.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode body: %v", lifecycle.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		verr *upload.ValidationError
		terr *lifecycle.TransitionError
		xerr *upload.TransferError
		perr *lifecycle.PersistenceError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, lifecycle.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, signing.ErrExpired):
		return http.StatusGone
	case errors.Is(err, signing.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, upload.ErrUnknownTask):
		return http.StatusNotFound
	case errors.As(err, &terr), errors.Is(err, lifecycle.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &xerr):
		return http.StatusBadGateway
	case errors.As(err, &perr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var verr *upload.ValidationError
	if errors.As(err, &verr) {
		body.Reasons = verr.Reasons
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	respondJSON(w, status, body)
}

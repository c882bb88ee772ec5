package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/signing"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

type createMailboxBody struct {
	ConsultantID     string `json:"consultantId"`
	ClientID         string `json:"clientId"`
	DocumentName     string `json:"documentName"`
	DocumentType     string `json:"documentType"`
	Description      string `json:"description"`
	FileRef          string `json:"fileRef"`
	ShippingFeeCents int64  `json:"shippingFeeCents"`
	ShippingOption   string `json:"shippingOption"`
}

type shipmentBody struct {
	ShippingAddress string `json:"shippingAddress"`
}

type paymentBody struct {
	PaymentRef      string `json:"paymentRef"`
	ShippingAddress string `json:"shippingAddress"`
}

type paymentRequired struct {
	Error string            `json:"error"`
	Item  model.MailboxItem `json:"item"`
}

type downloadLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleCreateMailbox accepts either a JSON body referencing an already stored
// file or a multipart form whose "file" part is stored in the mailbox bucket.
func (s *Server) handleCreateMailbox(w http.ResponseWriter, r *http.Request) {
	var body createMailboxBody
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		ref, fields, err := s.storeMailboxFile(w, r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		fee, err := parseCents(fields["shippingFeeCents"])
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		body = createMailboxBody{
			ConsultantID:     fields["consultantId"],
			ClientID:         fields["clientId"],
			DocumentName:     fields["documentName"],
			DocumentType:     fields["documentType"],
			Description:      fields["description"],
			FileRef:          ref,
			ShippingFeeCents: fee,
			ShippingOption:   fields["shippingOption"],
		}
	} else if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	item, err := s.Mailbox.Create(r.Context(), lifecycle.NewMailboxItem{
		ConsultantID:     body.ConsultantID,
		ClientID:         body.ClientID,
		DocumentName:     body.DocumentName,
		DocumentType:     body.DocumentType,
		Description:      body.Description,
		FileRef:          body.FileRef,
		ShippingFeeCents: body.ShippingFeeCents,
		ShippingOption:   model.ShippingOption(body.ShippingOption),
	})
	if err != nil {
		if body.FileRef != "" && mediaType == "multipart/form-data" {
			s.removeMailboxFile(body.FileRef)
		}
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// storeMailboxFile validates the uploaded part against the upload policy and
// writes it below the client's folder in the mailbox bucket.
func (s *Server) storeMailboxFile(w http.ResponseWriter, r *http.Request) (string, map[string]string, error) {
	tmp, fields, err := s.readMultipart(w, r)
	if err != nil {
		return "", nil, err
	}
	defer tmp.Close()
	if fields["clientId"] == "" {
		return "", nil, fmt.Errorf("%w: clientId is required", lifecycle.ErrInvalidInput)
	}
	f, err := tmp.File()
	if err != nil {
		return "", nil, err
	}
	if err := upload.Validate(f.FileInfo, s.Tracker.Policy()); err != nil {
		return "", nil, err
	}
	key, err := s.Objects.PutObject(r.Context(), s.cfg.S3.MailboxBucket, fields["clientId"], upload.Object{
		Name:        f.Name,
		Size:        f.SizeBytes,
		ContentType: f.MimeType,
		Body:        f.Body,
	}, nil)
	if err != nil {
		return "", nil, &upload.TransferError{Key: f.Name, Err: err}
	}
	return key, fields, nil
}

func (s *Server) removeMailboxFile(key string) {
	remover, ok := s.Objects.(lifecycle.ObjectRemover)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	if err := remover.DeleteObject(ctx, s.cfg.S3.MailboxBucket, key); err != nil {
		s.Logger.Warn("remove orphaned mailbox file", zap.String("key", key), zap.Error(err))
	}
}

func parseCents(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: shippingFeeCents: %v", lifecycle.ErrInvalidInput, err)
	}
	return n, nil
}

func (s *Server) handleGetMailbox(w http.ResponseWriter, r *http.Request) {
	item, err := s.Mailbox.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleListMailbox(w http.ResponseWriter, r *http.Request) {
	items, err := s.Mailbox.List(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

// handleRequestShipment answers 402 with the item while the fee is unpaid.
func (s *Server) handleRequestShipment(w http.ResponseWriter, r *http.Request) {
	var body shipmentBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	item, err := s.Mailbox.RequestShipment(r.Context(), r.PathValue("id"), body.ShippingAddress)
	if errors.Is(err, lifecycle.ErrPaymentRequired) && item.ID != "" {
		respondJSON(w, http.StatusPaymentRequired, paymentRequired{Error: err.Error(), Item: item})
		return
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var body paymentBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	item, err := s.Mailbox.ConfirmPayment(r.Context(), r.PathValue("id"), lifecycle.PaymentConfirmation{
		PaymentRef:      body.PaymentRef,
		ShippingAddress: body.ShippingAddress,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleConfirmShipment(w http.ResponseWriter, r *http.Request) {
	var body shipmentBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}
	item, err := s.Mailbox.ConfirmShipment(r.Context(), r.PathValue("id"), body.ShippingAddress)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (s *Server) handleAdvance(fn func(ctx context.Context, id string) (model.MailboxItem, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := fn(r.Context(), r.PathValue("id"))
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, item)
	}
}

// handleDownloadLink signs a time-limited link for a shipped item that has a
// stored file.
func (s *Server) handleDownloadLink(w http.ResponseWriter, r *http.Request) {
	item, err := s.Mailbox.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if item.FileRef == "" {
		s.respondError(w, r, fmt.Errorf("mailbox item %s has no file: %w", item.ID, lifecycle.ErrNotFound))
		return
	}
	if item.Status == model.MailboxPending {
		s.respondError(w, r, &lifecycle.TransitionError{Entity: "mailbox item", From: string(item.Status), To: string(model.MailboxDownloaded)})
		return
	}
	d := signing.Download{
		ItemID:   item.ID,
		ClientID: item.ClientID,
		Expires:  s.now().Add(s.cfg.SignedURLTTL).Truncate(time.Second),
	}
	link := url.URL{Path: "/mailbox/download", RawQuery: s.Signer.Query(d).Encode()}
	respondJSON(w, http.StatusOK, downloadLink{URL: link.String(), ExpiresAt: d.Expires.UTC()})
}

// handleDownload verifies a signed link, marks the item downloaded, and then
// redirects to a presigned object URL or streams the object.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	d, err := s.Signer.Verify(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	item, err := s.Mailbox.Get(r.Context(), d.ItemID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if item.ClientID != d.ClientID || item.FileRef == "" {
		s.respondError(w, r, signing.ErrInvalidSignature)
		return
	}
	if _, err := s.Mailbox.MarkDownloaded(r.Context(), item.ID); err != nil {
		s.respondError(w, r, err)
		return
	}

	bucket := s.cfg.S3.MailboxBucket
	if p, ok := s.Objects.(Presigner); ok {
		// The presigned URL never outlives the link that produced it.
		ttl := min(s.cfg.SignedURLTTL, time.Until(d.Expires))
		if ttl < time.Second {
			ttl = time.Second
		}
		u, err := p.PresignGet(r.Context(), bucket, item.FileRef, ttl)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
		return
	}

	rc, err := s.Objects.GetObject(r.Context(), bucket, item.FileRef)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer rc.Close()
	name := path.Base(item.FileRef)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.Logger.Warn("stream download", zap.String("item", item.ID), zap.Error(err))
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/clientdesk/internal/config"
	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/model"
	"github.com/dharsanguruparan/clientdesk/internal/notify"
	"github.com/dharsanguruparan/clientdesk/internal/observability"
	"github.com/dharsanguruparan/clientdesk/internal/signing"
	"github.com/dharsanguruparan/clientdesk/internal/storage"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

type fixture struct {
	handler http.Handler
	store   *storage.MemoryStore
	objects *storage.DiskObjects
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := &config.Config{
		Address:        ":0",
		SignedURLTTL:   time.Minute,
		PersistTimeout: time.Second,
		S3: config.S3{
			DocumentsBucket: "documents",
			MailboxBucket:   "mailbox",
			PreviewsBucket:  "previews",
		},
		Uploads: config.Uploads{
			MaxFileBytes:        1 << 20,
			AllowedMimePatterns: []string{"application/pdf"},
			AllowedExtensions:   []string{".pdf", ".txt"},
		},
	}
	store := storage.NewMemoryStore()
	objects, err := storage.NewDiskObjects(t.TempDir())
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(reg, reg)
	require.NoError(t, err)

	opts := lifecycle.Options{PersistTimeout: cfg.PersistTimeout, Recorder: metrics}
	notifier := notify.NewLogNotifier(nil, nil)
	docs := lifecycle.NewDocumentService(store, notifier, opts)
	mailbox := lifecycle.NewMailboxService(store, notifier, nil, opts)
	tracker := upload.NewTracker(objects, upload.Options{Bucket: cfg.S3.DocumentsBucket, Policy: cfg.UploadPolicy()})
	intake := lifecycle.NewIntake(tracker, docs, lifecycle.IntakeOptions{Bucket: cfg.S3.DocumentsBucket, Remover: objects})

	srv := New(cfg, Deps{
		Documents: docs,
		Mailbox:   mailbox,
		Intake:    intake,
		Tracker:   tracker,
		Inbox:     store,
		Objects:   objects,
		Signer:    signing.NewSigner([]byte("test-secret")),
		Metrics:   metrics,
	})
	return fixture{handler: srv.Handler(), store: store, objects: objects}
}

func (f fixture) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f fixture) postJSON(t *testing.T, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return f.do(t, http.MethodPost, target, bytes.NewReader(data), "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// form builds a multipart body with the given fields and a "file" part.
func form(t *testing.T, fields map[string]string, name, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestUploadReview(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/requests", map[string]any{
		"consultantId": "consultant-1",
		"clientId":     "client-1",
		"documentName": "Passport",
		"category":     "identity",
		"priority":     "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[model.DocumentRequest](t, rec)
	assert.Equal(t, model.RequestRequested, req.Status)

	body, ct := form(t, nil, "passport.pdf", "%PDF-1.4 passport")
	rec = f.do(t, http.MethodPost, "/requests/"+req.ID+"/upload", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decode[submission](t, rec)
	assert.Equal(t, model.DocumentPending, sub.Record.Status)
	assert.Equal(t, req.ID, sub.Record.RequestID)
	assert.Equal(t, "passport.pdf", sub.Record.FileName)
	assert.Equal(t, "application/pdf", sub.Record.MimeType)
	assert.Equal(t, upload.StateCompleted, sub.Upload.State)

	rec = f.postJSON(t, "/records/"+sub.Record.ID+"/review", map[string]string{"outcome": "approved", "reviewerId": "consultant-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.DocumentApproved, decode[model.DocumentRecord](t, rec).Status)

	rec = f.postJSON(t, "/records/"+sub.Record.ID+"/review", map[string]string{"outcome": "rejected", "reviewerId": "consultant-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/clients/client-1/requests", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.DocumentRequest](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, model.RequestApproved, list[0].Status)

	rec = f.do(t, http.MethodGet, "/notifications/client-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadValidationFailure(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/requests", map[string]any{
		"consultantId": "consultant-1", "clientId": "client-1", "documentName": "Passport", "category": "identity",
	})
	req := decode[model.DocumentRequest](t, rec)

	body, ct := form(t, nil, "virus.exe", "MZ\x90\x00")
	rec = f.do(t, http.MethodPost, "/requests/"+req.ID+"/upload", body, ct)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[errorBody](t, rec).Reasons)

	rec = f.do(t, http.MethodPost, "/requests/"+req.ID+"/upload", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnrequestedSubmission(t *testing.T) {
	f := newFixture(t)
	body, ct := form(t, map[string]string{"name": "Invoice", "category": "business", "consultantId": "consultant-1"}, "invoice.pdf", "%PDF-1.4 inv")
	rec := f.do(t, http.MethodPost, "/clients/client-2/documents", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decode[submission](t, rec)
	assert.Empty(t, sub.Record.RequestID)
	assert.Equal(t, "Invoice", sub.Record.Name)

	rec = f.do(t, http.MethodGet, "/clients/client-2/records", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.DocumentRecord](t, rec), 1)
}

func TestNotFoundAndUnknownUpload(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/requests/missing", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/mailbox/missing", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/uploads/missing", nil, "").Code)

	rec := f.do(t, http.MethodGet, "/uploads", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]upload.Task](t, rec))
}

func TestMailboxPaymentShipmentDownload(t *testing.T) {
	f := newFixture(t)
	body, ct := form(t, map[string]string{
		"consultantId":     "consultant-1",
		"clientId":         "client-1",
		"documentName":     "Signed lease",
		"shippingFeeCents": "2500",
		"shippingOption":   "standard",
	}, "lease.pdf", "%PDF-1.4 lease")
	rec := f.do(t, http.MethodPost, "/mailbox", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[model.MailboxItem](t, rec)
	assert.Equal(t, model.PaymentUnpaid, item.PaymentStatus)
	require.NotEmpty(t, item.FileRef)

	base := "/mailbox/" + item.ID
	rec = f.do(t, http.MethodPost, base+"/download-link", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "pending items have no link")

	rec = f.postJSON(t, base+"/request-shipment", map[string]string{"shippingAddress": "1 Main St"})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, model.MailboxPending, decode[paymentRequired](t, rec).Item.Status)

	rec = f.postJSON(t, base+"/payment", map[string]string{"paymentRef": "pay-1", "shippingAddress": "1 Main St"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.PaymentPaid, decode[model.MailboxItem](t, rec).PaymentStatus)

	rec = f.do(t, http.MethodPost, base+"/ship", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	shipped := decode[model.MailboxItem](t, rec)
	assert.Equal(t, model.MailboxSent, shipped.Status)
	assert.NotEmpty(t, shipped.TrackingNumber)
	assert.Equal(t, "1 Main St", shipped.ShippingAddress)

	rec = f.do(t, http.MethodPost, base+"/delivered", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.MailboxDelivered, decode[model.MailboxItem](t, rec).Status)

	rec = f.do(t, http.MethodPost, base+"/download-link", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	link := decode[downloadLink](t, rec)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	q := u.Query()
	q.Set("sig", strings.Repeat("0", 64))
	tampered := u.Path + "?" + q.Encode()
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, tampered, nil, "").Code)

	rec = f.do(t, http.MethodGet, link.URL, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "%PDF-1.4 lease", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "lease.pdf")

	got, err := f.store.GetMailboxItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MailboxDownloaded, got.Status)
	assert.NotNil(t, got.ViewedAt, "skipped stages are stamped")

	rec = f.do(t, http.MethodGet, "/clients/client-1/mailbox", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.MailboxItem](t, rec), 1)
}

func TestMailboxWaivedFeeShipsImmediately(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/mailbox", map[string]any{
		"consultantId": "consultant-1",
		"clientId":     "client-1",
		"documentName": "Welcome pack",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	item := decode[model.MailboxItem](t, rec)
	assert.Equal(t, model.PaymentWaived, item.PaymentStatus)

	rec = f.postJSON(t, "/mailbox/"+item.ID+"/request-shipment", map[string]string{"shippingAddress": "2 Side St"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.MailboxSent, decode[model.MailboxItem](t, rec).Status)

	rec = f.postJSON(t, "/mailbox", map[string]any{"consultantId": "c", "clientId": "x", "documentName": "n", "shippingFeeCents": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsExposed(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", nil, "")
	rec := f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clientdesk_http_request_duration_seconds_count{code="200",route="GET /healthz"} 1`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&upload.ValidationError{Reasons: []string{"x"}}, http.StatusBadRequest},
		{lifecycle.ErrInvalidInput, http.StatusBadRequest},
		{lifecycle.ErrNotFound, http.StatusNotFound},
		{&lifecycle.TransitionError{Entity: "e", From: "a", To: "b"}, http.StatusConflict},
		{lifecycle.ErrConflict, http.StatusConflict},
		{lifecycle.ErrPaymentRequired, http.StatusPaymentRequired},
		{&upload.TransferError{Key: "k", Err: io.ErrUnexpectedEOF}, http.StatusBadGateway},
		{&lifecycle.PersistenceError{Op: "op", Err: io.EOF}, http.StatusInternalServerError},
		{signing.ErrExpired, http.StatusGone},
		{signing.ErrInvalidSignature, http.StatusForbidden},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

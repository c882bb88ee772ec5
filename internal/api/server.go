// Package api exposes the document lifecycle, the mailbox, and upload
// progress over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/clientdesk/internal/config"
	"github.com/dharsanguruparan/clientdesk/internal/lifecycle"
	"github.com/dharsanguruparan/clientdesk/internal/notify"
	"github.com/dharsanguruparan/clientdesk/internal/observability"
	"github.com/dharsanguruparan/clientdesk/internal/signing"
	"github.com/dharsanguruparan/clientdesk/internal/upload"
)

// Objects stores mailbox files and serves stored objects back.
type Objects interface {
	upload.ObjectStore
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Presigner is implemented by object stores that can hand out direct,
// time-limited download URLs. Without one, downloads stream through the API.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Deps are the collaborators the API serves.
type Deps struct {
	Documents *lifecycle.DocumentService
	Mailbox   *lifecycle.MailboxService
	Intake    *lifecycle.Intake
	Tracker   *upload.Tracker
	Inbox     notify.Inbox
	Objects   Objects
	Signer    *signing.Signer
	// Metrics is optional.
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Server exposes HTTP endpoints for document requests, records, mailbox
// items, and uploads.
type Server struct {
	Deps
	cfg    *config.Config
	now    func() time.Time
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{Deps: deps, cfg: cfg, now: time.Now}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.Logger.Info("api listening", zap.String("addr", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /healthz", s.handleHealth)

	s.handle(mux, "POST /requests", s.handleCreateRequest)
	s.handle(mux, "GET /requests/{id}", s.handleGetRequest)
	s.handle(mux, "POST /requests/{id}/upload", s.handleSubmitForRequest)
	s.handle(mux, "POST /requests/{id}/resubmit", s.handleResubmit)
	s.handle(mux, "GET /records/{id}", s.handleGetRecord)
	s.handle(mux, "POST /records/{id}/review", s.handleReview)
	s.handle(mux, "GET /clients/{id}/requests", s.handleListRequests)
	s.handle(mux, "GET /clients/{id}/records", s.handleListRecords)
	s.handle(mux, "POST /clients/{id}/documents", s.handleSubmitUnrequested)

	s.handle(mux, "POST /mailbox", s.handleCreateMailbox)
	s.handle(mux, "GET /mailbox/download", s.handleDownload)
	s.handle(mux, "GET /mailbox/{id}", s.handleGetMailbox)
	s.handle(mux, "POST /mailbox/{id}/request-shipment", s.handleRequestShipment)
	s.handle(mux, "POST /mailbox/{id}/payment", s.handleConfirmPayment)
	s.handle(mux, "POST /mailbox/{id}/ship", s.handleConfirmShipment)
	s.handle(mux, "POST /mailbox/{id}/delivered", s.handleAdvance(s.Mailbox.MarkDelivered))
	s.handle(mux, "POST /mailbox/{id}/viewed", s.handleAdvance(s.Mailbox.MarkViewed))
	s.handle(mux, "POST /mailbox/{id}/download-link", s.handleDownloadLink)
	s.handle(mux, "GET /clients/{id}/mailbox", s.handleListMailbox)

	s.handle(mux, "GET /notifications/{recipient}", s.handleNotifications)
	s.handle(mux, "GET /uploads", s.handleListUploads)
	s.handle(mux, "GET /uploads/{key}", s.handleGetUpload)
	s.handle(mux, "DELETE /uploads/{key}", s.handleCancelUpload)

	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	return corsMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handle registers fn under pattern, wrapped in a span, a request log line,
// and a latency observation labelled with the pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	tracer := otel.Tracer("clientdesk/api")
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), pattern, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r.WithContext(ctx))

		elapsed := time.Since(start)
		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		if s.Metrics != nil {
			s.Metrics.ObserveRequest(pattern, strconv.Itoa(rec.status), elapsed.Seconds())
		}
		s.Logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

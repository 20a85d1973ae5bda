package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/receipts-pipeline/internal/entity"
	"github.com/joseph-ayodele/receipts-pipeline/internal/receipts"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

type Backlog interface {
	Snapshot(ctx context.Context) (entity.BacklogSnapshot, error)
}

type RuleLister interface {
	ListSuggestionRules(ctx context.Context) ([]entity.SuggestionRule, error)
}

type Exporter interface {
	RulesXLSX(ctx context.Context) ([]byte, error)
	BacklogXLSX(ctx context.Context) ([]byte, error)
}

// Receipts is the upload/approval boundary.
type Receipts interface {
	Upload(ctx context.Context, req receipts.UploadRequest) (*entity.Receipt, *entity.ProcessingJob, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	Approve(ctx context.Context, req receipts.ApproveRequest) (*receipts.ApproveResult, error)
}

// Deps wires the HTTP surface. A nil Receipts leaves the /receipts routes unmounted.
type Deps struct {
	Health   HealthFunc
	Backlog  Backlog
	Rules    RuleLister
	Export   Exporter
	Receipts Receipts
}

type handlers struct {
	Deps
	logger *slog.Logger
}

// NewRouter builds the chi router for the ops and boundary endpoints.
func NewRouter(d Deps, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{Deps: d, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/backlog", h.backlog)
	r.Get("/rules", h.rules)
	r.Get("/export/rules.xlsx", h.exportRules)
	r.Get("/export/backlog.xlsx", h.exportBacklog)
	if d.Receipts != nil {
		r.Route("/receipts", func(r chi.Router) {
			r.Post("/", h.upload)
			r.Get("/{id}", h.getReceipt)
			r.Post("/{id}/approve", h.approve)
		})
	}
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http.request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"request_id", middleware.GetReqID(r.Context()),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps gRPC status codes from the service layer onto HTTP.
func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	st, _ := status.FromError(err)
	code := http.StatusInternalServerError
	switch st.Code() {
	case codes.InvalidArgument:
		code = http.StatusBadRequest
	case codes.NotFound:
		code = http.StatusNotFound
	case codes.FailedPrecondition:
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("http.failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": st.Message()})
}

// Serve runs an HTTP server on lis until ctx is done, then shuts it down.
func Serve(ctx context.Context, lis net.Listener, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("ops http listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

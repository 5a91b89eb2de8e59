package httpapi

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/example/waha-notification-bridge/internal/config"
	"github.com/example/waha-notification-bridge/internal/metrics"
	"github.com/example/waha-notification-bridge/internal/models"
	"github.com/example/waha-notification-bridge/internal/providers/waha"
	"github.com/example/waha-notification-bridge/internal/worker"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "WAHA WhatsApp Service"

// Consumer runs one consume batch.
type Consumer interface {
	Consume(ctx context.Context, opts worker.ConsumeOptions) (*models.BatchResult, error)
}

// BulkSender sends one text to every configured recipient.
type BulkSender interface {
	SendBulk(ctx context.Context, text, session string) (*models.BulkResult, error)
}

// RecipientLister exposes the recipient list used by bulk sends.
type RecipientLister interface {
	Path() string
	Recipients() ([]string, error)
}

// ReadinessReporter reports whether the status event producer last
// published successfully.
type ReadinessReporter interface {
	IsReady() bool
}

// Dependencies bundles everything the handlers need. Metrics and
// StatusProducer are optional.
type Dependencies struct {
	Config         *config.Config
	Gateway        waha.Gateway
	Consumer       Consumer
	Bulk           BulkSender
	Recipients     RecipientLister
	StatusProducer ReadinessReporter
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// Handler serves the bridge HTTP API.
type Handler struct {
	cfg        *config.Config
	gateway    waha.Gateway
	consumer   Consumer
	bulk       BulkSender
	recipients RecipientLister
	producer   ReadinessReporter
	logger     zerolog.Logger
}

// NewRouter wires routes and middleware onto a chi router.
func NewRouter(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("httpapi: config is required")
	case deps.Gateway == nil:
		return nil, errors.New("httpapi: gateway is required")
	case deps.Consumer == nil:
		return nil, errors.New("httpapi: consumer is required")
	case deps.Bulk == nil:
		return nil, errors.New("httpapi: bulk sender is required")
	case deps.Recipients == nil:
		return nil, errors.New("httpapi: recipient lister is required")
	}
	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	h := &Handler{
		cfg:        deps.Config,
		gateway:    deps.Gateway,
		consumer:   deps.Consumer,
		bulk:       deps.Bulk,
		recipients: deps.Recipients,
		producer:   deps.StatusProducer,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(deps.Metrics.Middleware)

	r.Get("/health", h.Health)
	r.Route("/debug", func(dbg chi.Router) {
		dbg.Get("/session-status", h.SessionStatus)
		dbg.Get("/config", h.DebugConfig)
		dbg.Post("/test-waha", h.GatewayDiagnostics)
	})
	r.Post("/send-message", h.SendMessage)
	r.Get("/recipients", h.ListRecipients)
	r.Post("/send-bulk", h.SendBulk)
	r.Post("/consume-notifications", h.ConsumeNotifications)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	return r, nil
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			evt := logger.Info()
			if status >= http.StatusInternalServerError {
				evt = logger.Warn()
			}
			evt.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

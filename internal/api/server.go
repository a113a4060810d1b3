package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fintrack/wa-gateway/internal/delivery"
	"github.com/fintrack/wa-gateway/internal/model"
)

// Outbox accepts outbound messages for delivery.
type Outbox interface {
	Enqueue(ctx context.Context, req delivery.Request) (*model.DeliveryJob, error)
	EnqueueBulk(ctx context.Context, reqs []delivery.Request) []delivery.BulkResult
}

// Store provides the persistence the HTTP handlers need.
type Store interface {
	GetJob(ctx context.Context, id string) (*model.DeliveryJob, error)
	GetDeliveryLog(ctx context.Context, jobID string, limit int) ([]model.DeliveryLogEntry, error)

	CreateTemplate(ctx context.Context, t *model.Template) error
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	UpdateTemplate(ctx context.Context, t *model.Template) error
	DeleteTemplate(ctx context.Context, id string) error

	CreateTrigger(ctx context.Context, t *model.Trigger) error
	ListTriggers(ctx context.Context, eventType model.EventType) ([]model.Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error
}

// Session exposes the WhatsApp connection to the HTTP surface.
type Session interface {
	Status() model.ConnectionState
	QRCode() string
	LoggedOut() bool
	Reconnect(ctx context.Context) error
}

// TokenSink caches freshly minted backend tokens.
type TokenSink interface {
	Store(userID, token string)
}

// Registrar links phone numbers to user accounts.
type Registrar interface {
	CreatePendingMapping(ctx context.Context, userID, rawChannelID, code string) error
	Verify(ctx context.Context, rawChannelID, code string) (bool, error)
}

// AuthConfig holds the credentials the API authenticates with.
type AuthConfig struct {
	JWTSecret string
	APIKey    string
	TokenTTL  time.Duration
}

// Server is the gateway's HTTP API.
type Server struct {
	outbox    Outbox
	store     Store
	session   Session
	tokens    TokenSink
	registrar Registrar
	auth      AuthConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewServer creates the API server.
func NewServer(outbox Outbox, store Store, session Session, tokens TokenSink, registrar Registrar, auth AuthConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if auth.TokenTTL <= 0 {
		auth.TokenTTL = 24 * time.Hour
	}
	return &Server{
		outbox:    outbox,
		store:     store,
		session:   session,
		tokens:    tokens,
		registrar: registrar,
		auth:      auth,
		logger:    logger,
		now:       time.Now,
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/whatsapp/status", s.handleSessionStatus)

	r.Group(func(r chi.Router) {
		r.Use(requireAPIKey(s.auth.APIKey))

		r.Post("/auth/token", s.handleMintToken)
		r.Post("/mappings", s.handleCreateMapping)
		r.Post("/mappings/verify", s.handleVerifyMapping)
		r.Get("/whatsapp/qr", s.handleQR)
		r.Get("/whatsapp/qr/image", s.handleQRImage)
		r.Post("/whatsapp/reconnect", s.handleReconnect)

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", s.handleCreateTemplate)
			r.Get("/", s.handleListTemplates)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
		})

		r.Route("/triggers", func(r chi.Router) {
			r.Post("/", s.handleCreateTrigger)
			r.Get("/", s.handleListTriggers)
			r.Delete("/{id}", s.handleDeleteTrigger)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireJWT(s.auth.JWTSecret))

		r.Post("/messages/send", s.handleSend)
		r.Post("/messages/send-bulk", s.handleSendBulk)
		r.Get("/messages/status/{id}", s.handleMessageStatus)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests logs each request after it completes.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nailbook/internal/config"
	"nailbook/internal/confirmation"
	"nailbook/internal/domain"
	"nailbook/internal/export"
	"nailbook/internal/logging"
	"nailbook/internal/metrics"
	"nailbook/internal/service"
	"nailbook/internal/slots"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Deps are the services the HTTP API delegates to.
type Deps struct {
	Bookings      *service.BookingService
	Schedule      *service.ScheduleService
	Catalog       *service.CatalogService
	Watcher       *confirmation.Watcher
	Status        domain.StatusChecker
	Exporter      *export.Exporter
	Window        slots.Window
	WebhookSecret string
	// Ready reports whether the backing stores are reachable.
	Ready func(ctx context.Context) error
}

// HTTPServer exposes the storefront and admin API.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	auth    *AdminAuth
	limiter *rateLimiter
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if deps.Window.Days == 0 {
		deps.Window = slots.DefaultWindow()
	}
	srv := &HTTPServer{
		cfg:     cfg,
		deps:    deps,
		auth:    NewAdminAuth(cfg),
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments/webhook", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Wrap)

			r.Get("/services", s.handleListServices)
			r.Get("/availability/window", s.handleWindow)
			r.Get("/availability/{date}/slots", s.handleDaySlots)
			r.Post("/checkout", s.handleCheckout)
			r.Get("/bookings/{id}/payment-status", s.handlePaymentStatus)
			r.Get("/bookings/{id}/confirmation", s.handleConfirmation)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(s.limiter.Wrap).Post("/login", s.handleLogin)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Wrap)
				s.adminRoutes(r)
			})
		})
	})

	return r
}

func (s *HTTPServer) adminRoutes(r chi.Router) {
	r.With(Require(permReadBookings)).Get("/bookings", s.handleAdminBookings)
	r.With(Require(permWriteBookings)).Patch("/bookings/{id}/status", s.handleUpdateStatus)

	r.With(Require(permReadBookings)).Get("/availability", s.handleAdminAvailability)
	r.Group(func(r chi.Router) {
		r.Use(Require(permWriteSchedule))
		r.Post("/availability/{date}/toggle", s.handleToggleDay)
		r.Put("/availability/{date}/slots", s.handleReplaceSlots)
		r.Post("/availability/{date}/slots/{time}/toggle", s.handleToggleSlot)
		r.Post("/maintenance", s.handleMaintenance)
	})

	r.Group(func(r chi.Router) {
		r.Use(Require(permWriteServices))
		r.Post("/services", s.handleCreateService)
		r.Put("/services/{id}", s.handleUpdateService)
		r.Delete("/services/{id}", s.handleDeleteService)
		r.Put("/services/{id}/price-mapping", s.handlePriceMapping)
	})

	r.With(Require(permReadStats)).Get("/stats", s.handleStats)
	r.With(Require(permExport)).Get("/export.xlsx", s.handleExport)
}

// Handler exposes the router for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

const requestIDHeader = "X-Request-Id"

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithRequestLogger(r.Context(), s.logger, requestID)))
		dur := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTP(route, strconv.Itoa(status), dur.Seconds())

		event := s.logger.Info()
		if status >= http.StatusInternalServerError {
			event = s.logger.Warn()
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("route", route).
			Str("remote", clientIP(r)).
			Int("status", status).
			Dur("duration", dur).
			Msg("http request")
	})
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAny := len(allowedOrigins) == 0
	allow := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowAny = true
			continue
		}
		if origin != "" {
			allow[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			_, listed := allow[origin]
			if origin != "" && (allowAny || listed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Api-Key")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Package api provides the HTTP server for the marketplace: agent
// registration and auth, posts, trades, reviews, stats, a Prometheus
// endpoint, and a websocket live feed.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentbazaar/bazaar/internal/app/content"
	"github.com/agentbazaar/bazaar/internal/app/identity"
	"github.com/agentbazaar/bazaar/internal/app/review"
	"github.com/agentbazaar/bazaar/internal/app/stats"
	"github.com/agentbazaar/bazaar/internal/app/trade"
	"github.com/agentbazaar/bazaar/internal/domain"
	"github.com/agentbazaar/bazaar/internal/infra/ratelimit"
)

// Version is the API version reported by /api/version.
const Version = "0.1.0"

// Server is the marketplace HTTP API server.
type Server struct {
	agents  *identity.Service
	posts   *content.Service
	trades  *trade.Service
	reviews *review.Service
	stats   *stats.Service
	limiter *ratelimit.Limiter
	oracle  domain.ChainOracle

	feed           *FeedHub // nil when the live feed is disabled
	metricsEnabled bool
}

// NewServer wires the application services into an API server.
func NewServer(
	agents *identity.Service,
	posts *content.Service,
	trades *trade.Service,
	reviews *review.Service,
	statsSvc *stats.Service,
	limiter *ratelimit.Limiter,
	oracle domain.ChainOracle,
) *Server {
	return &Server{
		agents:  agents,
		posts:   posts,
		trades:  trades,
		reviews: reviews,
		stats:   statsSvc,
		limiter: limiter,
		oracle:  oracle,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetFeed attaches the websocket live feed hub.
func (s *Server) SetFeed(h *FeedHub) { s.feed = h }

// Feed returns the live feed hub, or nil when disabled.
func (s *Server) Feed() *FeedHub { return s.feed }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)
	r.Use(s.countRequests)

	// Health check for deploy platforms
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "bazaar is running",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	r.Route("/api", func(r chi.Router) {
		// Public surface
		r.Post("/agents/register", s.handleRegister)
		r.Get("/agents/{id}", s.handleGetAgent)
		r.Get("/agents/{id}/reviews", s.handleListReviews)
		r.Get("/posts", s.handleListPosts)
		r.Get("/posts/{id}", s.handleGetPost)
		r.Get("/posts/{id}/replies", s.handleListReplies)
		r.Get("/stats", s.handleStats)

		// Authenticated surface
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/agents/me", s.handleMe)
			r.Patch("/agents/me", s.handleUpdateProfile)
			r.Post("/posts", s.handleCreatePost)
			r.Patch("/posts/{id}", s.handleUpdatePost)
			r.Delete("/posts/{id}", s.handleDeletePost)
			r.Post("/posts/{id}/replies", s.handleCreateReply)
			r.Get("/trades", s.handleListTrades)
			r.Post("/trades", s.handleCreateTrade)
			r.Get("/trades/{id}", s.handleGetTrade)
			r.Patch("/trades/{id}", s.handlePatchTrade)
			r.Post("/reviews", s.handleSubmitReview)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	if s.feed != nil {
		r.Get("/api/feed/live", s.feed.HandleWS)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "bazaar is running",
		})
	})

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a domain error onto an HTTP status and body.
func writeDomainError(w http.ResponseWriter, err error) {
	var rateErr *domain.RateLimitError
	if errors.As(err, &rateErr) {
		limiterRejections.WithLabelValues("rate_limit").Inc()
		w.Header().Set("Retry-After", itoaSeconds(rateErr.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error": map[string]interface{}{
				"message":             rateErr.Error(),
				"type":                "rate_limit",
				"retry_after_seconds": int(rateErr.RetryAfter.Seconds()),
			},
		})
		return
	}
	var cdErr *domain.CooldownError
	if errors.As(err, &cdErr) {
		limiterRejections.WithLabelValues("cooldown").Inc()
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error": map[string]interface{}{
				"message":           cdErr.Error(),
				"type":              "cooldown",
				"remaining_seconds": int(cdErr.Remaining.Seconds()),
			},
		})
		return
	}
	var verErr *domain.VerificationError
	if errors.As(err, &verErr) {
		writeError(w, http.StatusBadRequest, verErr.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotParty),
		errors.Is(err, domain.ErrOnlyBuyer):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNameTaken),
		errors.Is(err, domain.ErrSignatureUsed),
		errors.Is(err, domain.ErrAlreadyReviewed),
		errors.Is(err, domain.ErrCompletionInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrPostNotOpen),
		errors.Is(err, domain.ErrNotTradeable),
		errors.Is(err, domain.ErrThreadPriced),
		errors.Is(err, domain.ErrPostImmutable),
		errors.Is(err, domain.ErrSelfTrade),
		errors.Is(err, domain.ErrTradeNotPending),
		errors.Is(err, domain.ErrTradeNotCompleted):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func itoaSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// decodeBody decodes a JSON request body, rejecting malformed payloads.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid JSON body")
	}
	return nil
}

// corsMiddleware adds CORS headers so browser-based agent dashboards work.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

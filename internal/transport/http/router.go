// Package http fronts the primary service: the three auth endpoints the
// clients and the fallback protocol agree on, plus the websocket watch
// feed, health, JWKS and metrics.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"novachat/internal/domain"
	"novachat/internal/jwtsigner"
	"novachat/internal/observability/metrics"
	obsmw "novachat/internal/observability/middleware"
	"novachat/internal/service"
	"novachat/internal/store"
)

const sessionTokenHeader = "X-Session-Token"

type handler struct {
	svc        *service.Service
	store      store.Adapter
	signer     *jwtsigner.Signer
	log        *slog.Logger
	sessionTTL time.Duration
}

type Options struct {
	Signer      *jwtsigner.Signer
	SessionTTL  time.Duration
	CORSOrigins []string
	RateLimit   int // requests per minute per IP on /api, 0 disables
}

func NewRouter(svc *service.Service, st store.Adapter, log *slog.Logger, opts Options) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	h := &handler{
		svc:        svc,
		store:      st,
		signer:     opts.Signer,
		log:        log,
		sessionTTL: opts.SessionTTL,
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
		}
		r.Post("/check-user", h.handleCheckUser)
		r.Post("/login", h.handleLogin)
		r.Post("/register", h.handleRegister)
		r.Get("/watch", h.handleWatch)
		if h.signer != nil {
			r.Get("/jwks", h.handleJWKS)
		}
	})

	return r
}

func (h *handler) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "Username required")
		return
	}
	exists, err := h.svc.CheckUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Username required")
			return
		}
		h.serverError(w, r, "check-user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	id, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Username and password required")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, domain.ErrInvalidCredential):
			writeError(w, http.StatusUnauthorized, "Invalid password")
		default:
			h.serverError(w, r, "login", err)
		}
		metrics.AuthLoginsTotal.WithLabelValues("failure").Inc()
		return
	}
	h.attachSessionToken(w, id.Username)
	metrics.AuthLoginsTotal.WithLabelValues("success").Inc()
	h.log.Info("login", "username", id.Username, "request_id", obsmw.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, id)
}

func (h *handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Avatar   string `json:"avatar"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	id, err := h.svc.Register(r.Context(), req.Username, req.Password, req.Avatar)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "Username and password required")
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "Username already exists")
		default:
			h.serverError(w, r, "register", err)
		}
		metrics.AuthRegistrationsTotal.WithLabelValues("failure").Inc()
		return
	}
	h.attachSessionToken(w, id.Username)
	metrics.AuthRegistrationsTotal.WithLabelValues("success").Inc()
	h.log.Info("registered", "username", id.Username, "request_id", obsmw.RequestIDFromContext(r.Context()))
	writeJSON(w, http.StatusCreated, id)
}

func (h *handler) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []any{h.signer.PublicJWK()},
	})
}

func (h *handler) attachSessionToken(w http.ResponseWriter, username string) {
	if h.signer == nil {
		return
	}
	token, err := h.signer.SignSession(username, h.sessionTTL)
	if err != nil {
		h.log.Error("session token signing failed", "username", username, "error", err)
		return
	}
	w.Header().Set(sessionTokenHeader, token)
}

func (h *handler) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.Error("request failed", "op", op, "error", err,
		"request_id", obsmw.RequestIDFromContext(r.Context()),
		"trace_id", obsmw.TraceIDFromContext(r.Context()))
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

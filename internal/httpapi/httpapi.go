package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/service"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *slog.Logger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger.With("component", "httpapi"),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// clientKey identifies the caller for rate limiting. middleware.RealIP has
// already rewritten RemoteAddr when a proxy header is present.
func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(limitBody)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleAdmin, domain.RolePharmacist))

			r.Route("/sales", func(r chi.Router) {
				r.Post("/", a.handleCreateSale)
				r.Get("/", a.handleListSales)
				r.Get("/{id}", a.handleGetSale)
				r.With(a.requireAuth(domain.RoleAdmin)).Delete("/{id}", a.handleDeleteSale)
			})
			r.Get("/inventory", a.handleListInventory)
		})

		r.With(a.requireAuth(domain.RoleAdmin)).Get("/audit-logs", a.handleAuditLogs)
	})

	return r
}

// requireAuth admits a request carrying a valid bearer token whose role is
// one of roles, and places the operator on the request context.
func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		w.Header().Set(middleware.RequestIDHeader, reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(startedAt),
			"request_id", reqID,
		)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSaleFilter(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	page, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	receipt, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleDeleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	if err := a.service.DeleteSale(r.Context(), id); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListInventory(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInventoryFilter(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	page, err := a.service.ListInventory(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, &domain.ValidationError{Field: "id", Reason: "must be a valid id"}
	}
	return id, nil
}

func parseSaleFilter(r *http.Request) (domain.SaleFilter, error) {
	q := r.URL.Query()
	filter := domain.SaleFilter{
		Status:    domain.SaleStatus(strings.TrimSpace(q.Get("status"))),
		SortBy:    strings.TrimSpace(q.Get("sortBy")),
		SortOrder: strings.ToLower(strings.TrimSpace(q.Get("sortOrder"))),
	}

	var err error
	if filter.From, err = parseTime("from", q.Get("from"), false); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime("to", q.Get("to"), true); err != nil {
		return filter, err
	}
	if raw := strings.TrimSpace(q.Get("customerId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, &domain.ValidationError{Field: "customerId", Reason: "must be a valid id"}
		}
		filter.CustomerID = &id
	}
	if filter.Page, err = parseInt("page", q.Get("page")); err != nil {
		return filter, err
	}
	if filter.Limit, err = parseInt("limit", q.Get("limit")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseInventoryFilter(r *http.Request) (domain.InventoryFilter, error) {
	q := r.URL.Query()
	var filter domain.InventoryFilter

	var err error
	if filter.LowStock, err = parseBool("lowStock", q.Get("lowStock")); err != nil {
		return filter, err
	}
	if filter.ExpiringSoon, err = parseBool("expiringSoon", q.Get("expiringSoon")); err != nil {
		return filter, err
	}
	if raw := strings.TrimSpace(q.Get("productId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, &domain.ValidationError{Field: "productId", Reason: "must be a valid id"}
		}
		filter.ProductID = &id
	}
	if filter.Page, err = parseInt("page", q.Get("page")); err != nil {
		return filter, err
	}
	if filter.Limit, err = parseInt("limit", q.Get("limit")); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseTime accepts RFC 3339 or a bare YYYY-MM-DD date. A bare date used as
// an upper bound covers the whole day.
func parseTime(field, raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "must be RFC 3339 or YYYY-MM-DD"}
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}

func parseInt(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &domain.ValidationError{Field: field, Reason: "must be a positive integer"}
	}
	return n, nil
}

func parseBool(field, raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &domain.ValidationError{Field: field, Reason: "must be true or false"}
	}
	return b, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// errorBody is the JSON shape of every failed response. Sale failures also
// carry a machine-readable code and, where it applies, the offending detail.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Field     string `json:"field,omitempty"`
	Entity    string `json:"entity,omitempty"`
	ID        string `json:"id,omitempty"`
	Available *int   `json:"available,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Product   string `json:"product,omitempty"`
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *domain.ValidationError
		notFound     *domain.NotFoundError
		insufficient *domain.InsufficientStockError
		prescription *domain.PrescriptionRequiredError
	)

	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:     err.Error(),
			Code:      "insufficient_stock",
			Entity:    insufficient.Entity,
			ID:        insufficient.ID,
			Available: &insufficient.Available,
			Requested: &insufficient.Requested,
		})
	case errors.As(err, &prescription):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   err.Error(),
			Code:    "prescription_required",
			ID:      prescription.ProductID,
			Product: prescription.ProductName,
		})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: err.Error(),
			Code:  "validation_error",
			Field: validation.Field,
		})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{
			Error:  err.Error(),
			Code:   "not_found",
			Entity: notFound.Entity,
			ID:     notFound.ID,
		})
	default:
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		code := "internal_error"
		if errors.Is(err, domain.ErrTransaction) {
			code = "transaction_failed"
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", Code: code})
	}
}

// writeError is for request-level failures (auth, decoding, routing). Service
// failures go through writeServiceError.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

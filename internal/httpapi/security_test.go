package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apotekin/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestCORSPreflight(t *testing.T) {
	h := newTestAPI(t).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Less(t, rec.Code, 300)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
}

func TestLoginRateLimitReturns429(t *testing.T) {
	h := newTestAPI(t).Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
		} else {
			require.Equal(t, http.StatusTooManyRequests, rec.Code, "attempt %d", i+1)
		}
	}

	// Another client is not affected.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.RemoteAddr = "127.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	h := newTestAPI(t).Handler()
	veryLong := strings.Repeat("a", maxBodyBytes+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutesRejectMissingOrForgedTokens(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/sales", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	}).SignedString([]byte("some-other-secret-some-other-secret"))
	require.NoError(t, err)
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "admin", Issuer: tokenIssuer},
		Role:             domain.RoleAdmin,
	}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales", unsigned, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := api.auth.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	rec = doJSON(t, h, http.MethodGet, "/api/v1/sales", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditLogsRequireAdmin(t *testing.T) {
	h := newTestAPI(t).Handler()

	pharmacist := login(t, h, "pharmacist", "pharmacist123")
	rec := doJSON(t, h, http.MethodGet, "/api/v1/audit-logs", pharmacist, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := login(t, h, "admin", "admin123")
	rec = doJSON(t, h, http.MethodGet, "/api/v1/audit-logs?limit=5", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestAPI(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/v1/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/healthz", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestParsePositiveLimitCaps(t *testing.T) {
	assert.Equal(t, 200, parsePositiveLimit("9999", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("", 50, 200))
	assert.Equal(t, 50, parsePositiveLimit("invalid", 50, 200))
}

func TestClientKeyStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "10.1.2.3:4567"
	assert.Equal(t, "10.1.2.3", clientKey(req))

	req.RemoteAddr = "[::1]:80"
	assert.Equal(t, "::1", clientKey(req))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", clientKey(req))
}

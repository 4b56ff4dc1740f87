package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdstack/clinic-platform/internal/session"
)

func sessionProbe(t *testing.T) (http.Handler, *session.Session, *bool) {
	t.Helper()
	var got session.Session
	var ok bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = session.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return h, &got, &ok
}

func signToken(t *testing.T, secret string, claims SessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRoleSessionJWT(t *testing.T) {
	probe, got, ok := sessionProbe(t)
	handler := RoleSession("secret")(probe)

	token := signToken(t, "secret", SessionClaims{
		Role: "clinician",
		Name: "Dr. Iyer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dr-iyer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, *ok)
	assert.Equal(t, session.RoleClinician, got.Role)
	assert.Equal(t, "dr-iyer", got.ActorID)
	assert.Equal(t, "Dr. Iyer", got.ActorName)
}

func TestRoleSessionRejectsBadTokens(t *testing.T) {
	cases := map[string]func(t *testing.T) string{
		"wrong secret": func(t *testing.T) string {
			return signToken(t, "other", SessionClaims{Role: "admin"})
		},
		"unknown role": func(t *testing.T) string {
			return signToken(t, "secret", SessionClaims{Role: "superuser"})
		},
		"expired": func(t *testing.T) string {
			return signToken(t, "secret", SessionClaims{
				Role: "admin",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				},
			})
		},
	}
	for name, mkToken := range cases {
		t.Run(name, func(t *testing.T) {
			probe, _, ok := sessionProbe(t)
			handler := RoleSession("secret")(probe)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+mkToken(t))
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.False(t, *ok, "no session should be attached")
		})
	}
}

func TestRoleSessionDevHeader(t *testing.T) {
	probe, got, ok := sessionProbe(t)
	handler := RoleSession("")(probe)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Session", "frontdesk:fd-1:Desk One")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, *ok)
	assert.Equal(t, session.RoleFrontDesk, got.Role)
	assert.Equal(t, "fd-1", got.ActorID)
	assert.Equal(t, "Desk One", got.ActorName)

	probe, _, ok = sessionProbe(t)
	handler = RoleSession("")(probe)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Session", "wizard:x")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, *ok)
}

func TestRoleSessionDevHeaderIgnoredWithSecret(t *testing.T) {
	probe, _, ok := sessionProbe(t)
	handler := RoleSession("secret")(probe)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Session", "admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, *ok, "plain header must not work once JWT auth is on")
}

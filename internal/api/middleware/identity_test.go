package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticator_Headers(t *testing.T) {
	auth := NewAuthenticator("")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "buyer-1")
	req.Header.Set(HeaderUserRole, "Buyer")
	identity, err := auth.Identify(req)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ID: "buyer-1", Role: domain.RoleBuyer}, identity)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "someone")
	req.Header.Set(HeaderUserRole, "admin")
	identity, err = auth.Identify(req)
	require.NoError(t, err)
	assert.Equal(t, domain.Role(""), identity.Role)

	identity, err = auth.Identify(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.True(t, identity.IsZero())
}

func TestAuthenticator_Bearer(t *testing.T) {
	auth := NewAuthenticator(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name    string
		token   string
		want    domain.Identity
		wantErr bool
	}{
		{
			name:  "valid seller",
			token: signToken(t, testSecret, jwt.MapClaims{"sub": "seller-1", "role": "seller", "exp": exp}),
			want:  domain.Identity{ID: "seller-1", Role: domain.RoleSeller},
		},
		{
			name:    "wrong secret",
			token:   signToken(t, "other", jwt.MapClaims{"sub": "seller-1", "role": "seller", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "expired",
			token:   signToken(t, testSecret, jwt.MapClaims{"sub": "seller-1", "role": "seller", "exp": time.Now().Add(-time.Hour).Unix()}),
			wantErr: true,
		},
		{
			name:    "no subject",
			token:   signToken(t, testSecret, jwt.MapClaims{"role": "buyer", "exp": exp}),
			wantErr: true,
		},
		{
			name:    "garbage",
			token:   "not.a.token",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			identity, err := auth.Identify(req)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, identity)
		})
	}

	t.Run("headers are ignored when tokens are required", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderUserID, "buyer-1")
		req.Header.Set(HeaderUserRole, "buyer")
		identity, err := auth.Identify(req)
		require.NoError(t, err)
		assert.True(t, identity.IsZero())
	})

	t.Run("query token for websocket upgrades", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "buyer-9", "role": "buyer", "exp": exp})
		req := httptest.NewRequest(http.MethodGet, "/ws/auction/a1?token="+token, nil)
		identity, err := auth.Identify(req)
		require.NoError(t, err)
		assert.Equal(t, "buyer-9", identity.ID)
	})
}

func TestEchoIdentity(t *testing.T) {
	e := echo.New()
	e.Use(EchoIdentity(NewAuthenticator(testSecret), logger.NewNop()))
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, domain.IdentityFromContext(c.Request().Context()).ID)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"sub": "buyer-1", "role": "buyer"}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buyer-1", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPIdentityAndCORS(t *testing.T) {
	var seen domain.Identity
	handler := CORS(HTTPIdentity(NewAuthenticator(""), logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.IdentityFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/ws/auction/a1", nil)
	req.Header.Set(HeaderUserID, "buyer-1")
	req.Header.Set(HeaderUserRole, "buyer")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "buyer-1", seen.ID)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	preflight := httptest.NewRecorder()
	handler.ServeHTTP(preflight, httptest.NewRequest(http.MethodOptions, "/ws/auction/a1", nil))
	assert.Equal(t, http.StatusOK, preflight.Code)
}

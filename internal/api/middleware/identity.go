package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator turns a request into a domain.Identity. With a secret it
// trusts only HS256 bearer tokens carrying "sub" and "role" claims;
// without one it trusts the gateway headers.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(jwtSecret string) *Authenticator {
	a := &Authenticator{}
	if jwtSecret != "" {
		a.secret = []byte(jwtSecret)
	}
	return a
}

// Identify returns the zero Identity for anonymous requests and
// ErrUnauthenticated for credentials that do not verify.
func (a *Authenticator) Identify(r *http.Request) (domain.Identity, error) {
	if a.secret == nil {
		return identityFrom(r.Header.Get(HeaderUserID), r.Header.Get(HeaderUserRole)), nil
	}

	token := bearerToken(r)
	if token == "" {
		return domain.Identity{}, nil
	}
	claims, err := a.validateToken(token)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return identityFrom(sub, role), nil
}

func (a *Authenticator) validateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter that browsers use for websocket upgrades.
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return r.URL.Query().Get("token")
}

// identityFrom drops unknown roles, leaving an identity the policy
// admits to reads only.
func identityFrom(id, role string) domain.Identity {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Identity{}
	}
	parsed, _ := domain.ParseRole(strings.ToLower(strings.TrimSpace(role)))
	return domain.Identity{ID: id, Role: parsed}
}

// EchoIdentity attaches the caller to the request context.
func EchoIdentity(auth *Authenticator, log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			identity, err := auth.Identify(req)
			if err != nil {
				log.Warn("Rejected credentials", "path", req.URL.Path, "error", err)
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			}
			c.SetRequest(req.WithContext(domain.ContextWithIdentity(req.Context(), identity)))
			return next(c)
		}
	}
}

// HTTPIdentity is EchoIdentity for net/http routers.
func HTTPIdentity(auth *Authenticator, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.Identify(r)
			if err != nil {
				log.Warn("Rejected credentials", "path", r.URL.Path, "error", err)
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.ContextWithIdentity(r.Context(), identity)))
		})
	}
}

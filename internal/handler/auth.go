package handler

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const identityKey contextKey = "identity"

const bearerPrefix = "Bearer "

// Identity is the authenticated caller extracted from the JWT.
type Identity struct {
	UserID string
	Email  string
	Roles  []string
}

// IsAdmin reports whether the caller carries the admin role.
func (id Identity) IsAdmin() bool {
	return slices.Contains(id.Roles, "admin")
}

// AuthConfig holds JWT verification settings.
type AuthConfig struct {
	// Secret is the HMAC signing key shared with the auth service.
	Secret string
	// Issuer must match the token's iss claim when set.
	Issuer string
}

// Authenticator validates bearer tokens and injects the caller's Identity
// into the request context.
type Authenticator struct {
	cfg AuthConfig
}

// NewAuthenticator creates an Authenticator with the given settings.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

type authClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.authenticate(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated callers without the admin role. Must run
// after RequireAuth.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r.Context())
		if !ok || !id.IsAdmin() {
			writeError(w, r, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return Identity{}, errors.New("missing bearer token")
	}
	tokenString := strings.TrimPrefix(header, bearerPrefix)

	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.cfg.Secret), nil
	})
	if err != nil {
		return Identity{}, errors.Wrap(err, "parse token")
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}
	if a.cfg.Issuer != "" && claims.Issuer != a.cfg.Issuer {
		return Identity{}, errors.New("invalid issuer")
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("missing subject")
	}

	return Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

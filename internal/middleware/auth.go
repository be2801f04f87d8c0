package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type AuthMode string

const (
	AuthAPIKey AuthMode = "apikey"
	AuthJWT    AuthMode = "jwt"
)

// Identity is the authenticated caller. ID is the stable owner key; Name is for display.
type Identity struct {
	ID   string
	Name string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.ID != ""
}

type AuthConfig struct {
	Mode AuthMode
	// APIKeys maps a key to the user id it authenticates.
	APIKeys   map[string]string
	JWTSecret string
	JWTIssuer string
	SkipPaths []string
}

// Claims are the JWT claims this service issues and accepts.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type authErr struct {
	Error string `json:"error"`
}

func AuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	// normalize skip path set
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			switch cfg.Mode {
			case AuthAPIKey:
				// Header: X-API-Key: <key>
				if id, ok := lookupAPIKey(cfg.APIKeys, r.Header.Get("X-API-Key")); ok {
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
				Unauthorized(w, `ApiKey realm="tasks", header="X-API-Key"`)

			case AuthJWT:
				// Header: Authorization: Bearer <token>
				authz := r.Header.Get("Authorization")
				token := strings.TrimPrefix(authz, "Bearer ")
				if token != authz {
					if id, err := ParseToken(strings.TrimSpace(token), cfg.JWTSecret, cfg.JWTIssuer); err == nil {
						next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
						return
					}
				}
				Unauthorized(w, `Bearer realm="tasks"`)

			default:
				Unauthorized(w, "")
			}
		})
	}
}

// ParseToken verifies an HS256 token and returns the identity in its subject.
func ParseToken(token, secret, issuer string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, err
	}
	if claims.Subject == "" {
		return Identity{}, errors.New("token has no subject")
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return Identity{ID: claims.Subject, Name: name}, nil
}

// IssueToken signs an HS256 token for id that expires after ttl.
func IssueToken(id Identity, tokenID, secret, issuer string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	claims := Claims{
		Name: id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func lookupAPIKey(keys map[string]string, got string) (Identity, bool) {
	if got == "" {
		return Identity{}, false
	}
	// no early exit
	var match string
	for key, user := range keys {
		if constantTimeEq(got, key) {
			match = user
		}
	}
	if match == "" {
		return Identity{}, false
	}
	return Identity{ID: match, Name: match}, true
}

func constantTimeEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Unauthorized writes the 401 body shared by the middleware and handlers.
func Unauthorized(w http.ResponseWriter, challenge string) {
	w.Header().Set("Content-Type", "application/json")
	if challenge != "" {
		w.Header().Set("WWW-Authenticate", challenge)
	}
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(authErr{Error: "unauthorized"})
}

package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appmw "github.com/s1natex/owned-tasks-api/internal/middleware"
)

// whoami echoes the identity the middleware attached.
func whoami(w http.ResponseWriter, r *http.Request) {
	id, ok := appmw.IdentityFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"id": id.ID, "name": id.Name})
}

func TestAuth_APIKey(t *testing.T) {
	r := chi.NewRouter()
	r.Use(appmw.AuthMiddleware(appmw.AuthConfig{
		Mode:      appmw.AuthAPIKey,
		APIKeys:   map[string]string{"secret123": "alice", "secret456": "bob"},
		SkipPaths: []string{"/health"},
	}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/tasks", whoami)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/tasks", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected a WWW-Authenticate challenge")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("X-API-Key", "wrong")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/tasks", nil)
	req.Header.Set("X-API-Key", "secret456")
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
	var got map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["id"] != "bob" {
		t.Fatalf("expected key to resolve to bob, got %v", got)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/health", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("skip path should be open, got %d", rec.Code)
	}
}

func TestAuth_JWT(t *testing.T) {
	const secret, issuer = "test-secret", "tasks-api"

	r := chi.NewRouter()
	r.Use(appmw.AuthMiddleware(appmw.AuthConfig{
		Mode:      appmw.AuthJWT,
		JWTSecret: secret,
		JWTIssuer: issuer,
	}))
	r.Get("/tasks", whoami)

	call := func(authz string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/tasks", nil)
		if authz != "" {
			req.Header.Set("Authorization", authz)
		}
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := call(""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	now := time.Now()
	tok, err := appmw.IssueToken(appmw.Identity{ID: "u1", Name: "Alice"}, "jti-1", secret, issuer, time.Hour, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := call("Bearer " + tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer, got %d", rec.Code)
	}
	var got map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got["id"] != "u1" || got["name"] != "Alice" {
		t.Fatalf("unexpected identity %v", got)
	}

	if rec := call(tok); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token without Bearer prefix should be rejected, got %d", rec.Code)
	}

	forged, _ := appmw.IssueToken(appmw.Identity{ID: "u1"}, "jti-2", "other-secret", issuer, time.Hour, now)
	if rec := call("Bearer " + forged); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong signature should be rejected, got %d", rec.Code)
	}

	wrongIss, _ := appmw.IssueToken(appmw.Identity{ID: "u1"}, "jti-3", secret, "someone-else", time.Hour, now)
	if rec := call("Bearer " + wrongIss); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong issuer should be rejected, got %d", rec.Code)
	}

	expired, _ := appmw.IssueToken(appmw.Identity{ID: "u1"}, "jti-4", secret, issuer, time.Minute, now.Add(-time.Hour))
	if rec := call("Bearer " + expired); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token should be rejected, got %d", rec.Code)
	}
}

func TestParseToken_NameDefaultsToSubject(t *testing.T) {
	tok, err := appmw.IssueToken(appmw.Identity{ID: "u7"}, "jti", "s", "iss", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := appmw.ParseToken(tok, "s", "iss")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.ID != "u7" || id.Name != "u7" {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := appmw.IssueToken(appmw.Identity{ID: "u7"}, "jti", "", "iss", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestAuth_UnknownModeRejects(t *testing.T) {
	r := chi.NewRouter()
	r.Use(appmw.AuthMiddleware(appmw.AuthConfig{Mode: "basic"}))
	r.Get("/tasks", whoami)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/tasks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

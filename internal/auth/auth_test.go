package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestPasswordHashVerify(t *testing.T) {
	params := Argon2Params{Memory: 64 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	hash, err := HashPassword("s3cret", params)
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	ok, err := VerifyPassword("s3cret", hash)
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}

	ok, err = VerifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected password to fail")
	}
}

func TestMintAndParseJWT(t *testing.T) {
	userID := uuid.New()
	now := time.Now()

	signed, expiresAt, err := MintJWT(userID, "alice", []byte("secret"), time.Hour, now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got, want := expiresAt.Unix(), now.Add(time.Hour).Unix(); got != want {
		t.Fatalf("expiresAt = %d, want %d", got, want)
	}

	claims, err := ParseJWT(signed, []byte("secret"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != userID.String() {
		t.Fatalf("subject = %q, want %q", claims.Subject, userID)
	}
	if claims.Name != "alice" {
		t.Fatalf("name = %q", claims.Name)
	}

	if _, err := ParseJWT(signed, []byte("other")); err != ErrInvalidToken {
		t.Fatalf("wrong secret: got %v", err)
	}
}

func TestParseJWTRejectsExpired(t *testing.T) {
	signed, _, err := MintJWT(uuid.New(), "", []byte("secret"), time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseJWT(signed, []byte("secret")); err != ErrInvalidToken {
		t.Fatalf("expired token: got %v", err)
	}
}

func TestExtractBearer(t *testing.T) {
	if got := ExtractBearer("Bearer abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractBearer("bearer abc"); got != "abc" {
		t.Fatalf("case-insensitive scheme: got %q", got)
	}
	if got := ExtractBearer("Basic abc"); got != "" {
		t.Fatalf("wrong scheme: got %q", got)
	}
	if got := ExtractBearer(""); got != "" {
		t.Fatalf("empty header: got %q", got)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware([]byte("secret")))
	r.GET("/me", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	userID := uuid.New()
	var seen uuid.UUID

	r := gin.New()
	r.Use(Middleware([]byte("secret")))
	r.GET("/me", func(c *gin.Context) {
		id, ok := UserIDFromContext(c)
		if !ok {
			c.JSON(500, gin.H{"ok": false})
			return
		}
		seen = id
		c.JSON(200, gin.H{"ok": true})
	})

	signed, _, err := MintJWT(userID, "alice", []byte("secret"), time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if seen != userID {
		t.Fatalf("context user = %s, want %s", seen, userID)
	}
}

func TestMiddlewareRejectsGarbageToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware([]byte("secret")))
	r.GET("/me", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

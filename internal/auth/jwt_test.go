package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap/zaptest"
)

func newAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(Config{Secret: "test-secret", ClientSecret: "client-secret"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create authenticator: %v", err)
	}
	return a
}

func TestNewAuthenticator(t *testing.T) {
	if _, err := NewAuthenticator(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error without secret")
	}

	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("JWT_TTL", "1h")
	config := NewConfigFromEnv()
	a, err := NewAuthenticator(config, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create authenticator: %v", err)
	}
	if a.ttl != time.Hour {
		t.Errorf("Expected ttl 1h, got %s", a.ttl)
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	a := newAuthenticator(t)

	token, expiresAt, err := a.GenerateToken("studio")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("Expected expiry in the future, got %s", expiresAt)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ClientID != "studio" || claims.Subject != "studio" {
		t.Errorf("Unexpected claims %+v", claims)
	}

	other, _ := NewAuthenticator(Config{Secret: "other"}, zaptest.NewLogger(t))
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Expected token signed with another secret to be rejected")
	}
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	a := newAuthenticator(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{
		ClientID: "x",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ValidateToken(signed); err == nil {
		t.Error("Expected HS512 token to be rejected")
	}
}

func TestIssueToken(t *testing.T) {
	a := newAuthenticator(t)

	if _, _, err := a.IssueToken("studio", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := a.IssueToken("", "client-secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for empty client, got %v", err)
	}
	if _, _, err := a.IssueToken("studio", "client-secret"); err != nil {
		t.Errorf("Expected token, got %v", err)
	}

	disabled, _ := NewAuthenticator(Config{Secret: "s"}, zaptest.NewLogger(t))
	if _, _, err := disabled.IssueToken("studio", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected disabled token endpoint to refuse, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	a := newAuthenticator(t)
	token, _, _ := a.GenerateToken("studio")

	e := echo.New()
	e.GET("/private", func(c echo.Context) error {
		return c.String(http.StatusOK, ClaimsFromContext(c).ClientID)
	}, a.Middleware())

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if tt.status == http.StatusOK && rec.Body.String() != "studio" {
				t.Errorf("Expected client id in handler, got %q", rec.Body.String())
			}
		})
	}
}

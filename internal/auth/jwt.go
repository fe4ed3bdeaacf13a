package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultTTL = 24 * time.Hour
	issuer     = "sandiwara"

	// ClaimsKey is the echo context key holding validated *Claims
	ClaimsKey = "claims"
)

var (
	ErrMissingToken       = errors.New("missing bearer token")
	ErrInvalidCredentials = errors.New("invalid client credentials")
)

// Config holds the token signing settings
type Config struct {
	Secret       string        // Required: HS256 signing key
	ClientSecret string        // Optional: shared secret for the token endpoint; empty disables it
	TTL          time.Duration // Optional: token lifetime (default: 24h)
}

// NewConfigFromEnv reads JWT_SECRET, AUTH_CLIENT_SECRET and JWT_TTL
func NewConfigFromEnv() Config {
	config := Config{
		Secret:       os.Getenv("JWT_SECRET"),
		ClientSecret: os.Getenv("AUTH_CLIENT_SECRET"),
	}
	if ttlStr := os.Getenv("JWT_TTL"); ttlStr != "" {
		if ttl, err := time.ParseDuration(ttlStr); err == nil && ttl > 0 {
			config.TTL = ttl
		}
	}
	return config
}

func ValidateConfig(config Config) error {
	if config.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if config.TTL < 0 {
		return fmt.Errorf("token ttl must be positive, got %s", config.TTL)
	}
	return nil
}

// Claims represents the claims in our JWT token
type Claims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks API bearer tokens
type Authenticator struct {
	secret       []byte
	clientSecret []byte
	ttl          time.Duration
	logger       *zap.Logger
}

func NewAuthenticator(config Config, logger *zap.Logger) (*Authenticator, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	ttl := config.TTL
	if ttl == 0 {
		ttl = defaultTTL
		logger.Info("Using default token TTL", zap.Duration("ttl", ttl))
	}
	if config.ClientSecret == "" {
		logger.Warn("AUTH_CLIENT_SECRET not set, token endpoint disabled")
	}

	return &Authenticator{
		secret:       []byte(config.Secret),
		clientSecret: []byte(config.ClientSecret),
		ttl:          ttl,
		logger:       logger,
	}, nil
}

// GenerateToken signs a token for clientID and returns it with its expiry
func (a *Authenticator) GenerateToken(clientID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.ttl)
	claims := &Claims{
		ClientID: clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueToken checks the client secret and signs a token for clientID
func (a *Authenticator) IssueToken(clientID, clientSecret string) (string, time.Time, error) {
	if len(a.clientSecret) == 0 || clientID == "" ||
		subtle.ConstantTimeCompare(a.clientSecret, []byte(clientSecret)) != 1 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.GenerateToken(clientID)
}

// ValidateToken validates a JWT token and returns the claims
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// Middleware rejects requests without a valid "Authorization: Bearer" token and stores
// the claims under ClaimsKey.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				a.logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
				return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingToken.Error())
			}

			claims, err := a.ValidateToken(token)
			if err != nil {
				a.logger.Warn("Request rejected: invalid token", zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// ClaimsFromContext returns the claims stored by Middleware, or nil
func ClaimsFromContext(c echo.Context) *Claims {
	claims, _ := c.Get(ClaimsKey).(*Claims)
	return claims
}

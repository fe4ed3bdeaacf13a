package api

import (
	"time"

	"github.com/satriahrh/sandiwara/domain/entities"
)

// TokenRequest represents the request payload for client authentication
type TokenRequest struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
}

// TokenResponse represents the response payload for client authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SynthesizeRequest is the body of POST /api/v1/synthesize
type SynthesizeRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

// NarrateRequest is the body of POST /api/v1/narrate
type NarrateRequest struct {
	Title string          `json:"title"`
	Lines []entities.Line `json:"lines"`
}

// HistoryResponse lists synthesis records, newest first
type HistoryResponse struct {
	Records []*entities.SynthesisRecord `json:"records"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

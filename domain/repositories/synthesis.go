package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/sandiwara/domain/entities"
)

// ErrRecordNotFound is returned when no synthesis record matches
var ErrRecordNotFound = errors.New("synthesis record not found")

// SynthesisRepository defines data access methods for synthesis history
type SynthesisRepository interface {
	Create(ctx context.Context, record *entities.SynthesisRecord) error
	GetByID(ctx context.Context, id string) (*entities.SynthesisRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (*entities.SynthesisRecord, error)
	// ListRecent returns up to limit records, newest first
	ListRecent(ctx context.Context, limit int) ([]*entities.SynthesisRecord, error)
}

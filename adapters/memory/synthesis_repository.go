package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
)

// SynthesisRepository keeps synthesis history in process memory.
// It is the default store when no MongoDB URI is configured.
type SynthesisRepository struct {
	mu       sync.RWMutex
	records  map[string]*entities.SynthesisRecord // id -> record
	sessions map[string]*entities.SynthesisRecord // session_id -> record
	order    []*entities.SynthesisRecord          // insertion order
}

var _ repositories.SynthesisRepository = (*SynthesisRepository)(nil)

func NewSynthesisRepository() *SynthesisRepository {
	return &SynthesisRepository{
		records:  make(map[string]*entities.SynthesisRecord),
		sessions: make(map[string]*entities.SynthesisRecord),
	}
}

// Create implements SynthesisRepository interface
func (m *SynthesisRepository) Create(ctx context.Context, record *entities.SynthesisRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[record.ID]; exists {
		return errors.New("record with this id already exists")
	}

	recordCopy := *record
	m.records[record.ID] = &recordCopy
	m.sessions[record.SessionID] = &recordCopy
	m.order = append(m.order, &recordCopy)
	return nil
}

// GetByID implements SynthesisRepository interface
func (m *SynthesisRepository) GetByID(ctx context.Context, id string) (*entities.SynthesisRecord, error) {
	if id == "" {
		return nil, errors.New("record ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[id]
	if !exists {
		return nil, repositories.ErrRecordNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

// GetBySessionID implements SynthesisRepository interface
func (m *SynthesisRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.SynthesisRecord, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.sessions[sessionID]
	if !exists {
		return nil, repositories.ErrRecordNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

// ListRecent implements SynthesisRepository interface
func (m *SynthesisRepository) ListRecent(ctx context.Context, limit int) ([]*entities.SynthesisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}

	result := make([]*entities.SynthesisRecord, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		recordCopy := *m.order[i]
		result = append(result, &recordCopy)
	}
	return result, nil
}

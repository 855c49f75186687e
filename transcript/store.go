package transcript

import (
	"context"
	"sync"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

// Store is the session transcript. Only the pipeline appends; only Clear
// removes.
type Store interface {
	AddMessage(ctx context.Context, msg models.ConversationMessage) error
	Messages(ctx context.Context) ([]models.ConversationMessage, error)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the transcript in process.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []models.ConversationMessage
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AddMessage(ctx context.Context, msg models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns a copy in arrival order.
func (s *MemoryStore) Messages(ctx context.Context) ([]models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ConversationMessage, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

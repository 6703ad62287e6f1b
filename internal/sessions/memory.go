package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BTreeMap/PromptPanel/internal/models"
)

// InMemoryStore keeps sessions in process memory, for development servers and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ConversationSession
	now      func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.ConversationSession), now: time.Now}
}

func (s *InMemoryStore) List(ctx context.Context, activeOnly bool) ([]models.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConversationSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if activeOnly && !sess.IsActive() {
			continue
		}
		c, err := clone(sess)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortByActivity(out)
	return out, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*models.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c, err := clone(sess)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *InMemoryStore) Save(ctx context.Context, sess models.ConversationSession) error {
	c, err := clone(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = c
	return nil
}

func (s *InMemoryStore) Terminate(ctx context.Context, id string) (*models.ConversationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if terminate(&sess, s.now()) {
		s.sessions[id] = sess
	}
	c, err := clone(sess)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// clone deep-copies a session through its JSON form, the same shape the Redis backend stores.
func clone(sess models.ConversationSession) (models.ConversationSession, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return models.ConversationSession{}, fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	var out models.ConversationSession
	if err := json.Unmarshal(data, &out); err != nil {
		return models.ConversationSession{}, fmt.Errorf("failed to decode session %s: %w", sess.ID, err)
	}
	return out, nil
}

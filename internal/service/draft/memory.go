package draft

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

// MemoryStore keeps sessions in process memory, suitable for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]draft.Session
	messages map[string][]draft.Message
	now      func() time.Time
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]draft.Session),
		messages: make(map[string][]draft.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FindSession retrieves a session by identifier.
func (s *MemoryStore) FindSession(_ context.Context, id string) (draft.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return draft.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// CreateSession provisions a session; the id is generated when empty.
func (s *MemoryStore) CreateSession(_ context.Context, session draft.Session) (draft.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	newSessionDefaults(&session)
	now := s.now()
	session.CreatedAt = now
	session.UpdatedAt = now

	s.mu.Lock()
	s.sessions[session.ID] = session.Clone()
	s.messages[session.ID] = make([]draft.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// UpdateSession applies update in one step.
func (s *MemoryStore) UpdateSession(_ context.Context, id string, update draft.SessionUpdate) (draft.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return draft.Session{}, ErrSessionNotFound
	}
	update.Apply(&session)
	session.UpdatedAt = s.now()
	s.sessions[id] = session
	return session.Clone(), nil
}

// AppendMessage adds a message to the session history. CreatedAt is kept
// strictly increasing within a session.
func (s *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg draft.NewMessage) (draft.Message, error) {
	if err := validateMessage(msg); err != nil {
		return draft.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return draft.Message{}, ErrSessionNotFound
	}

	createdAt := s.now()
	history := s.messages[sessionID]
	if n := len(history); n > 0 && !createdAt.After(history[n-1].CreatedAt) {
		createdAt = history[n-1].CreatedAt.Add(time.Nanosecond)
	}

	message := draft.Message{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		Role:          msg.Role,
		Content:       msg.Content,
		PartialUpdate: msg.PartialUpdate.Clone(),
		CreatedAt:     createdAt,
	}
	s.messages[sessionID] = append(history, message)

	out := message
	out.PartialUpdate = message.PartialUpdate.Clone()
	return out, nil
}

// ListMessages returns stored messages for the provided session.
func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]draft.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]draft.Message, len(messages))
	for i, m := range messages {
		m.PartialUpdate = m.PartialUpdate.Clone()
		copied[i] = m
	}
	return copied, nil
}

var _ Store = (*MemoryStore)(nil)

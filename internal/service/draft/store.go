// Package draft persists drafting sessions and their append-only messages.
package draft

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidMessage  = errors.New("invalid message")
)

// Store is the persistence contract of the drafting engine. Implementations
// must give read-your-writes: a message appended by one turn is visible to the
// ListMessages call of the next turn.
type Store interface {
	FindSession(ctx context.Context, id string) (draft.Session, error)
	CreateSession(ctx context.Context, session draft.Session) (draft.Session, error)
	UpdateSession(ctx context.Context, id string, update draft.SessionUpdate) (draft.Session, error)
	AppendMessage(ctx context.Context, sessionID string, msg draft.NewMessage) (draft.Message, error)
	// ListMessages returns the messages of a session ordered by creation.
	ListMessages(ctx context.Context, sessionID string) ([]draft.Message, error)
}

func validateMessage(msg draft.NewMessage) error {
	if msg.Role != draft.RoleUser && msg.Role != draft.RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}
	return nil
}

func newSessionDefaults(session *draft.Session) {
	if session.CurrentStep == "" {
		session.CurrentStep = draft.StepGreeting
	}
	if session.Status == "" {
		session.Status = draft.StatusActive
	}
	if session.Products == nil {
		session.Products = []draft.ProductLine{}
	}
}

package draft

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartialUpdate is the in-progress entity snapshot attached to an assistant
// message. At most one of the two field sets is present. The sets are kept as
// raw JSON so a damaged record can be skipped during replay.
type PartialUpdate struct {
	PendingCompanyFields json.RawMessage `json:"pendingCompanyFields,omitempty"`
	PendingProductFields json.RawMessage `json:"pendingProductFields,omitempty"`
	// Begin marks the first fields of a new entity; replay starts over here.
	Begin bool `json:"begin,omitempty"`
	// Committed marks the message that carries the completed entity.
	Committed bool `json:"committed,omitempty"`
}

// Clone returns a copy that shares no bytes with p. A nil p stays nil.
func (p *PartialUpdate) Clone() *PartialUpdate {
	if p == nil {
		return nil
	}
	out := *p
	out.PendingCompanyFields = cloneRaw(p.PendingCompanyFields)
	out.PendingProductFields = cloneRaw(p.PendingProductFields)
	return &out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// Message persists an individual turn half. Messages are append-only.
type Message struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"sessionId"`
	Role          Role           `json:"role"`
	Content       string         `json:"content"`
	PartialUpdate *PartialUpdate `json:"partialUpdate,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// NewMessage is the caller-supplied part of a message.
type NewMessage struct {
	Role          Role
	Content       string
	PartialUpdate *PartialUpdate
}

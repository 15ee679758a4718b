// Package responder decides what the assistant says on each turn and where
// the conversation goes next.
package responder

import (
	"context"

	"github.com/zhouzirui/z-invoice/backend/internal/model/channel"
	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

// Responder turns one user message into a reply and a transition.
type Responder interface {
	Respond(ctx context.Context, turn Turn) Result
}

// Turn is everything a responder may look at.
type Turn struct {
	Session draft.Session
	// History holds the messages before this turn, oldest first.
	History        []draft.Message
	Text           string
	PendingCompany draft.PendingCompany
	PendingProduct draft.PendingProduct
	Channel        channel.Profile
}

// Action is the side effect the orchestrator performs after the responder.
type Action string

const (
	ActionNone          Action = ""
	ActionLookup        Action = "lookup"
	ActionConfirmClient Action = "confirm_client"
	ActionCommitCompany Action = "commit_company"
	ActionCommitProduct Action = "commit_product"
	ActionFinalize      Action = "finalize"
)

// Source tells which responder produced the reply text.
type Source string

const (
	SourceFallback   Source = "fallback"
	SourceGenerative Source = "generative"
)

// Updates are the fields extracted from this turn alone.
type Updates struct {
	ClientType       draft.ClientType
	ClientIdentifier string
	Company          draft.PendingCompany
	Product          draft.PendingProduct
}

// Result is the structured outcome of a turn.
type Result struct {
	ReplyText string
	NextStep  draft.Step
	Updates   Updates
	Action    Action
	Source    Source
}

// Stayed reports whether the turn left the step unchanged.
func (r Result) Stayed(step draft.Step) bool {
	return r.NextStep == step && r.Action == ActionNone
}

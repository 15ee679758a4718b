// Package engine runs drafting conversations one turn at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/z-invoice/backend/internal/model/channel"
	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/accumulate"
	"github.com/zhouzirui/z-invoice/backend/internal/service/document"
	draftstore "github.com/zhouzirui/z-invoice/backend/internal/service/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/lookup"
	"github.com/zhouzirui/z-invoice/backend/internal/service/responder"
)

var (
	ErrEmptyText      = errors.New("turn text is empty")
	ErrSourceRequired = errors.New("source is required")
)

// Options carries the engine collaborators. Lookup may be nil, in which case
// every identifier is treated as unknown. A nil VATPercent means the default
// rate; zero is an explicit exempt rate.
type Options struct {
	Store      draftstore.Store
	Responder  responder.Responder
	Lookup     lookup.Lookup
	Pipeline   document.Pipeline
	Channels   channel.Store
	VATPercent *float64
}

// Engine is the turn orchestrator.
type Engine struct {
	store       draftstore.Store
	responder   responder.Responder
	lookup      lookup.Lookup
	finalizer   *document.Finalizer
	channels    channel.Store
	accumulator *accumulate.Accumulator
	locks       *sessionLocks
	vatPercent  float64
}

// New validates opts and builds an engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("document pipeline is required")
	}
	vat := draft.DefaultVATPercent
	if opts.VATPercent != nil && *opts.VATPercent >= 0 {
		vat = *opts.VATPercent
	}
	resp := opts.Responder
	if resp == nil {
		resp = responder.NewFallback(vat)
	}
	channels := opts.Channels
	if channels == nil {
		channels = channel.NewMemoryStore(channel.Seed())
	}

	return &Engine{
		store:       opts.Store,
		responder:   resp,
		lookup:      opts.Lookup,
		finalizer:   document.NewFinalizer(opts.Pipeline, opts.Store),
		channels:    channels,
		accumulator: accumulate.New(),
		locks:       newSessionLocks(),
		vatPercent:  vat,
	}, nil
}

// StartResult is returned by StartSession.
type StartResult struct {
	SessionID    string     `json:"sessionId"`
	GreetingText string     `json:"greetingText"`
	Step         draft.Step `json:"step"`
}

// TurnRequest is one inbound user message. An empty SessionID opens a new
// session.
type TurnRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Text      string `json:"text"`
	Source    string `json:"source"`
	Contact   string `json:"contact,omitempty"`
}

// DocumentRef points at the issued document of a completed session.
type DocumentRef struct {
	ID     string `json:"id"`
	Number string `json:"number"`
}

// TurnResult is the reply to one turn.
type TurnResult struct {
	SessionID   string           `json:"sessionId"`
	ReplyText   string           `json:"replyText"`
	Step        draft.Step       `json:"step"`
	DocumentRef *DocumentRef     `json:"documentRef,omitempty"`
	Source      responder.Source `json:"source"`
}

// StartSession opens a session and records the channel greeting.
func (e *Engine) StartSession(ctx context.Context, source, contact string) (StartResult, error) {
	session, profile, err := e.createSession(ctx, source, contact)
	if err != nil {
		return StartResult{}, err
	}

	greeting := strings.TrimSpace(profile.GreetingText)
	if greeting == "" {
		greeting = responder.PromptFor(draft.StepGreeting, session)
	}
	if _, err := e.store.AppendMessage(ctx, session.ID, draft.NewMessage{Role: draft.RoleAssistant, Content: greeting}); err != nil {
		return StartResult{}, fmt.Errorf("append greeting: %w", err)
	}

	log.Printf("[engine] session started id=%s source=%s", session.ID, session.Source)
	return StartResult{SessionID: session.ID, GreetingText: greeting, Step: session.CurrentStep}, nil
}

func (e *Engine) createSession(ctx context.Context, source, contact string) (draft.Session, channel.Profile, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return draft.Session{}, channel.Profile{}, ErrSourceRequired
	}
	profile := e.channels.Resolve(source)

	session, err := e.store.CreateSession(ctx, draft.Session{
		Source:          source,
		ExternalContact: strings.TrimSpace(contact),
	})
	if err != nil {
		return draft.Session{}, channel.Profile{}, fmt.Errorf("create session: %w", err)
	}
	return session, profile, nil
}

// SubmitTurn processes one user message start to finish. Turns of the same
// session never run concurrently.
func (e *Engine) SubmitTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return TurnResult{}, ErrEmptyText
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		session, _, err := e.createSession(ctx, req.Source, req.Contact)
		if err != nil {
			return TurnResult{}, err
		}
		sessionID = session.ID
		log.Printf("[engine] session opened by first turn id=%s source=%s", session.ID, session.Source)
	}

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	session, err := e.store.FindSession(ctx, sessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("find session: %w", err)
	}
	history, err := e.store.ListMessages(ctx, sessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("list messages: %w", err)
	}
	pending, err := e.accumulator.Replay(sessionID, history)
	if err != nil {
		return TurnResult{}, fmt.Errorf("replay pending fields: %w", err)
	}

	if _, err := e.store.AppendMessage(ctx, sessionID, draft.NewMessage{Role: draft.RoleUser, Content: text}); err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}

	turn := responder.Turn{
		Session:        session,
		History:        history,
		Text:           text,
		PendingCompany: pending.Company,
		PendingProduct: pending.Product,
		Channel:        e.channels.Resolve(session.Source),
	}
	result := e.responder.Respond(ctx, turn)

	outcome, err := e.apply(ctx, turn, result)
	if err != nil {
		return TurnResult{}, err
	}

	if _, err := e.store.AppendMessage(ctx, sessionID, draft.NewMessage{
		Role:          draft.RoleAssistant,
		Content:       outcome.reply,
		PartialUpdate: outcome.partial,
	}); err != nil {
		return TurnResult{}, fmt.Errorf("append assistant message: %w", err)
	}

	if outcome.discard {
		e.accumulator.Discard(sessionID)
	}

	if result.Stayed(session.CurrentStep) {
		log.Printf("[engine] reprompt session=%s step=%s source=%s", sessionID, session.CurrentStep, result.Source)
	} else {
		log.Printf("[engine] turn session=%s step=%s->%s source=%s", sessionID, session.CurrentStep, outcome.session.CurrentStep, result.Source)
	}

	out := TurnResult{
		SessionID: sessionID,
		ReplyText: outcome.reply,
		Step:      outcome.session.CurrentStep,
		Source:    result.Source,
	}
	if outcome.session.Completed() {
		out.DocumentRef = &DocumentRef{ID: outcome.session.ResultDocumentID, Number: outcome.session.ResultDocumentNumber}
	}
	return out, nil
}

// SessionView is a session with its transcript.
type SessionView struct {
	Session  draft.Session   `json:"session"`
	Messages []draft.Message `json:"messages"`
}

// Session returns the stored state of a session for inspection.
func (e *Engine) Session(ctx context.Context, sessionID string) (SessionView, error) {
	session, err := e.store.FindSession(ctx, sessionID)
	if err != nil {
		return SessionView{}, fmt.Errorf("find session: %w", err)
	}
	messages, err := e.store.ListMessages(ctx, sessionID)
	if err != nil {
		return SessionView{}, fmt.Errorf("list messages: %w", err)
	}
	return SessionView{Session: session, Messages: messages}, nil
}

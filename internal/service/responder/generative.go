package responder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

var ErrEmptyCompletion = errors.New("empty completion")

// Backend produces free text for a system prompt and a transcript.
type Backend interface {
	Complete(ctx context.Context, systemPrompt string, history []*schema.Message) (string, error)
}

// ChainBackend runs an eino prompt+model chain.
type ChainBackend struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewChainBackend compiles the chain around chatModel.
func NewChainBackend(ctx context.Context, chatModel model.BaseChatModel) (*ChainBackend, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}
	return &ChainBackend{chain: runnable}, nil
}

func (b *ChainBackend) Complete(ctx context.Context, systemPrompt string, history []*schema.Message) (string, error) {
	msg, err := b.chain.Invoke(ctx, map[string]any{
		"system":  systemPrompt,
		"history": history,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return msg.Content, nil
}

// Generative asks a language model to phrase the reply. The transition and
// field updates always come from the wrapped Fallback applied to the raw text,
// and any backend failure returns the Fallback result unchanged.
type Generative struct {
	backend      Backend
	fallback     *Fallback
	historyLimit int
}

// NewGenerative wraps fallback. A nil backend makes it behave as fallback.
func NewGenerative(backend Backend, fallback *Fallback, historyLimit int) *Generative {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Generative{backend: backend, fallback: fallback, historyLimit: historyLimit}
}

// Enabled reports whether a backend is configured.
func (g *Generative) Enabled() bool {
	return g != nil && g.backend != nil
}

func (g *Generative) Respond(ctx context.Context, turn Turn) Result {
	planned := g.fallback.Respond(ctx, turn)
	if !g.Enabled() {
		return planned
	}
	// lookup and finalization replies are rewritten from their outcome
	if planned.Action == ActionLookup || planned.Action == ActionFinalize {
		return planned
	}

	systemPrompt := BuildSystemPrompt(turn, planned)
	history := buildHistoryMessages(turn.History, g.historyLimit, turn.Text)

	text, err := g.backend.Complete(ctx, systemPrompt, history)
	if err != nil {
		log.Printf("[responder] generative reply failed for session=%s, use fallback: %v", turn.Session.ID, err)
		return planned
	}
	text = truncate(strings.TrimSpace(text), turn.Channel.MaxReplyLen)
	if text == "" {
		log.Printf("[responder] generative reply empty for session=%s, use fallback", turn.Session.ID)
		return planned
	}

	result := planned
	result.ReplyText = text
	result.Source = SourceGenerative
	return result
}

var _ Responder = (*Generative)(nil)

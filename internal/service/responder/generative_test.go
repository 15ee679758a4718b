package responder_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-invoice/backend/internal/model/channel"
	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/responder"
)

type fakeBackend struct {
	text    string
	err     error
	calls   int
	system  string
	history []*schema.Message
}

func (f *fakeBackend) Complete(_ context.Context, systemPrompt string, history []*schema.Message) (string, error) {
	f.calls++
	f.system = systemPrompt
	f.history = history
	return f.text, f.err
}

func TestGenerativeUsesModelText(t *testing.T) {
	backend := &fakeBackend{text: "  Super! Care este CUI-ul firmei tale?  "}
	gen := responder.NewGenerative(backend, responder.NewFallback(draft.DefaultVATPercent), 10)

	result := gen.Respond(context.Background(), turnAt(draft.StepGreeting, "companie"))
	if result.ReplyText != "Super! Care este CUI-ul firmei tale?" {
		t.Fatalf("unexpected reply %q", result.ReplyText)
	}
	if result.NextStep != draft.StepClientIDLookupPending {
		t.Fatalf("next step must come from the rules, got %s", result.NextStep)
	}
	if result.Source != responder.SourceGenerative {
		t.Fatalf("unexpected source %s", result.Source)
	}
}

func TestGenerativeFailureMatchesFallback(t *testing.T) {
	fb := responder.NewFallback(draft.DefaultVATPercent)
	failing := responder.NewGenerative(&fakeBackend{err: errors.New("quota exceeded")}, fb, 10)
	empty := responder.NewGenerative(&fakeBackend{text: "   "}, fb, 10)

	inputs := map[draft.Step]string{
		draft.StepGreeting:             "companie",
		draft.StepClientType:           "???",
		draft.StepConfirmCompany:       "da",
		draft.StepManualCompanyName:    "ACME SRL",
		draft.StepManualCompanyAddress: "",
		draft.StepManualCompanyCity:    "Iasi",
		draft.StepManualCompanyCounty:  "Iasi",
		draft.StepAddProductName:       "Audit",
		draft.StepAddProductPrice:      "abc",
		draft.StepAddProductQuantity:   "3",
		draft.StepConfirmAddMore:       "da",
		draft.StepDone:                 "x",
	}
	for step, text := range inputs {
		want := fb.Respond(context.Background(), turnAt(step, text))
		for name, gen := range map[string]*responder.Generative{"error": failing, "empty": empty} {
			got := gen.Respond(context.Background(), turnAt(step, text))
			if got.ReplyText != want.ReplyText || got.NextStep != want.NextStep || got.Updates != want.Updates {
				t.Fatalf("%s backend at %s: got %#v want %#v", name, step, got, want)
			}
		}
	}
}

func TestGenerativeSkipsModelForLookupAndFinalize(t *testing.T) {
	backend := &fakeBackend{text: "ceva"}
	gen := responder.NewGenerative(backend, responder.NewFallback(draft.DefaultVATPercent), 10)

	gen.Respond(context.Background(), turnAt(draft.StepClientIDLookupPending, "44820819"))
	gen.Respond(context.Background(), turnAt(draft.StepConfirmAddMore, "nu"))
	if backend.calls != 0 {
		t.Fatalf("expected no backend calls, got %d", backend.calls)
	}
}

func TestGenerativeBoundsHistoryAndBuildsPrompt(t *testing.T) {
	backend := &fakeBackend{text: "ok"}
	gen := responder.NewGenerative(backend, responder.NewFallback(draft.DefaultVATPercent), 4)

	turn := turnAt(draft.StepAddProductName, "Audit")
	turn.Session.Products = []draft.ProductLine{{Name: "Consultanta", Unit: "buc", Quantity: 2, Price: 100, VATPercent: 19}}
	turn.Channel = channel.Profile{Source: "whatsapp", Tone: "prietenos", MaxReplyLen: 600}
	for i := 0; i < 9; i++ {
		role := draft.RoleUser
		if i%2 == 1 {
			role = draft.RoleAssistant
		}
		turn.History = append(turn.History, draft.Message{Role: role, Content: "m"})
	}

	gen.Respond(context.Background(), turn)
	if len(backend.history) != 5 {
		t.Fatalf("expected 4 history messages plus the current one, got %d", len(backend.history))
	}
	last := backend.history[len(backend.history)-1]
	if last.Role != schema.User || last.Content != "Audit" {
		t.Fatalf("unexpected last message %#v", last)
	}
	for _, want := range []string{`"productsCount":1`, "Consultanta", "prietenos", "add_product_price"} {
		if !strings.Contains(backend.system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, backend.system)
		}
	}
}

func TestGenerativeTruncatesToChannelLimit(t *testing.T) {
	backend := &fakeBackend{text: strings.Repeat("a", 50)}
	gen := responder.NewGenerative(backend, responder.NewFallback(draft.DefaultVATPercent), 10)

	turn := turnAt(draft.StepAddProductName, "Audit")
	turn.Channel = channel.Profile{MaxReplyLen: 20}
	result := gen.Respond(context.Background(), turn)
	if len([]rune(result.ReplyText)) != 20 {
		t.Fatalf("expected 20 runes, got %d", len([]rune(result.ReplyText)))
	}
}

func TestGenerativeWithoutBackendIsFallback(t *testing.T) {
	fb := responder.NewFallback(draft.DefaultVATPercent)
	gen := responder.NewGenerative(nil, fb, 10)
	if gen.Enabled() {
		t.Fatal("expected disabled generative responder")
	}
	got := gen.Respond(context.Background(), turnAt(draft.StepGreeting, "firma"))
	want := fb.Respond(context.Background(), turnAt(draft.StepGreeting, "firma"))
	if got != want {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

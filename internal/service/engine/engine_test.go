package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/document"
	draftstore "github.com/zhouzirui/z-invoice/backend/internal/service/draft"
	"github.com/zhouzirui/z-invoice/backend/internal/service/lookup"
	"github.com/zhouzirui/z-invoice/backend/internal/service/responder"
)

type countingPipeline struct {
	mu    sync.Mutex
	inner *document.MemoryPipeline
	calls int
	fail  bool
}

func (p *countingPipeline) CreateDocument(ctx context.Context, req document.CreateRequest) (document.Result, error) {
	p.mu.Lock()
	p.calls++
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return document.Result{}, errors.New("pipeline unavailable")
	}
	return p.inner.CreateDocument(ctx, req)
}

func (p *countingPipeline) setFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

func (p *countingPipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type failingLookup struct{}

func (failingLookup) Lookup(context.Context, string) (*lookup.Company, error) {
	return nil, errors.New("registry timeout")
}

type harness struct {
	engine   *Engine
	store    *draftstore.MemoryStore
	pipeline *countingPipeline
}

func newHarness(t *testing.T, resp responder.Responder, lk lookup.Lookup) *harness {
	t.Helper()
	if lk == nil {
		lk = lookup.NewMemoryLookup(lookup.Company{
			Identifier:         "44820819",
			Name:               "ACME SOFTWARE SRL",
			Address:            "Str. Lunga 1",
			City:               "Brasov",
			County:             "Brasov",
			RegistrationNumber: "J08/123/2021",
		})
	}
	store := draftstore.NewMemoryStore()
	pipeline := &countingPipeline{inner: document.NewMemoryPipeline("INV")}
	e, err := New(Options{
		Store:     store,
		Responder: resp,
		Lookup:    lk,
		Pipeline:  pipeline,
	})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	return &harness{engine: e, store: store, pipeline: pipeline}
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	res, err := h.engine.StartSession(context.Background(), "web", "")
	if err != nil {
		t.Fatalf("StartSession err: %v", err)
	}
	return res.SessionID
}

func (h *harness) say(t *testing.T, sessionID, text string) TurnResult {
	t.Helper()
	res, err := h.engine.SubmitTurn(context.Background(), TurnRequest{SessionID: sessionID, Text: text, Source: "web"})
	if err != nil {
		t.Fatalf("SubmitTurn(%q) err: %v", text, err)
	}
	return res
}

func (h *harness) session(t *testing.T, id string) draft.Session {
	t.Helper()
	s, err := h.store.FindSession(context.Background(), id)
	if err != nil {
		t.Fatalf("FindSession err: %v", err)
	}
	return s
}

func TestCompanyFlowEndToEnd(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.start(t)

	script := []struct {
		text string
		step draft.Step
	}{
		{"companie", draft.StepClientIDLookupPending},
		{"44820819", draft.StepConfirmCompany},
		{"da", draft.StepAddProductName},
		{"Consultanță", draft.StepAddProductPrice},
		{"100", draft.StepAddProductQuantity},
		{"2", draft.StepConfirmAddMore},
	}
	for _, s := range script {
		if got := h.say(t, id, s.text); got.Step != s.step {
			t.Fatalf("after %q: got step %s want %s (reply %q)", s.text, got.Step, s.step, got.ReplyText)
		}
	}
	if h.pipeline.count() != 0 {
		t.Fatal("pipeline called before the user finished")
	}

	final := h.say(t, id, "nu")
	if final.Step != draft.StepDone {
		t.Fatalf("expected done, got %s", final.Step)
	}
	if final.DocumentRef == nil || final.DocumentRef.Number != "INV-000001" {
		t.Fatalf("expected document reference, got %#v", final.DocumentRef)
	}
	if !strings.Contains(final.ReplyText, "238.00") {
		t.Fatalf("expected total in reply, got %q", final.ReplyText)
	}

	s := h.session(t, id)
	if s.Status != draft.StatusCompleted || s.ResultDocumentID == "" {
		t.Fatalf("session not completed: %#v", s)
	}
	if s.ClientSnapshot == nil || s.ClientSnapshot.Name != "ACME SOFTWARE SRL" || s.ClientSnapshot.Identifier != "44820819" {
		t.Fatalf("unexpected client: %#v", s.ClientSnapshot)
	}
	want := draft.ProductLine{Name: "Consultanță", Unit: "buc", Quantity: 2, Price: 100, VATPercent: 19}
	if len(s.Products) != 1 || s.Products[0] != want {
		t.Fatalf("unexpected products: %#v", s.Products)
	}
	if h.pipeline.count() != 1 {
		t.Fatalf("expected one pipeline call, got %d", h.pipeline.count())
	}
}

func TestLookupMissUsesManualEntry(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.start(t)

	h.say(t, id, "firma")
	if got := h.say(t, id, "CUI 12345678"); got.Step != draft.StepManualCompanyName {
		t.Fatalf("expected manual_company_name, got %s", got.Step)
	}
	steps := []draft.Step{draft.StepManualCompanyAddress, draft.StepManualCompanyCity, draft.StepManualCompanyCounty, draft.StepAddProductName}
	for i, text := range []string{"Beta Trading SRL", "Bd. Unirii 10", "Iași", "Iași"} {
		if got := h.say(t, id, text); got.Step != steps[i] {
			t.Fatalf("after %q: got %s want %s", text, got.Step, steps[i])
		}
	}

	s := h.session(t, id)
	want := draft.Client{Name: "Beta Trading SRL", Address: "Bd. Unirii 10", City: "Iași", County: "Iași", Identifier: "12345678"}
	if s.ClientSnapshot == nil || *s.ClientSnapshot != want {
		t.Fatalf("unexpected client: %#v", s.ClientSnapshot)
	}
}

func TestLookupErrorTreatedAsNotFound(t *testing.T) {
	h := newHarness(t, nil, failingLookup{})
	id := h.start(t)

	h.say(t, id, "companie")
	if got := h.say(t, id, "44820819"); got.Step != draft.StepManualCompanyName {
		t.Fatalf("expected manual branch, got %s", got.Step)
	}
}

func TestRejectedCompanyIsNotReused(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.start(t)

	h.say(t, id, "companie")
	h.say(t, id, "44820819")
	if got := h.say(t, id, "nu"); got.Step != draft.StepClientIDLookupPending {
		t.Fatalf("expected to retry identifier, got %s", got.Step)
	}
	h.say(t, id, "99999999")
	for _, text := range []string{"Gamma SRL", "Str. Mica 2", "Cluj-Napoca", "Cluj"} {
		h.say(t, id, text)
	}
	s := h.session(t, id)
	if s.ClientSnapshot == nil || s.ClientSnapshot.Name != "Gamma SRL" || s.ClientSnapshot.RegistrationNumber != "" {
		t.Fatalf("rejected company leaked: %#v", s.ClientSnapshot)
	}
}

func TestIndividualFlow(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := h.start(t)

	if got := h.say(t, id, "persoană fizică"); got.Step != draft.StepManualCompanyName {
		t.Fatalf("expected manual_company_name, got %s", got.Step)
	}
	for _, text := range []string{"Ion Popescu", "Str. Florilor 3", "Sibiu", "Sibiu"} {
		h.say(t, id, text)
	}
	s := h.session(t, id)
	if s.ClientType != draft.ClientIndividual || s.ClientSnapshot == nil || s.ClientSnapshot.Identifier != "" {
		t.Fatalf("unexpected individual client: %#v / %#v", s.ClientType, s.ClientSnapshot)
	}
}

func driveToProducts(t *testing.T, h *harness) string {
	t.Helper()
	id := h.start(t)
	for _, text := range []string{"companie", "44820819", "da"} {
		h.say(t, id, text)
	}
	return id
}

func TestInvalidPriceLeavesSessionUnchanged(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := driveToProducts(t, h)
	h.say(t, id, "Audit")

	before := h.session(t, id)
	got := h.say(t, id, "nu stiu inca")
	if got.Step != draft.StepAddProductPrice {
		t.Fatalf("expected add_product_price, got %s", got.Step)
	}
	after := h.session(t, id)
	if after.CurrentStep != before.CurrentStep || len(after.Products) != len(before.Products) || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("session changed on invalid input: before %#v after %#v", before, after)
	}

	h.say(t, id, "150,50")
	h.say(t, id, "1")
	s := h.session(t, id)
	if len(s.Products) != 1 || s.Products[0].Name != "Audit" || s.Products[0].Price != 150.5 {
		t.Fatalf("unexpected products: %#v", s.Products)
	}
}

func TestSecondProductStartsFresh(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := driveToProducts(t, h)

	for _, text := range []string{"Consultanță", "100", "2", "da", "Audit", "50", "3"} {
		h.say(t, id, text)
	}
	s := h.session(t, id)
	if len(s.Products) != 2 {
		t.Fatalf("expected two products, got %#v", s.Products)
	}
	if s.Products[1] != (draft.ProductLine{Name: "Audit", Unit: "buc", Quantity: 3, Price: 50, VATPercent: 19}) {
		t.Fatalf("second product inherited fields: %#v", s.Products[1])
	}
}

func TestNoFinalizationWithoutNegativeAnswer(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := driveToProducts(t, h)

	for _, text := range []string{"Consultanță", "100", "2", "da", "Audit", "50", "3", "poate", "da"} {
		h.say(t, id, text)
	}
	s := h.session(t, id)
	if h.pipeline.count() != 0 || s.Status == draft.StatusCompleted {
		t.Fatalf("finalized without the user finishing: calls=%d status=%s", h.pipeline.count(), s.Status)
	}
}

func TestFinalizationFailureIsResumable(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := driveToProducts(t, h)
	for _, text := range []string{"Consultanță", "100", "2"} {
		h.say(t, id, text)
	}

	h.pipeline.setFail(true)
	failed := h.say(t, id, "nu")
	if failed.Step != draft.StepConfirmAddMore || failed.DocumentRef != nil {
		t.Fatalf("expected resumable failure, got %#v", failed)
	}
	if s := h.session(t, id); s.Status == draft.StatusCompleted || s.ResultDocumentID != "" {
		t.Fatalf("session completed without document: %#v", s)
	}

	h.pipeline.setFail(false)
	done := h.say(t, id, "gata")
	if done.Step != draft.StepDone || done.DocumentRef == nil {
		t.Fatalf("expected completion on retry, got %#v", done)
	}
}

func TestDoneRepliesWithDocumentReference(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := driveToProducts(t, h)
	for _, text := range []string{"Audit", "10", "1", "nu"} {
		h.say(t, id, text)
	}

	again := h.say(t, id, "mai vreau o factura")
	if again.Step != draft.StepDone || again.DocumentRef == nil {
		t.Fatalf("unexpected result %#v", again)
	}
	if !strings.Contains(again.ReplyText, again.DocumentRef.Number) {
		t.Fatalf("reply should name the document: %q", again.ReplyText)
	}
	if h.pipeline.count() != 1 {
		t.Fatalf("document issued twice")
	}
}

func TestConcurrentTurnsCommitOnce(t *testing.T) {
	h := newHarness(t, nil, nil)
	id := driveToProducts(t, h)
	h.say(t, id, "Audit")
	h.say(t, id, "100")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.SubmitTurn(context.Background(), TurnRequest{SessionID: id, Text: "2", Source: "web"}); err != nil {
				t.Errorf("SubmitTurn err: %v", err)
			}
		}()
	}
	wg.Wait()

	if s := h.session(t, id); len(s.Products) != 1 {
		t.Fatalf("expected exactly one committed product, got %d", len(s.Products))
	}
	if n := h.engine.locks.size(); n != 0 {
		t.Fatalf("expected lock table to drain, got %d", n)
	}
}

func TestFirstTurnWithoutSessionOpensOne(t *testing.T) {
	h := newHarness(t, nil, nil)
	res, err := h.engine.SubmitTurn(context.Background(), TurnRequest{Text: "companie", Source: "whatsapp", Contact: "+40700000000"})
	if err != nil {
		t.Fatalf("SubmitTurn err: %v", err)
	}
	if res.SessionID == "" || res.Step != draft.StepClientIDLookupPending {
		t.Fatalf("unexpected result %#v", res)
	}
	s := h.session(t, res.SessionID)
	if s.Source != "whatsapp" || s.ExternalContact != "+40700000000" {
		t.Fatalf("unexpected session %#v", s)
	}
}

func TestSubmitTurnValidation(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	if _, err := h.engine.SubmitTurn(ctx, TurnRequest{Text: "  ", Source: "web"}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if _, err := h.engine.SubmitTurn(ctx, TurnRequest{Text: "salut"}); !errors.Is(err, ErrSourceRequired) {
		t.Fatalf("expected ErrSourceRequired, got %v", err)
	}
	if _, err := h.engine.SubmitTurn(ctx, TurnRequest{SessionID: "missing", Text: "salut", Source: "web"}); !errors.Is(err, draftstore.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := h.engine.StartSession(ctx, "", ""); !errors.Is(err, ErrSourceRequired) {
		t.Fatalf("expected ErrSourceRequired, got %v", err)
	}
}

type brokenBackend struct{}

func (brokenBackend) Complete(context.Context, string, []*schema.Message) (string, error) {
	return "", errors.New("401 unauthorized")
}

func TestBrokenBackendMatchesFallbackConversation(t *testing.T) {
	fb := responder.NewFallback(draft.DefaultVATPercent)
	plain := newHarness(t, fb, nil)
	generative := newHarness(t, responder.NewGenerative(brokenBackend{}, fb, 10), nil)

	a, b := plain.start(t), generative.start(t)
	for _, text := range []string{"salut", "companie", "abc", "44820819", "da", "Audit", "o suta", "100", "2", "nu"} {
		ra, rb := plain.say(t, a, text), generative.say(t, b, text)
		if ra.ReplyText != rb.ReplyText || ra.Step != rb.Step {
			t.Fatalf("turn %q diverged: %#v vs %#v", text, ra, rb)
		}
	}
}

func TestStartSessionRecordsGreeting(t *testing.T) {
	h := newHarness(t, nil, nil)
	res, err := h.engine.StartSession(context.Background(), "telegram", "")
	if err != nil {
		t.Fatalf("StartSession err: %v", err)
	}
	if res.GreetingText == "" || res.Step != draft.StepGreeting {
		t.Fatalf("unexpected start result %#v", res)
	}
	messages, err := h.store.ListMessages(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("ListMessages err: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != draft.RoleAssistant || messages[0].Content != res.GreetingText {
		t.Fatalf("greeting not recorded: %#v", messages)
	}
}

func TestVATDefaultsWhenUnset(t *testing.T) {
	zero := 0.0
	cases := []struct {
		name string
		vat  *float64
		want float64
	}{
		{"unset", nil, draft.DefaultVATPercent},
		{"explicit exempt", &zero, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := draftstore.NewMemoryStore()
			e, err := New(Options{
				Store:      store,
				Pipeline:   document.NewMemoryPipeline("INV"),
				Lookup:     lookup.NewMemoryLookup(lookup.Company{Identifier: "44820819", Name: "ACME SRL", Address: "Str. Lunga 1", City: "Brasov", County: "Brasov"}),
				VATPercent: tc.vat,
			})
			if err != nil {
				t.Fatalf("New err: %v", err)
			}
			h := &harness{engine: e, store: store}
			id := driveToProducts(t, h)
			for _, text := range []string{"Consultanta", "100", "2"} {
				h.say(t, id, text)
			}

			s := h.session(t, id)
			if len(s.Products) != 1 || s.Products[0].VATPercent != tc.want {
				t.Fatalf("expected one line at %v%% VAT, got %#v", tc.want, s.Products)
			}
		})
	}
}

// completionFailingStore rejects the write that closes a session.
type completionFailingStore struct {
	*draftstore.MemoryStore
	mu   sync.Mutex
	fail bool
}

func (s *completionFailingStore) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *completionFailingStore) UpdateSession(ctx context.Context, id string, update draft.SessionUpdate) (draft.Session, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail && update.Status != nil {
		return draft.Session{}, errors.New("database is locked")
	}
	return s.MemoryStore.UpdateSession(ctx, id, update)
}

func TestCompletionWriteFailureDoesNotIssueTwice(t *testing.T) {
	store := &completionFailingStore{MemoryStore: draftstore.NewMemoryStore(), fail: true}
	pipeline := document.NewMemoryPipeline("INV")
	e, err := New(Options{
		Store:    store,
		Pipeline: pipeline,
		Lookup:   lookup.NewMemoryLookup(lookup.Company{Identifier: "44820819", Name: "ACME SRL", Address: "Str. Lunga 1", City: "Brasov", County: "Brasov"}),
	})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	h := &harness{engine: e, store: store.MemoryStore}
	id := driveToProducts(t, h)
	for _, text := range []string{"Audit", "50", "1"} {
		h.say(t, id, text)
	}

	for _, text := range []string{"nu", "nu"} {
		got := h.say(t, id, text)
		if got.Step != draft.StepGenerateDocument || got.DocumentRef != nil {
			t.Fatalf("after %q: expected pending finalization, got %#v", text, got)
		}
	}
	if pipeline.Count() != 1 {
		t.Fatalf("expected one issued document, got %d", pipeline.Count())
	}

	store.setFail(false)
	done := h.say(t, id, "nu")
	if done.Step != draft.StepDone || done.DocumentRef == nil || done.DocumentRef.Number != "INV-000001" {
		t.Fatalf("expected completion with the first document, got %#v", done)
	}
	if pipeline.Count() != 1 {
		t.Fatalf("expected one issued document, got %d", pipeline.Count())
	}
}

// flakyBackend fails the turns whose user text is listed and answers the rest.
type flakyBackend struct {
	fail map[string]bool
}

func (b flakyBackend) Complete(_ context.Context, _ string, history []*schema.Message) (string, error) {
	last := history[len(history)-1].Content
	if b.fail[last] {
		return "", errors.New("503 overloaded")
	}
	return "Am notat: " + last, nil
}

func TestMixedRespondersCommitOneProduct(t *testing.T) {
	fb := responder.NewFallback(draft.DefaultVATPercent)
	plain := newHarness(t, fb, nil)
	mixed := newHarness(t, responder.NewGenerative(flakyBackend{fail: map[string]bool{"100": true}}, fb, 10), nil)

	a, b := driveToProducts(t, plain), driveToProducts(t, mixed)
	script := []struct {
		text   string
		source responder.Source
	}{
		{"Consultanță", responder.SourceGenerative},
		{"100", responder.SourceFallback},
		{"2", responder.SourceGenerative},
	}
	for _, s := range script {
		ra, rb := plain.say(t, a, s.text), mixed.say(t, b, s.text)
		if ra.Step != rb.Step {
			t.Fatalf("turn %q: step %s with fallback, %s mixed", s.text, ra.Step, rb.Step)
		}
		if rb.Source != s.source {
			t.Fatalf("turn %q: expected source %s, got %s", s.text, s.source, rb.Source)
		}
	}

	want := draft.ProductLine{Name: "Consultanță", Unit: "buc", Quantity: 2, Price: 100, VATPercent: 19}
	for name, s := range map[string]draft.Session{"fallback": plain.session(t, a), "mixed": mixed.session(t, b)} {
		if len(s.Products) != 1 || s.Products[0] != want {
			t.Fatalf("%s run: unexpected products %#v", name, s.Products)
		}
	}
}

// Package accumulate rebuilds in-progress products and companies from the
// partial updates recorded on assistant messages.
package accumulate

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/zhouzirui/z-invoice/backend/internal/model/draft"
)

var emptyDoc = []byte(`{}`)

// Snapshot is the accumulated state of both entity kinds.
type Snapshot struct {
	Company draft.PendingCompany
	Product draft.PendingProduct
}

type replayState struct {
	// watermark is the id of the last replayed message; replayed is its count.
	watermark string
	replayed  int
	company   []byte
	product   []byte
}

func newReplayState() replayState {
	return replayState{company: emptyDoc, product: emptyDoc}
}

// Accumulator replays message history with a per-session cache so that each
// turn only merges the messages appended since the previous one. The result is
// always identical to a full replay of the history.
type Accumulator struct {
	cache *memoryCache[replayState]
}

// New returns an accumulator with an empty cache.
func New() *Accumulator {
	return &Accumulator{cache: newMemoryCache[replayState]()}
}

// Replay returns the pending entities of the session described by history.
func (a *Accumulator) Replay(sessionID string, history []draft.Message) (Snapshot, error) {
	state, ok := a.cache.Get(sessionID)
	start := 0
	if ok && state.replayed > 0 && state.replayed <= len(history) && history[state.replayed-1].ID == state.watermark {
		start = state.replayed
	} else {
		state = newReplayState()
	}

	for _, msg := range history[start:] {
		state = applyMessage(state, msg)
		state.watermark = msg.ID
		state.replayed++
	}
	a.cache.Set(sessionID, state)

	return state.snapshot()
}

// Discard drops the cached replay of a session.
func (a *Accumulator) Discard(sessionID string) {
	a.cache.Del(sessionID)
}

// Cached reports how many sessions currently hold a cached replay.
func (a *Accumulator) Cached() int {
	return a.cache.Len()
}

// Replay rebuilds both pending entities from history without any cache.
func Replay(history []draft.Message) (Snapshot, error) {
	state := newReplayState()
	for _, msg := range history {
		state = applyMessage(state, msg)
	}
	return state.snapshot()
}

// PendingProduct rebuilds the in-progress product from history alone.
func PendingProduct(history []draft.Message) draft.PendingProduct {
	snapshot, err := Replay(history)
	if err != nil {
		return draft.PendingProduct{}
	}
	return snapshot.Product
}

// PendingCompany rebuilds the in-progress company from history alone.
func PendingCompany(history []draft.Message) draft.PendingCompany {
	snapshot, err := Replay(history)
	if err != nil {
		return draft.PendingCompany{}
	}
	return snapshot.Company
}

func (s replayState) snapshot() (Snapshot, error) {
	var out Snapshot
	if err := sonic.Unmarshal(s.company, &out.Company); err != nil {
		return Snapshot{}, fmt.Errorf("decode pending company: %w", err)
	}
	if err := sonic.Unmarshal(s.product, &out.Product); err != nil {
		return Snapshot{}, fmt.Errorf("decode pending product: %w", err)
	}
	return out, nil
}

func applyMessage(state replayState, msg draft.Message) replayState {
	if msg.Role != draft.RoleAssistant || msg.PartialUpdate == nil {
		return state
	}
	partial := msg.PartialUpdate

	if len(partial.PendingCompanyFields) > 0 {
		state.company = applyFields(state.company, partial, partial.PendingCompanyFields, &draft.PendingCompany{}, msg.ID)
	}
	if len(partial.PendingProductFields) > 0 {
		state.product = applyFields(state.product, partial, partial.PendingProductFields, &draft.PendingProduct{}, msg.ID)
	}
	return state
}

// applyFields merges one record into doc. Begin and Committed reset the
// document before and after the merge. A record that is not a JSON object, or
// that would not decode into target, is skipped.
func applyFields(doc []byte, partial *draft.PartialUpdate, fields json.RawMessage, target any, msgID string) []byte {
	if partial.Begin {
		doc = emptyDoc
	}
	merged, err := mergeObject(doc, fields, target)
	if err != nil {
		log.Printf("[accumulate] skip malformed partial update on message=%s: %v", msgID, err)
	} else {
		doc = merged
	}
	if partial.Committed {
		doc = emptyDoc
	}
	return doc
}

func mergeObject(doc, fields []byte, target any) ([]byte, error) {
	var probe map[string]any
	if err := sonic.Unmarshal(fields, &probe); err != nil {
		return nil, fmt.Errorf("fields are not a JSON object: %w", err)
	}
	if probe == nil {
		return nil, fmt.Errorf("fields are null")
	}
	merged, err := jsonpatch.MergePatch(doc, fields)
	if err != nil {
		return nil, fmt.Errorf("merge patch: %w", err)
	}
	if err := sonic.Unmarshal(merged, target); err != nil {
		return nil, fmt.Errorf("merged fields do not fit: %w", err)
	}
	return merged, nil
}

// ProductFields encodes product fields for a partial update.
func ProductFields(p draft.PendingProduct) (json.RawMessage, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode product fields: %w", err)
	}
	return data, nil
}

// CompanyFields encodes company fields for a partial update.
func CompanyFields(c draft.PendingCompany) (json.RawMessage, error) {
	data, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode company fields: %w", err)
	}
	return data, nil
}

// MergeProduct overlays the non-empty fields of next on current.
func MergeProduct(current, next draft.PendingProduct) draft.PendingProduct {
	if next.Name != "" {
		current.Name = next.Name
	}
	if next.Price > 0 {
		current.Price = next.Price
	}
	if next.Quantity > 0 {
		current.Quantity = next.Quantity
	}
	return current
}

// MergeCompany overlays the non-empty fields of next on current.
func MergeCompany(current, next draft.PendingCompany) draft.PendingCompany {
	if next.Name != "" {
		current.Name = next.Name
	}
	if next.Address != "" {
		current.Address = next.Address
	}
	if next.City != "" {
		current.City = next.City
	}
	if next.County != "" {
		current.County = next.County
	}
	if next.RegistrationNumber != "" {
		current.RegistrationNumber = next.RegistrationNumber
	}
	return current
}

package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Document is an issued invoice kept by MemoryPipeline.
type Document struct {
	Result
	Request  CreateRequest `json:"request"`
	IssuedAt time.Time     `json:"issuedAt"`
}

// MemoryPipeline issues documents in process, numbered within one series.
type MemoryPipeline struct {
	mu        sync.Mutex
	series    string
	seq       int
	documents map[string]Document
	bySession map[string]string
}

// NewMemoryPipeline starts numbering at 1 within series.
func NewMemoryPipeline(series string) *MemoryPipeline {
	series = strings.TrimSpace(series)
	if series == "" {
		series = "INV"
	}
	return &MemoryPipeline{
		series:    series,
		documents: make(map[string]Document),
		bySession: make(map[string]string),
	}
}

func (p *MemoryPipeline) CreateDocument(_ context.Context, req CreateRequest) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	subtotal, vat, total := Totals(req.Lines)

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.bySession[req.SessionID]; ok && req.SessionID != "" {
		return p.documents[id].Result, nil
	}

	p.seq++
	result := Result{
		ID:       uuid.NewString(),
		Number:   fmt.Sprintf("%s-%06d", p.series, p.seq),
		Subtotal: subtotal,
		VAT:      vat,
		Total:    total,
	}
	p.documents[result.ID] = Document{
		Result:   result,
		Request:  req,
		IssuedAt: time.Now().UTC(),
	}
	if req.SessionID != "" {
		p.bySession[req.SessionID] = result.ID
	}
	return result, nil
}

// Get returns an issued document by id.
func (p *MemoryPipeline) Get(id string) (Document, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, ok := p.documents[id]
	return doc, ok
}

// Count returns how many documents were issued.
func (p *MemoryPipeline) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.documents)
}

func validate(req CreateRequest) error {
	if strings.TrimSpace(req.Client.Name) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("client name is required"))
	}
	if len(req.Lines) == 0 {
		return errors.Join(ErrInvalidRequest, errors.New("at least one line is required"))
	}
	for i, l := range req.Lines {
		if strings.TrimSpace(l.Name) == "" || l.Quantity <= 0 || l.Price <= 0 {
			return fmt.Errorf("%w: line %d is incomplete", ErrInvalidRequest, i+1)
		}
	}
	return nil
}

var _ Pipeline = (*MemoryPipeline)(nil)

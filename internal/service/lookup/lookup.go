// Package lookup resolves tax identifiers to registered companies.
package lookup

import (
	"context"
	"strings"
	"sync"
)

// Company is a registry record for a legal entity.
type Company struct {
	Identifier         string `json:"identifier"`
	Name               string `json:"name"`
	Address            string `json:"address"`
	City               string `json:"city"`
	County             string `json:"county"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
}

// Lookup finds a company by identifier. A nil company with a nil error means
// the identifier is not registered.
type Lookup interface {
	Lookup(ctx context.Context, identifier string) (*Company, error)
}

// MemoryLookup serves companies from a fixed in-process table.
type MemoryLookup struct {
	mu        sync.RWMutex
	companies map[string]Company
}

// NewMemoryLookup indexes the given companies by identifier.
func NewMemoryLookup(companies ...Company) *MemoryLookup {
	l := &MemoryLookup{companies: make(map[string]Company, len(companies))}
	for _, c := range companies {
		l.Add(c)
	}
	return l
}

// Add registers or replaces a company.
func (l *MemoryLookup) Add(company Company) {
	l.mu.Lock()
	l.companies[strings.TrimSpace(company.Identifier)] = company
	l.mu.Unlock()
}

func (l *MemoryLookup) Lookup(_ context.Context, identifier string) (*Company, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	company, ok := l.companies[strings.TrimSpace(identifier)]
	if !ok {
		return nil, nil
	}
	return &company, nil
}

var _ Lookup = (*MemoryLookup)(nil)

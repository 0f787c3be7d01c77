package rules

import (
	"fmt"
	"sort"
	"sync"

	"seminar_standings/internal/common"
)

type TableDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Policy is a named composition of hooks plus the table layout and total rule.
type Policy struct {
	ID string
	// Compatible lists older policy ids whose stored facts this policy also trusts.
	Compatible   []string
	Tables       []TableDef
	DefaultTable string
	Total        Reducer
	Hooks        []Hook
}

func (p *Policy) PolicyIDs() []string {
	return append([]string{p.ID}, p.Compatible...)
}

func (p *Policy) validate() error {
	if len(p.Tables) == 0 {
		return fmt.Errorf("policy %q defines no tables: %w", p.ID, common.ErrConfiguration)
	}
	seen := make(map[string]bool, len(p.Tables))
	for _, t := range p.Tables {
		if seen[t.ID] {
			return fmt.Errorf("policy %q defines table %q twice: %w", p.ID, t.ID, common.ErrConfiguration)
		}
		seen[t.ID] = true
	}
	if !seen[p.DefaultTable] {
		return fmt.Errorf("policy %q default table %q is not one of its tables: %w", p.ID, p.DefaultTable, common.ErrConfiguration)
	}
	if p.Total == nil {
		return fmt.Errorf("policy %q has no total rule: %w", p.ID, common.ErrConfiguration)
	}
	return nil
}

// Constructor returns a fresh policy; hooks hold per-round parsed options, so
// instances are never shared between engines.
type Constructor func() *Policy

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register makes a policy available by id. It panics on duplicates, like database/sql.Register.
func Register(id string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if ctor == nil {
		panic("rules: Register constructor is nil for " + id)
	}
	if _, dup := registry[id]; dup {
		panic("rules: Register called twice for policy " + id)
	}
	registry[id] = ctor
}

func Lookup(id string) (*Policy, error) {
	registryMu.RLock()
	ctor, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown policy %q: %w", id, common.ErrConfiguration)
	}
	p := ctor()
	if p.ID != id {
		return nil, fmt.Errorf("policy registered as %q reports id %q: %w", id, p.ID, common.ErrConfiguration)
	}
	return p, nil
}

func RegisteredPolicies() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateRegistry constructs every registered policy and checks its static shape.
// It is run once at startup.
func ValidateRegistry() error {
	for _, id := range RegisteredPolicies() {
		p, err := Lookup(id)
		if err != nil {
			return err
		}
		if err := p.validate(); err != nil {
			return err
		}
	}
	return nil
}

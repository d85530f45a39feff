package providers

import (
	"fmt"
	"sync"

	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/models"
	pkgerrors "github.com/pkg/errors"
)

// Factory builds an analyzer. It runs at most once per process.
type Factory func() (Analyzer, error)

type entry struct {
	once     sync.Once
	factory  Factory
	analyzer Analyzer
	err      error
}

// Registry maps providers to process-wide analyzers, built on first use.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.Provider]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[models.Provider]*entry)}
}

// RegisterFactory installs a lazily built analyzer for p, replacing any previous one.
func (r *Registry) RegisterFactory(p models.Provider, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[p] = &entry{factory: f}
}

// Register installs ready analyzers under their own names.
func (r *Registry) Register(analyzers ...Analyzer) {
	for _, a := range analyzers {
		a := a
		r.RegisterFactory(a.Name(), func() (Analyzer, error) { return a, nil })
	}
}

func (r *Registry) Get(p models.Provider) (Analyzer, error) {
	const op = "Registry.Get"

	r.mu.RLock()
	e, ok := r.entries[p]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Internal(op, nil, fmt.Sprintf("provider %s is not configured", p))
	}

	e.once.Do(func() {
		e.analyzer, e.err = e.factory()
		if e.err == nil && e.analyzer == nil {
			e.err = pkgerrors.New("factory returned no analyzer")
		}
	})
	if e.err != nil {
		if _, isApp := errors.As(e.err); isApp {
			return nil, e.err
		}
		return nil, errors.Internal(op, e.err, fmt.Sprintf("provider %s is not available", p))
	}
	return e.analyzer, nil
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Provider, 0, len(r.entries))
	for _, p := range models.Providers {
		if _, ok := r.entries[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

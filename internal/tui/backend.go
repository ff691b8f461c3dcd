// Package tui is the interactive console: a query form, the verdict, and
// the evaluation trace, driven by the same engine the CLI uses.
package tui

import (
	"sync"

	"grimm.is/tsim/internal/engine"
	"grimm.is/tsim/internal/facts"
	"grimm.is/tsim/internal/logging"
)

// Backend answers the console's data needs.
type Backend interface {
	Routers() ([]string, error)
	Evaluate(router string, q engine.Query) (engine.Result, error)
}

// FactsBackend evaluates against facts files in a directory, constructing
// each router's engine once and reusing it across queries.
type FactsBackend struct {
	dir string
	log *logging.Logger

	mu      sync.Mutex
	engines map[string]*engine.Engine
}

// NewFactsBackend returns a backend over one facts directory.
func NewFactsBackend(dir string, log *logging.Logger) *FactsBackend {
	if log == nil {
		log = logging.Default()
	}
	return &FactsBackend{
		dir:     dir,
		log:     log,
		engines: make(map[string]*engine.Engine),
	}
}

// Routers lists the routers with facts files.
func (b *FactsBackend) Routers() ([]string, error) {
	return facts.Routers(b.dir)
}

// Evaluate runs one traced evaluation against a router's engine.
func (b *FactsBackend) Evaluate(router string, q engine.Query) (engine.Result, error) {
	eng, err := b.engine(router)
	if err != nil {
		return engine.Result{}, err
	}
	return eng.EvaluateTrace(q)
}

func (b *FactsBackend) engine(router string) (*engine.Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if eng, ok := b.engines[router]; ok {
		return eng, nil
	}
	doc, err := facts.LoadRouter(b.dir, router)
	if err != nil {
		return nil, err
	}
	eng, err := doc.Engine(b.log)
	if err != nil {
		return nil, err
	}
	b.engines[router] = eng
	return eng, nil
}

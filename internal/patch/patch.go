// Package patch walks every stored document and applies a conditional
// rewrite, for one-off data migrations run from the admin tool.
package patch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"custodian/internal/docstore"
	"custodian/pkg/platform/sentinel"
)

// Patch is one migration. Relevant decides from the loaded document whether
// Apply should run; Apply mutates the document in place and reports whether
// it changed anything.
type Patch interface {
	// Name identifies the patch in logs and the admin tool.
	Name() string
	Relevant(doc docstore.Document) bool
	Apply(doc *docstore.Document) (bool, error)
}

// Metrics is the subset of counters the runner reports to.
type Metrics interface {
	AddDocsPatched(n int)
}

// Runner drives a Patch across all documents in a store.
type Runner struct {
	store   docstore.Store
	logger  *log.Logger
	metrics Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics wires the patched-documents counter.
func WithMetrics(m Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner builds a patch runner over the given store.
func NewRunner(store docstore.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:  store,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CountRelevant reports how many documents the patch would touch, without
// writing anything. Documents deleted between listing and loading are not
// counted.
func (r *Runner) CountRelevant(ctx context.Context, p Patch) (int, error) {
	ids, err := r.store.AllIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	count := 0
	for _, id := range ids {
		doc, err := r.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("load document %s: %w", id, err)
		}
		if p.Relevant(doc) {
			count++
		}
	}
	return count, nil
}

// RunAll applies the patch to every relevant document and returns how many
// were modified. A document that vanishes mid-run is skipped; a conflicting
// concurrent write or a failing Apply is logged and skipped so one bad
// document does not abort the migration.
func (r *Runner) RunAll(ctx context.Context, p Patch) (int, error) {
	ids, err := r.store.AllIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}
	modified := 0
	for _, id := range ids {
		doc, err := r.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			return modified, fmt.Errorf("load document %s: %w", id, err)
		}
		if !p.Relevant(doc) {
			continue
		}
		changed, err := p.Apply(&doc)
		if err != nil {
			r.logger.Printf("patch %s: document %s: %v, skipping", p.Name(), id, err)
			continue
		}
		if !changed {
			continue
		}
		if _, err := r.store.Save(ctx, doc); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				r.logger.Printf("patch %s: document %s changed concurrently, skipping", p.Name(), id)
				continue
			}
			return modified, fmt.Errorf("save document %s: %w", id, err)
		}
		modified++
	}
	if r.metrics != nil {
		r.metrics.AddDocsPatched(modified)
	}
	r.logger.Printf("patch %s: %d of %d documents modified", p.Name(), modified, len(ids))
	return modified, nil
}

package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
)

// Recorder receives the diff of every committed save. The audit package
// provides the real implementation; tests swap in mocks.
type Recorder interface {
	Record(ctx context.Context, doc Document, changed map[string]any, deleted []string, operator string) error
}

// Metrics is the small surface the saver reports into; satisfied by
// internal/platform/metrics. A nil Metrics is fine.
type Metrics interface {
	IncCommit()
	IncConflict()
	IncAuditEntry()
	IncAuditFailure()
}

// FieldRule validates and normalizes one field of one doctype. Check runs
// before Convert; either may be nil. Check errors abort the staging, and the
// field keeps its previous value.
type FieldRule struct {
	Check   func(ctx context.Context, s *Saver, value any) error
	Convert func(value any) (any, error)
}

// DoctypeSpec is the statically registered per-doctype table of defaults and
// field rules.
type DoctypeSpec struct {
	Doctype    string
	Initialize func(s *Saver)
	Fields     map[string]FieldRule
}

// Clock abstracts time.Now for testability.
type Clock func() time.Time

// Saver stages field assignments and deletions against a single document and
// commits them in one revision-checked write, followed by exactly one audit
// entry. A Saver that is never committed persists nothing; the document
// passed to Edit is never mutated.
type Saver struct {
	store    Store
	recorder Recorder
	spec     DoctypeSpec

	orig     Document
	doc      Document
	removed  map[string]struct{}
	creating bool

	operator  string
	clock     Clock
	logger    *log.Logger
	metrics   Metrics
	committed bool
}

// Option configures a Saver.
type Option func(*Saver)

// WithOperator records the acting user's email on the audit entry.
func WithOperator(email string) Option {
	return func(s *Saver) { s.operator = email }
}

// WithClock sets the clock function for testability.
func WithClock(clock Clock) Option {
	return func(s *Saver) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger used to report best-effort audit failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Saver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics wires commit/conflict/audit counters.
func WithMetrics(m Metrics) Option {
	return func(s *Saver) { s.metrics = m }
}

// New opens a Saver in create mode and applies the doctype's initialization
// defaults.
func New(store Store, recorder Recorder, spec DoctypeSpec, opts ...Option) *Saver {
	s := &Saver{
		store:    store,
		recorder: recorder,
		spec:     spec,
		doc:      Document{Doctype: spec.Doctype, Fields: make(map[string]any)},
		removed:  make(map[string]struct{}),
		creating: true,
		clock:    time.Now,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if spec.Initialize != nil {
		spec.Initialize(s)
	}
	return s
}

// Edit opens a Saver on an existing document. The document is copied; the
// caller's value stays untouched until a successful Commit returns the new
// state.
func Edit(store Store, recorder Recorder, spec DoctypeSpec, doc Document, opts ...Option) (*Saver, error) {
	if doc.Doctype != spec.Doctype {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "doctype mismatch: document is %q, saver handles %q", doc.Doctype, spec.Doctype)
	}
	if doc.ID == "" || doc.Rev == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "editing requires a persisted document with id and revision")
	}
	s := &Saver{
		store:    store,
		recorder: recorder,
		spec:     spec,
		orig:     doc.Clone(),
		doc:      doc.Clone(),
		removed:  make(map[string]struct{}),
		clock:    time.Now,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Set validates, normalizes, and stages a field value.
func (s *Saver) Set(ctx context.Context, field string, value any) error {
	if s.committed {
		return dErrors.New(dErrors.CodeInvalidInput, "saver already committed")
	}
	if rule, ok := s.spec.Fields[field]; ok {
		if rule.Check != nil {
			if err := rule.Check(ctx, s, value); err != nil {
				return err
			}
		}
		if rule.Convert != nil {
			converted, err := rule.Convert(value)
			if err != nil {
				return err
			}
			value = converted
		}
	}
	s.stage(field, value)
	return nil
}

// stage records a value without running rules. Initialize functions use it
// for trusted defaults.
func (s *Saver) stage(field string, value any) {
	delete(s.removed, field)
	s.doc.Fields[field] = cloneValue(value)
}

// SetDefault stages a trusted value, bypassing field rules. Only doctype
// Initialize functions should call this.
func (s *Saver) SetDefault(field string, value any) {
	s.stage(field, value)
}

// Unset stages removal of a field.
func (s *Saver) Unset(field string) {
	if _, existed := s.orig.Fields[field]; existed || s.creating {
		s.removed[field] = struct{}{}
	}
	delete(s.doc.Fields, field)
}

// Current returns the staged value of a field (falling back to the loaded
// document when unstaged).
func (s *Saver) Current(field string) (any, bool) {
	v, ok := s.doc.Fields[field]
	return v, ok
}

// Original returns the field value as loaded, before any staging.
func (s *Saver) Original(field string) (any, bool) {
	v, ok := s.orig.Fields[field]
	return v, ok
}

// Store exposes the underlying store so field checks can query views.
func (s *Saver) Store() Store {
	return s.store
}

// Now returns the saver's notion of current time.
func (s *Saver) Now() time.Time {
	return s.clock()
}

// Doc returns a snapshot of the staged document.
func (s *Saver) Doc() Document {
	return s.doc.Clone()
}

// Commit computes the diff against the loaded document, persists the merged
// document under the store's revision check, and records exactly one audit
// entry for the change. An empty diff on an existing document is a no-op: no
// write, no new revision, no audit entry.
//
// Commit is single-shot. If it fails nothing has been persisted and no audit
// entry exists; the caller must reload and retry with a fresh Saver.
func (s *Saver) Commit(ctx context.Context) (Document, error) {
	if s.committed {
		return Document{}, dErrors.New(dErrors.CodeInvalidInput, "saver already committed")
	}

	changed := make(map[string]any)
	for field, value := range s.doc.Fields {
		if orig, ok := s.orig.Fields[field]; !s.creating && ok && jsonEqual(orig, value) {
			continue
		}
		changed[field] = value
	}
	var deleted []string
	for field := range s.removed {
		if _, ok := s.orig.Fields[field]; ok {
			deleted = append(deleted, field)
		}
	}

	if !s.creating && len(changed) == 0 && len(deleted) == 0 {
		s.committed = true
		return s.orig.Clone(), nil
	}

	saved, err := s.store.Save(ctx, s.doc)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			if s.metrics != nil {
				s.metrics.IncConflict()
			}
			return Document{}, dErrors.Wrap(err, dErrors.CodeConflict, "document was modified concurrently")
		case errors.Is(err, sentinel.ErrUnavailable):
			return Document{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable")
		}
		return Document{}, fmt.Errorf("commit %s: %w", s.doc.Doctype, err)
	}
	s.committed = true
	s.doc = saved.Clone()
	if s.metrics != nil {
		s.metrics.IncCommit()
	}

	// Audit logging is best-effort: a failure here is reported but never
	// rolls back the committed document.
	if s.recorder != nil {
		if err := s.recorder.Record(ctx, saved, changed, deleted, s.operator); err != nil {
			s.logger.Printf("audit entry for %s %s lost: %v", saved.Doctype, saved.ID, err)
			if s.metrics != nil {
				s.metrics.IncAuditFailure()
			}
		} else if s.metrics != nil {
			s.metrics.IncAuditEntry()
		}
	}

	return saved, nil
}

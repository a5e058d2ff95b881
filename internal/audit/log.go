package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"custodian/internal/docstore"
)

// Log is the append-only audit log. Record persists one entry per committed
// document change through the same document store, in create mode, so every
// entry gets its own id and revision.
type Log struct {
	store  docstore.Store
	mirror *Mirror
	clock  docstore.Clock
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithMirror fans committed entries out to a best-effort mirror.
func WithMirror(m *Mirror) LogOption {
	return func(l *Log) { l.mirror = m }
}

// WithLogClock sets the clock function for testability.
func WithLogClock(clock docstore.Clock) LogOption {
	return func(l *Log) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLog creates an audit log over the given store.
func NewLog(store docstore.Store, opts ...LogOption) *Log {
	l := &Log{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record writes one immutable log entry for a committed change to doc.
// The operator is the acting user's email and may be empty.
func (l *Log) Record(ctx context.Context, doc docstore.Document, changed map[string]any, deleted []string, operator string) error {
	if changed == nil {
		changed = map[string]any{}
	}
	if deleted == nil {
		deleted = []string{}
	}
	entry := docstore.Document{
		ID:      docstore.NewID(),
		Doctype: docstore.DoctypeLog,
		Fields: map[string]any{
			FieldDoc:       doc.ID,
			FieldDoctype:   doc.Doctype,
			FieldChanged:   changed,
			FieldDeleted:   deleted,
			FieldTimestamp: docstore.Timestamp(l.clock()),
		},
	}
	if operator != "" {
		entry.Fields[FieldOperator] = operator
	}
	saved, err := l.store.Save(ctx, entry)
	if err != nil {
		return fmt.Errorf("append audit entry for %s: %w", doc.ID, err)
	}
	if l.mirror != nil {
		l.mirror.Offer(entryFromDocument(saved))
	}
	return nil
}

// List returns the audit entries for one document, newest first.
func (l *Log) List(ctx context.Context, docID string) ([]Entry, error) {
	rows, err := l.store.Query(ctx, docstore.ViewLogDoc, docID, true)
	if err != nil {
		return nil, fmt.Errorf("list audit entries for %s: %w", docID, err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		if row.Doc == nil {
			continue
		}
		entries = append(entries, entryFromDocument(*row.Doc))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
	return entries, nil
}

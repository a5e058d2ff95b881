package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
)

// viewFunc emits the keys a document contributes to a view, or nil when the
// document is not part of it.
type viewFunc func(doc Document) []string

// memoryViews mirrors the view definitions the SQL store expresses as
// queries.
var memoryViews = map[string]viewFunc{
	ViewUserEmail: func(d Document) []string {
		if d.Doctype != DoctypeUser {
			return nil
		}
		return []string{d.String("email")}
	},
	ViewUserUsername: func(d Document) []string {
		if d.Doctype != DoctypeUser || d.String("username") == "" {
			return nil
		}
		return []string{d.String("username")}
	},
	ViewUserPending: func(d Document) []string {
		if d.Doctype != DoctypeUser || d.String("status") != StatusPending {
			return nil
		}
		return []string{d.String("email")}
	},
	ViewUserBlocked: func(d Document) []string {
		if d.Doctype != DoctypeUser || d.String("status") != StatusBlocked {
			return nil
		}
		return []string{d.String("email")}
	},
	ViewLogDoc: func(d Document) []string {
		if d.Doctype != DoctypeLog {
			return nil
		}
		return []string{d.String("doc")}
	},
}

// MemoryStore keeps the initial implementation lightweight and testable. It
// intentionally favors clarity over performance: views are evaluated by a
// full scan.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemory() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.docs[id]; ok {
		return doc.Clone(), nil
	}
	return Document{}, sentinel.ErrNotFound
}

func (s *MemoryStore) Save(_ context.Context, doc Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.Doctype == "" {
		return Document{}, dErrors.New(dErrors.CodeInvalidInput, "document has no doctype")
	}

	if doc.Rev == "" {
		if doc.ID == "" {
			doc.ID = NewID()
		}
		if _, exists := s.docs[doc.ID]; exists {
			return Document{}, fmt.Errorf("save %s: %w", doc.ID, sentinel.ErrConflict)
		}
	} else {
		stored, exists := s.docs[doc.ID]
		if !exists {
			return Document{}, fmt.Errorf("save %s: %w", doc.ID, sentinel.ErrNotFound)
		}
		if stored.Rev != doc.Rev {
			return Document{}, fmt.Errorf("save %s: stale revision %s: %w", doc.ID, doc.Rev, sentinel.ErrConflict)
		}
	}

	doc.Rev = NextRev(doc.Rev)
	s.docs[doc.ID] = doc.Clone()
	return doc, nil
}

func (s *MemoryStore) Delete(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" || doc.Rev == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "delete requires both id and revision")
	}
	stored, exists := s.docs[doc.ID]
	if !exists {
		return fmt.Errorf("delete %s: %w", doc.ID, sentinel.ErrNotFound)
	}
	if stored.Rev != doc.Rev {
		return fmt.Errorf("delete %s: stale revision %s: %w", doc.ID, doc.Rev, sentinel.ErrConflict)
	}
	delete(s.docs, doc.ID)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, view, key string, includeDocs bool) ([]Row, error) {
	emit, ok := memoryViews[view]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown view %q", view)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []Row
	for id, doc := range s.docs {
		for _, k := range emit(doc) {
			if key != "" && k != key {
				continue
			}
			row := Row{ID: id, Key: k}
			if includeDocs {
				clone := doc.Clone()
				row.Doc = &clone
			}
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Key != rows[j].Key {
			return rows[i].Key < rows[j].Key
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, nil
}

func (s *MemoryStore) AllIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

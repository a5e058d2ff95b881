package docstore

import "context"

// View names fixed by the store contract. A view maps a derived key (email,
// username, status bucket, mutated-document id) to document ids.
const (
	ViewUserEmail    = "user/email"
	ViewUserUsername = "user/username"
	ViewUserPending  = "user/pending"
	ViewUserBlocked  = "user/blocked"
	ViewLogDoc       = "log/doc"
)

// Row is one view result. Doc is populated only when the query asked for
// included documents.
type Row struct {
	ID  string
	Key string
	Doc *Document
}

// Store is the minimal key/revision-addressed storage abstraction. Stores are
// interface-driven to keep the domain logic testable and to allow swapping
// in-memory, SQL-backed, or cached persistence without rewiring business
// code.
//
// Error contract: Get returns sentinel.ErrNotFound for unknown ids. Save with
// an empty revision creates (assigning id and revision as needed); with a
// non-empty revision it fails with sentinel.ErrConflict unless the revision
// matches the currently stored one. Delete requires both id and revision.
// Connectivity failures surface wrapped sentinel.ErrUnavailable and are never
// retried at this layer.
type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	Save(ctx context.Context, doc Document) (Document, error)
	Delete(ctx context.Context, doc Document) error

	// Query performs a point lookup against a named view; an empty key
	// scans the whole view. Rows come back ordered by key.
	Query(ctx context.Context, view, key string, includeDocs bool) ([]Row, error)

	// AllIDs enumerates every document id. Documents may disappear between
	// enumeration and a subsequent Get; callers must tolerate ErrNotFound.
	AllIDs(ctx context.Context) ([]string, error)
}

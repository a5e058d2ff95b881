package audit

import "custodian/internal/docstore"

// Field names of a persisted log entry. Fixed by the store contract; external
// migration tooling keys on them.
const (
	FieldDoc       = "doc"
	FieldDoctype   = "doctype"
	FieldChanged   = "changed"
	FieldDeleted   = "deleted"
	FieldTimestamp = "timestamp"
	FieldOperator  = "operator"
)

// Entry is one immutable audit record: the diff of a single committed
// document change. Entries are never mutated or deleted.
type Entry struct {
	ID        string
	Doc       string
	Doctype   string
	Changed   map[string]any
	Deleted   []string
	Timestamp string
	Operator  string
}

// entryFromDocument rebuilds an Entry from its stored form.
func entryFromDocument(d docstore.Document) Entry {
	e := Entry{
		ID:        d.ID,
		Doc:       d.String(FieldDoc),
		Doctype:   d.String(FieldDoctype),
		Changed:   d.Map(FieldChanged),
		Deleted:   d.StringSlice(FieldDeleted),
		Timestamp: d.String(FieldTimestamp),
		Operator:  d.String(FieldOperator),
	}
	return e
}

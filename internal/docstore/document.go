package docstore

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Doctype tags distinguish logical document kinds sharing one physical store.
const (
	DoctypeUser    = "user"
	DoctypeLog     = "log"
	DoctypeTeam    = "team"
	DoctypeService = "service"
)

// Reserved keys in the flat serialized representation. Everything else in the
// flat map is a document field. These names are part of the store contract and
// must not change; external migration tooling keys on them.
// The doctype marker is namespaced so it can never collide with a document
// field; log entries carry a plain "doctype" field of their own describing
// the mutated document.
const (
	KeyID      = "_id"
	KeyRev     = "_rev"
	KeyDoctype = "custodian_doctype"
)

// Account status values the listing views key on. The account package owns
// the state machine; the store contract pins the strings.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusActive   = "active"
	StatusBlocked  = "blocked"
)

// Document is a revision-addressed bag of fields. ID is immutable once
// assigned; Rev is assigned by the store on every successful write and must
// be presented on subsequent writes or deletes.
type Document struct {
	ID      string
	Rev     string
	Doctype string
	Fields  map[string]any
}

// NewID returns a globally unique document identifier: a 128-bit random
// token rendered as lowercase hex.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Get returns a field value and whether it is present.
func (d Document) Get(field string) (any, bool) {
	v, ok := d.Fields[field]
	return v, ok
}

// String returns a field value as a string, or "" when absent or non-string.
func (d Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// StringSlice returns a field value as a string slice. It tolerates both
// []string (staged in-process) and []any (round-tripped through JSON).
func (d Document) StringSlice(field string) []string {
	switch v := d.Fields[field].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Map returns a field value as a string-keyed map, or nil.
func (d Document) Map(field string) map[string]any {
	m, _ := d.Fields[field].(map[string]any)
	return m
}

// Clone returns a deep copy; mutating the copy never touches the original.
func (d Document) Clone() Document {
	out := d
	out.Fields = make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		out.Fields[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return t
	}
}

// Flat returns the serialized representation: all fields plus the _id/_rev
// and doctype marker keys. Rev is omitted when empty (first creation).
func (d Document) Flat() map[string]any {
	out := make(map[string]any, len(d.Fields)+3)
	for k, v := range d.Fields {
		out[k] = v
	}
	out[KeyID] = d.ID
	if d.Rev != "" {
		out[KeyRev] = d.Rev
	}
	out[KeyDoctype] = d.Doctype
	return out
}

// FromFlat rebuilds a Document from its serialized representation.
func FromFlat(m map[string]any) Document {
	d := Document{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case KeyID:
			d.ID, _ = v.(string)
		case KeyRev:
			d.Rev, _ = v.(string)
		case KeyDoctype:
			d.Doctype, _ = v.(string)
		default:
			d.Fields[k] = v
		}
	}
	return d
}

// Revisions are CouchDB-style "seq-suffix" tokens. The numeric prefix gives
// the store-defined ordering; the random suffix disambiguates histories.

// NextRev derives the successor revision token of current ("" for the first
// write).
func NextRev(current string) string {
	seq := RevSeq(current) + 1
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strconv.FormatInt(seq, 10) + "-" + suffix
}

// RevSeq extracts the numeric sequence prefix of a revision token; 0 for "".
func RevSeq(rev string) int64 {
	if rev == "" {
		return 0
	}
	head, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// timestampLayout is fixed-width UTC so stored timestamps also sort
// lexicographically.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp renders t in the store's canonical UTC format.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// ParseTimestamp parses a stored timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// jsonEqual compares two field values by their JSON renderings. Staged values
// and values round-tripped through a store differ in Go type ([]string vs
// []any) but not in meaning.
func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
)

// PostgresStore persists documents in a single JSONB table. The revision
// check is a conditional UPDATE; partial unique indexes on user email and
// username back up the query-then-stage uniqueness check in the editor.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id      TEXT PRIMARY KEY,
		rev     TEXT NOT NULL,
		rev_seq BIGINT NOT NULL,
		doctype TEXT NOT NULL,
		body    JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_doctype_idx ON documents (doctype)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS documents_user_email_key
		ON documents ((body->>'email')) WHERE doctype = 'user'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS documents_user_username_key
		ON documents ((body->>'username')) WHERE doctype = 'user' AND body->>'username' <> ''`,
	`CREATE INDEX IF NOT EXISTS documents_user_status_idx ON documents (doctype, (body->>'status'))`,
	`CREATE INDEX IF NOT EXISTS documents_log_doc_idx ON documents ((body->>'doc')) WHERE doctype = 'log'`,
}

// EnsureSchema creates the documents table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return infraErr("ensure schema", err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Document, error) {
	var (
		rev, doctype string
		body         []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT rev, doctype, body FROM documents WHERE id = $1`, id,
	).Scan(&rev, &doctype, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, fmt.Errorf("get %s: %w", id, sentinel.ErrNotFound)
		}
		return Document{}, infraErr("get document", err)
	}
	fields, err := decodeBody(body)
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", id, err)
	}
	return Document{ID: id, Rev: rev, Doctype: doctype, Fields: fields}, nil
}

func (s *PostgresStore) Save(ctx context.Context, doc Document) (Document, error) {
	if doc.Doctype == "" {
		return Document{}, dErrors.New(dErrors.CodeInvalidInput, "document has no doctype")
	}
	body, err := json.Marshal(doc.Fields)
	if err != nil {
		return Document{}, fmt.Errorf("encode document body: %w", err)
	}

	next := NextRev(doc.Rev)
	if doc.Rev == "" {
		if doc.ID == "" {
			doc.ID = NewID()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO documents (id, rev, rev_seq, doctype, body) VALUES ($1, $2, $3, $4, $5)`,
			doc.ID, next, RevSeq(next), doc.Doctype, body,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return Document{}, fmt.Errorf("save %s: %w", doc.ID, sentinel.ErrConflict)
			}
			return Document{}, infraErr("insert document", err)
		}
		doc.Rev = next
		return doc, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET rev = $1, rev_seq = $2, doctype = $3, body = $4
		 WHERE id = $5 AND rev = $6`,
		next, RevSeq(next), doc.Doctype, body, doc.ID, doc.Rev,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Document{}, fmt.Errorf("save %s: %w", doc.ID, sentinel.ErrConflict)
		}
		return Document{}, infraErr("update document", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Document{}, infraErr("update document", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, doc.ID,
		).Scan(&exists); err != nil {
			return Document{}, infraErr("update document", err)
		}
		if exists {
			return Document{}, fmt.Errorf("save %s: stale revision %s: %w", doc.ID, doc.Rev, sentinel.ErrConflict)
		}
		return Document{}, fmt.Errorf("save %s: %w", doc.ID, sentinel.ErrNotFound)
	}
	doc.Rev = next
	return doc, nil
}

func (s *PostgresStore) Delete(ctx context.Context, doc Document) error {
	if doc.ID == "" || doc.Rev == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "delete requires both id and revision")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND rev = $2`, doc.ID, doc.Rev,
	)
	if err != nil {
		return infraErr("delete document", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return infraErr("delete document", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, doc.ID,
		).Scan(&exists); err != nil {
			return infraErr("delete document", err)
		}
		if exists {
			return fmt.Errorf("delete %s: stale revision %s: %w", doc.ID, doc.Rev, sentinel.ErrConflict)
		}
		return fmt.Errorf("delete %s: %w", doc.ID, sentinel.ErrNotFound)
	}
	return nil
}

// viewQueries maps each view to the doctype filter and key expression the
// in-memory store expresses as an emit function.
var viewQueries = map[string]struct {
	where string
	key   string
}{
	ViewUserEmail:    {where: `doctype = 'user'`, key: `body->>'email'`},
	ViewUserUsername: {where: `doctype = 'user' AND COALESCE(body->>'username', '') <> ''`, key: `body->>'username'`},
	ViewUserPending:  {where: `doctype = 'user' AND body->>'status' = 'pending'`, key: `body->>'email'`},
	ViewUserBlocked:  {where: `doctype = 'user' AND body->>'status' = 'blocked'`, key: `body->>'email'`},
	ViewLogDoc:       {where: `doctype = 'log'`, key: `body->>'doc'`},
}

func (s *PostgresStore) Query(ctx context.Context, view, key string, includeDocs bool) ([]Row, error) {
	vq, ok := viewQueries[view]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown view %q", view)
	}

	cols := `id, ` + vq.key
	if includeDocs {
		cols += `, rev, doctype, body`
	}
	query := `SELECT ` + cols + ` FROM documents WHERE ` + vq.where
	args := []any{}
	if key != "" {
		query += ` AND ` + vq.key + ` = $1`
		args = append(args, key)
	}
	query += ` ORDER BY ` + vq.key + `, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, infraErr("query view", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		if includeDocs {
			var (
				rev, doctype string
				body         []byte
			)
			if err := rows.Scan(&row.ID, &row.Key, &rev, &doctype, &body); err != nil {
				return nil, infraErr("scan view row", err)
			}
			fields, err := decodeBody(body)
			if err != nil {
				return nil, err
			}
			row.Doc = &Document{ID: row.ID, Rev: rev, Doctype: doctype, Fields: fields}
		} else {
			if err := rows.Scan(&row.ID, &row.Key); err != nil {
				return nil, infraErr("scan view row", err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr("query view", err)
	}
	return out, nil
}

func (s *PostgresStore) AllIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM documents ORDER BY id`)
	if err != nil {
		return nil, infraErr("list ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, infraErr("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr("list ids", err)
	}
	return ids, nil
}

func decodeBody(body []byte) (map[string]any, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode document body: %w", err)
	}
	return fields, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// infraErr classifies a database error: anything the server itself rejected
// keeps its own message; transport-level failures surface as ErrUnavailable.
func infraErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, sentinel.ErrUnavailable)
}

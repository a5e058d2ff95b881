//go:build integration

package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"custodian/internal/docstore"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *docstore.PostgresStore
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = docstore.NewPostgres(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) TearDownSuite() {
	_ = s.pg.DB.Close()
	_ = s.pg.Container.Terminate(context.Background())
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) save(doc docstore.Document) docstore.Document {
	saved, err := s.store.Save(context.Background(), doc)
	s.Require().NoError(err)
	return saved
}

func (s *PostgresStoreSuite) user(email string, fields map[string]any) docstore.Document {
	all := map[string]any{"email": email, "status": docstore.StatusPending}
	for k, v := range fields {
		all[k] = v
	}
	return docstore.Document{Doctype: docstore.DoctypeUser, Fields: all}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()

	s.Run("documents survive save and reload unchanged", func() {
		saved := s.save(s.user("rt@example.com", map[string]any{
			"teams":      []string{"atlas", "cms"},
			"activation": map[string]any{"code": "abc", "deadline": "2026-02-08T12:00:00.000Z"},
		}))

		got, err := s.store.Get(ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal(saved.Rev, got.Rev)
		s.Equal(docstore.DoctypeUser, got.Doctype)
		s.Equal("rt@example.com", got.String("email"))
		s.Equal([]string{"atlas", "cms"}, got.StringSlice("teams"))
		s.Equal("abc", got.Map("activation")["code"])
	})

	s.Run("get of missing document returns ErrNotFound", func() {
		_, err := s.store.Get(ctx, "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("delete with matching revision removes the row", func() {
		saved := s.save(s.user("del@example.com", nil))
		s.Require().NoError(s.store.Delete(ctx, saved))
		_, err := s.store.Get(ctx, saved.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestRevisionControl() {
	ctx := context.Background()

	s.Run("two editors of the same revision: one wins, one conflicts", func() {
		base := s.save(s.user("race@example.com", nil))

		first := base.Clone()
		first.Fields["status"] = docstore.StatusActive
		_, err := s.store.Save(ctx, first)
		s.Require().NoError(err)

		second := base.Clone()
		second.Fields["status"] = docstore.StatusBlocked
		_, err = s.store.Save(ctx, second)
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		got, err := s.store.Get(ctx, base.ID)
		s.Require().NoError(err)
		s.Equal(docstore.StatusActive, got.String("status"))
	})

	s.Run("update of a vanished document returns ErrNotFound", func() {
		saved := s.save(s.user("vanish@example.com", nil))
		s.Require().NoError(s.store.Delete(ctx, saved))

		saved.Fields["status"] = docstore.StatusActive
		_, err := s.store.Save(ctx, saved)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unique index rejects duplicate emails even across racing creates", func() {
		s.save(s.user("uniq@example.com", nil))
		_, err := s.store.Save(ctx, s.user("uniq@example.com", nil))
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *PostgresStoreSuite) TestViews() {
	ctx := context.Background()

	s.Run("email view point lookup", func() {
		s.save(s.user("v1@example.com", nil))
		target := s.save(s.user("v2@example.com", nil))

		rows, err := s.store.Query(ctx, docstore.ViewUserEmail, "v2@example.com", true)
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal(target.ID, rows[0].ID)
		s.Require().NotNil(rows[0].Doc)
	})

	s.Run("status views scan ordered by email", func() {
		s.save(s.user("z@example.com", nil))
		s.save(s.user("a@example.com", nil))
		s.save(s.user("active@example.com", map[string]any{"status": docstore.StatusActive}))

		rows, err := s.store.Query(ctx, docstore.ViewUserPending, "", false)
		s.Require().NoError(err)
		s.Require().Len(rows, 2)
		s.Equal("a@example.com", rows[0].Key)
		s.Equal("z@example.com", rows[1].Key)
	})

	s.Run("log view finds entries by mutated document id", func() {
		s.save(docstore.Document{Doctype: docstore.DoctypeLog, Fields: map[string]any{"doc": "d-1", "timestamp": "2026-01-01T00:00:00.000Z"}})
		s.save(docstore.Document{Doctype: docstore.DoctypeLog, Fields: map[string]any{"doc": "d-2", "timestamp": "2026-01-01T00:00:00.000Z"}})

		rows, err := s.store.Query(ctx, docstore.ViewLogDoc, "d-1", true)
		s.Require().NoError(err)
		s.Len(rows, 1)
	})

	s.Run("all ids cover every doctype", func() {
		a := s.save(s.user("ids@example.com", nil))
		b := s.save(docstore.Document{Doctype: docstore.DoctypeLog, Fields: map[string]any{"doc": a.ID}})

		ids, err := s.store.AllIDs(ctx)
		s.Require().NoError(err)
		s.ElementsMatch([]string{a.ID, b.ID}, ids)
	})
}

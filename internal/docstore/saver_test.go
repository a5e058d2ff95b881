package docstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"custodian/internal/docstore"
	"custodian/internal/docstore/mocks"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
)

// fixedClock pins saver timestamps for deterministic diffs.
func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func testSpec() docstore.DoctypeSpec {
	return docstore.DoctypeSpec{
		Doctype: docstore.DoctypeUser,
		Initialize: func(s *docstore.Saver) {
			s.SetDefault("status", docstore.StatusPending)
		},
		Fields: map[string]docstore.FieldRule{
			"email": {
				Check: func(_ context.Context, _ *docstore.Saver, value any) error {
					if value == "bad" {
						return dErrors.New(dErrors.CodeInvalidInput, "email rejected")
					}
					return nil
				},
				Convert: func(value any) (any, error) {
					return value.(string) + "!", nil
				},
			},
		},
	}
}

type SaverSuite struct {
	suite.Suite
	store *docstore.MemoryStore
}

func (s *SaverSuite) SetupTest() {
	s.store = docstore.NewMemory()
}

func (s *SaverSuite) SetupSubTest() {
	s.SetupTest()
}

func TestSaverSuite(t *testing.T) {
	suite.Run(t, new(SaverSuite))
}

func (s *SaverSuite) TestFieldStaging() {
	s.Run("set runs check then convert", func() {
		saver := docstore.New(s.store, nil, testSpec())
		s.Require().NoError(saver.Set(context.Background(), "email", "a@example.com"))

		v, ok := saver.Current("email")
		s.Require().True(ok)
		s.Equal("a@example.com!", v)
	})

	s.Run("check failure leaves the field unstaged", func() {
		saver := docstore.New(s.store, nil, testSpec())
		err := saver.Set(context.Background(), "email", "bad")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, ok := saver.Current("email")
		s.False(ok)
	})

	s.Run("initialize defaults are applied in create mode", func() {
		saver := docstore.New(s.store, nil, testSpec())
		v, ok := saver.Current("status")
		s.Require().True(ok)
		s.Equal(docstore.StatusPending, v)
	})

	s.Run("fields without a rule pass through unchanged", func() {
		saver := docstore.New(s.store, nil, testSpec())
		s.Require().NoError(saver.Set(context.Background(), "nickname", "zed"))
		v, _ := saver.Current("nickname")
		s.Equal("zed", v)
	})

	s.Run("edit rejects a doctype mismatch", func() {
		doc := docstore.Document{ID: "x", Rev: "1-a", Doctype: docstore.DoctypeLog, Fields: map[string]any{}}
		_, err := docstore.Edit(s.store, nil, testSpec(), doc)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("edit rejects an unpersisted document", func() {
		doc := docstore.Document{Doctype: docstore.DoctypeUser, Fields: map[string]any{}}
		_, err := docstore.Edit(s.store, nil, testSpec(), doc)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *SaverSuite) TestCommitDiff() {
	ctx := context.Background()

	s.Run("create commit records every staged field as changed", func() {
		ctrl := gomock.NewController(s.T())
		rec := mocks.NewMockRecorder(ctrl)

		var gotChanged map[string]any
		var gotDeleted []string
		rec.EXPECT().
			Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), "op@example.com").
			DoAndReturn(func(_ context.Context, _ docstore.Document, changed map[string]any, deleted []string, _ string) error {
				gotChanged = changed
				gotDeleted = deleted
				return nil
			})

		saver := docstore.New(s.store, rec, testSpec(),
			docstore.WithOperator("op@example.com"), docstore.WithClock(fixedClock))
		s.Require().NoError(saver.Set(ctx, "email", "new@example.com"))

		saved, err := saver.Commit(ctx)
		s.Require().NoError(err)
		s.NotEmpty(saved.ID)
		s.Equal("new@example.com!", gotChanged["email"])
		s.Equal(docstore.StatusPending, gotChanged["status"])
		s.Empty(gotDeleted)
	})

	s.Run("edit commit reports only modified and removed fields", func() {
		base, err := s.store.Save(ctx, docstore.Document{
			Doctype: docstore.DoctypeUser,
			Fields: map[string]any{
				"email":    "keep@example.com",
				"status":   docstore.StatusActive,
				"obsolete": "v",
			},
		})
		s.Require().NoError(err)

		ctrl := gomock.NewController(s.T())
		rec := mocks.NewMockRecorder(ctrl)
		var gotChanged map[string]any
		var gotDeleted []string
		rec.EXPECT().
			Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ docstore.Document, changed map[string]any, deleted []string, _ string) error {
				gotChanged = changed
				gotDeleted = deleted
				return nil
			})

		saver, err := docstore.Edit(s.store, rec, testSpec(), base)
		s.Require().NoError(err)
		s.Require().NoError(saver.Set(ctx, "status", docstore.StatusBlocked))
		s.Require().NoError(saver.Set(ctx, "email", "keep@example.com"))
		saver.Unset("obsolete")

		saved, err := saver.Commit(ctx)
		s.Require().NoError(err)
		s.Equal(int64(2), docstore.RevSeq(saved.Rev))

		s.Equal(map[string]any{"status": docstore.StatusBlocked, "email": "keep@example.com!"}, gotChanged)
		s.Equal([]string{"obsolete"}, gotDeleted)

		got, err := s.store.Get(ctx, saved.ID)
		s.Require().NoError(err)
		_, has := got.Fields["obsolete"]
		s.False(has)
	})

	s.Run("no-op edit writes nothing and records nothing", func() {
		base, err := s.store.Save(ctx, docstore.Document{
			Doctype: docstore.DoctypeUser,
			Fields:  map[string]any{"status": docstore.StatusActive},
		})
		s.Require().NoError(err)

		ctrl := gomock.NewController(s.T())
		rec := mocks.NewMockRecorder(ctrl)
		// no Record expectation: any call fails the test

		saver, err := docstore.Edit(s.store, rec, testSpec(), base)
		s.Require().NoError(err)
		s.Require().NoError(saver.Set(ctx, "status", docstore.StatusActive))

		saved, err := saver.Commit(ctx)
		s.Require().NoError(err)
		s.Equal(base.Rev, saved.Rev)
	})

	s.Run("slice values compare structurally, not by reference", func() {
		base, err := s.store.Save(ctx, docstore.Document{
			Doctype: docstore.DoctypeUser,
			Fields:  map[string]any{"teams": []any{"alpha", "beta"}},
		})
		s.Require().NoError(err)

		saver, err := docstore.Edit(s.store, nil, testSpec(), base)
		s.Require().NoError(err)
		s.Require().NoError(saver.Set(ctx, "teams", []string{"alpha", "beta"}))

		saved, err := saver.Commit(ctx)
		s.Require().NoError(err)
		s.Equal(base.Rev, saved.Rev)
	})

	s.Run("abandoned saver persists nothing", func() {
		saver := docstore.New(s.store, nil, testSpec())
		s.Require().NoError(saver.Set(ctx, "email", "ghost@example.com"))

		ids, err := s.store.AllIDs(ctx)
		s.Require().NoError(err)
		s.Empty(ids)
	})
}

func (s *SaverSuite) TestCommitFailureModes() {
	ctx := context.Background()

	s.Run("commit is single-shot", func() {
		saver := docstore.New(s.store, nil, testSpec())
		s.Require().NoError(saver.Set(ctx, "email", "once@example.com"))
		_, err := saver.Commit(ctx)
		s.Require().NoError(err)

		_, err = saver.Commit(ctx)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Require().Error(saver.Set(ctx, "email", "after@example.com"))
	})

	s.Run("store conflict surfaces as CodeConflict and skips audit", func() {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		rec := mocks.NewMockRecorder(ctrl)
		metrics := mocks.NewMockMetrics(ctrl)

		store.EXPECT().Save(gomock.Any(), gomock.Any()).
			Return(docstore.Document{}, sentinel.ErrConflict)
		metrics.EXPECT().IncConflict()

		saver := docstore.New(store, rec, testSpec(), docstore.WithMetrics(metrics))
		s.Require().NoError(saver.Set(ctx, "email", "race@example.com"))

		_, err := saver.Commit(ctx)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("store outage surfaces as CodeUnavailable", func() {
		ctrl := gomock.NewController(s.T())
		store := mocks.NewMockStore(ctrl)
		store.EXPECT().Save(gomock.Any(), gomock.Any()).
			Return(docstore.Document{}, sentinel.ErrUnavailable)

		saver := docstore.New(store, nil, testSpec())
		s.Require().NoError(saver.Set(ctx, "email", "down@example.com"))

		_, err := saver.Commit(ctx)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("recorder failure is swallowed and counted", func() {
		ctrl := gomock.NewController(s.T())
		rec := mocks.NewMockRecorder(ctrl)
		metrics := mocks.NewMockMetrics(ctrl)

		rec.EXPECT().Record(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(errors.New("log store down"))
		metrics.EXPECT().IncCommit()
		metrics.EXPECT().IncAuditFailure()

		saver := docstore.New(s.store, rec, testSpec(), docstore.WithMetrics(metrics))
		s.Require().NoError(saver.Set(ctx, "email", "lossy@example.com"))

		saved, err := saver.Commit(ctx)
		s.Require().NoError(err)
		s.NotEmpty(saved.Rev)
	})
}

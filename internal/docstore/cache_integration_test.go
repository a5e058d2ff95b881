//go:build integration

package docstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodian/internal/docstore"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/testutil/containers"
)

type CacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *docstore.MemoryStore
	cache *docstore.Cache
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *CacheSuite) TearDownSuite() {
	_ = s.redis.Client.Close()
	_ = s.redis.Container.Terminate(context.Background())
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.store = docstore.NewMemory()
	s.cache = docstore.NewCache(s.store, s.redis.Client, time.Minute, nil)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) TestReadThrough() {
	ctx := context.Background()

	s.Run("first read fills the cache, second read serves from it", func() {
		saved, err := s.cache.Save(ctx, docstore.Document{
			Doctype: docstore.DoctypeUser,
			Fields:  map[string]any{"email": "cached@example.com", "status": docstore.StatusPending},
		})
		s.Require().NoError(err)

		first, err := s.cache.Get(ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal("cached@example.com", first.String("email"))

		// Remove from the backing store: a hit must now come from Redis.
		s.Require().NoError(s.store.Delete(ctx, saved))

		second, err := s.cache.Get(ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal(saved.Rev, second.Rev)
		s.Equal(docstore.DoctypeUser, second.Doctype)
		s.Equal("cached@example.com", second.String("email"))
	})

	s.Run("save invalidates so readers never see a stale revision", func() {
		saved, err := s.cache.Save(ctx, docstore.Document{
			Doctype: docstore.DoctypeUser,
			Fields:  map[string]any{"email": "fresh@example.com", "status": docstore.StatusPending},
		})
		s.Require().NoError(err)

		_, err = s.cache.Get(ctx, saved.ID)
		s.Require().NoError(err)

		saved.Fields["status"] = docstore.StatusActive
		updated, err := s.cache.Save(ctx, saved)
		s.Require().NoError(err)

		got, err := s.cache.Get(ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal(updated.Rev, got.Rev)
		s.Equal(docstore.StatusActive, got.String("status"))
	})

	s.Run("delete invalidates the cached copy", func() {
		saved, err := s.cache.Save(ctx, docstore.Document{
			Doctype: docstore.DoctypeUser,
			Fields:  map[string]any{"email": "bye@example.com", "status": docstore.StatusPending},
		})
		s.Require().NoError(err)
		_, err = s.cache.Get(ctx, saved.ID)
		s.Require().NoError(err)

		s.Require().NoError(s.cache.Delete(ctx, saved))
		_, err = s.cache.Get(ctx, saved.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("corrupt cache entries are dropped and re-read from the store", func() {
		saved, err := s.cache.Save(ctx, docstore.Document{
			Doctype: docstore.DoctypeUser,
			Fields:  map[string]any{"email": "mangled@example.com", "status": docstore.StatusPending},
		})
		s.Require().NoError(err)

		s.Require().NoError(s.redis.Client.Set(ctx, "custodian:doc:"+saved.ID, "{not json", 0).Err())

		got, err := s.cache.Get(ctx, saved.ID)
		s.Require().NoError(err)
		s.Equal("mangled@example.com", got.String("email"))
	})
}

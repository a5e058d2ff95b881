//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodian/internal/docstore"
	"custodian/internal/platform/config"
	"custodian/pkg/testutil/containers"
)

const mirrorTopic = "custodian.audit.test"

type MirrorSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func (s *MirrorSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())
}

func (s *MirrorSuite) TearDownSuite() {
	_ = s.redpanda.Container.Terminate(context.Background())
}

func TestMirrorSuite(t *testing.T) {
	suite.Run(t, new(MirrorSuite))
}

func (s *MirrorSuite) TestPublish() {
	s.Run("committed audit entries arrive on the topic", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mirror := NewMirror(16)
		worker, err := NewWorker(config.KafkaConfig{
			Brokers: []string{s.redpanda.Broker},
			Topic:   mirrorTopic,
		}, mirror, nil)
		s.Require().NoError(err)
		s.Require().NotNil(worker)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = worker.Run(ctx)
		}()

		store := docstore.NewMemory()
		log := NewLog(store, WithMirror(mirror))
		subject := docstore.Document{ID: "doc-42", Rev: "1-a", Doctype: docstore.DoctypeUser}
		s.Require().NoError(log.Record(context.Background(),
			subject, map[string]any{"status": "active"}, []string{"activation"}, "admin@example.com"))

		consumer := s.redpanda.Consumer(s.T(), mirrorTopic)
		defer consumer.Close()

		deadline, cancelPoll := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelPoll()
		fetches := consumer.PollFetches(deadline)
		s.Require().NoError(fetches.Err())
		records := fetches.Records()
		s.Require().NotEmpty(records)

		s.Equal("doc-42", string(records[0].Key))
		var payload struct {
			ID       string         `json:"_id"`
			Doc      string         `json:"doc"`
			Doctype  string         `json:"doctype"`
			Changed  map[string]any `json:"changed"`
			Deleted  []string       `json:"deleted"`
			Operator string         `json:"operator"`
		}
		s.Require().NoError(json.Unmarshal(records[0].Value, &payload))
		s.NotEmpty(payload.ID)
		s.Equal("doc-42", payload.Doc)
		s.Equal(docstore.DoctypeUser, payload.Doctype)
		s.Equal(map[string]any{"status": "active"}, payload.Changed)
		s.Equal([]string{"activation"}, payload.Deleted)
		s.Equal("admin@example.com", payload.Operator)

		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			s.Fail("worker did not stop after cancellation")
		}

		s.Require().NoError(worker.Close(context.Background()))
	})
}

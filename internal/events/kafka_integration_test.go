//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"curaledger/internal/events"
	"curaledger/internal/platform/config"
	"curaledger/internal/platform/kafka"
	"curaledger/internal/transfer"
	"curaledger/pkg/domain"
	"curaledger/pkg/testutil/containers"
)

const (
	eventsTopic    = "curaledger.events.it"
	transfersTopic = "curaledger.transfers.it"
)

type KafkaSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	producer *kgo.Client
}

func TestKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redpanda = mgr.GetRedpanda(s.T())

	client, err := kafka.NewClient(config.KafkaConfig{
		Brokers:  []string{s.redpanda.Broker},
		ClientID: "curaledger-it",
	})
	s.Require().NoError(err)
	s.T().Cleanup(client.Close)
	s.producer = client

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopics(ctx, client, eventsTopic, transfersTopic))
	s.Require().NoError(kafka.EnsureTopics(ctx, client, eventsTopic), "existing topics are accepted")
}

func (s *KafkaSuite) consume(topic string, want int) []*kgo.Record {
	consumer := s.redpanda.Client(s.T(),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out []*kgo.Record
	for len(out) < want {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for records")
		fetches.EachRecord(func(r *kgo.Record) {
			out = append(out, r)
		})
	}
	return out
}

func (s *KafkaSuite) TestPublisherWritesKeyedEvents() {
	pub := events.NewKafkaPublisher(s.producer, eventsTopic)
	ctx := context.Background()

	s.Require().NoError(pub.Publish(ctx, events.Event{
		Type: events.DonationRecorded, CaseID: "CASE0001", Actor: "donor-1",
		Asset: domain.NativeAsset, Amount: 500, OccurredAt: time.Now().UTC(),
	}))
	s.Require().NoError(pub.Publish(ctx, events.Event{
		Type: events.VerifierAdded, Subject: "dr-ada", OccurredAt: time.Now().UTC(),
	}))

	records := s.consume(eventsTopic, 2)
	s.Require().Len(records, 2)

	byKey := make(map[string]*kgo.Record, len(records))
	for _, r := range records {
		byKey[string(r.Key)] = r
	}
	s.Require().Contains(byKey, "CASE0001")
	s.Require().Contains(byKey, "dr-ada", "registry events are keyed by subject")

	var got events.Event
	s.Require().NoError(json.Unmarshal(byKey["CASE0001"].Value, &got))
	s.Equal(events.DonationRecorded, got.Type)
	s.Equal(uint64(500), got.Amount)
	s.Equal("event_type", byKey["CASE0001"].Headers[0].Key)
	s.Equal(string(events.DonationRecorded), string(byKey["CASE0001"].Headers[0].Value))
}

func (s *KafkaSuite) TestOutboxProducesTransferBatch() {
	outbox := transfer.NewKafkaOutbox(s.producer, transfersTopic)
	intents := []transfer.Intent{
		{From: "escrow/CASE0002", To: "st-mary-hospital", Asset: domain.NativeAsset, Amount: 5_000_000, CaseID: "CASE0002", Reference: "rel-1/native"},
		{From: "escrow/CASE0002", To: "st-mary-hospital", Asset: "usdc", Amount: 900, CaseID: "CASE0002", Reference: "rel-1/usdc"},
	}
	s.Require().NoError(outbox.Execute(context.Background(), intents))

	records := s.consume(transfersTopic, 2)
	s.Require().Len(records, 2)
	for i, r := range records {
		s.Equal("CASE0002", string(r.Key))
		var got transfer.Intent
		s.Require().NoError(json.Unmarshal(r.Value, &got))
		s.Equal(intents[i], got, "one partition per case keeps batch order")
	}
}

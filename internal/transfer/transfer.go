// Package transfer hands asset movements to the custody layer. The ledger
// decides what moves; an Executor moves it.
package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
)

// Intent is one asset movement between logical accounts.
type Intent struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Asset     domain.AssetID `json:"asset"`
	Amount    uint64         `json:"amount"`
	CaseID    domain.CaseID  `json:"case_id"`
	Reference string         `json:"reference"`
}

// Validate rejects intents the custody layer could not execute.
func (i Intent) Validate() error {
	switch {
	case i.From == "" || i.To == "":
		return dErrors.New(dErrors.CodeValidation, "transfer requires source and destination")
	case i.From == i.To:
		return dErrors.New(dErrors.CodeValidation, "transfer source and destination must differ")
	case i.Amount == 0:
		return dErrors.New(dErrors.CodeInvalidAmount, "transfer amount must be greater than zero")
	}
	return nil
}

// Executor executes a batch of intents. The batch is all or nothing: an error
// means none of the intents may be considered executed.
type Executor interface {
	Execute(ctx context.Context, intents []Intent) error
}

// LogExecutor records intents in the log. Used when no custody backend is
// configured.
type LogExecutor struct {
	logger *slog.Logger
}

func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	return &LogExecutor{logger: logger}
}

func (e *LogExecutor) Execute(ctx context.Context, intents []Intent) error {
	for _, in := range intents {
		if err := in.Validate(); err != nil {
			return err
		}
	}
	for _, in := range intents {
		e.logger.InfoContext(ctx, "transfer executed",
			"case_id", in.CaseID,
			"from", in.From,
			"to", in.To,
			"asset", in.Asset,
			"amount", in.Amount,
			"reference", in.Reference,
		)
	}
	return nil
}

// Producer is the slice of *kgo.Client the outbox needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaOutbox publishes intents to the custody topic. The batch is produced
// synchronously, and the caller's case lock is held until the broker acks.
type KafkaOutbox struct {
	producer Producer
	topic    string
}

func NewKafkaOutbox(producer Producer, topic string) *KafkaOutbox {
	return &KafkaOutbox{producer: producer, topic: topic}
}

func (o *KafkaOutbox) Execute(ctx context.Context, intents []Intent) error {
	records := make([]*kgo.Record, 0, len(intents))
	for _, in := range intents {
		if err := in.Validate(); err != nil {
			return err
		}
		value, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode transfer: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: o.topic,
			Key:   []byte(in.CaseID),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "reference", Value: []byte(in.Reference)},
			},
		})
	}
	if len(records) == 0 {
		return nil
	}
	if err := o.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transfer outbox unavailable")
	}
	return nil
}

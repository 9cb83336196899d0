package rowflow

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RowConsumer yields rows with provenance metadata populated. Commit
// persists the offsets of every row returned by earlier PollRows calls.
type RowConsumer interface {
	PollRows(ctx context.Context) ([]*Row, error)
	Commit(ctx context.Context) error
	Close()
}

// KafkaRowConsumer implements RowConsumer over a kgo consumer group
// client. Offsets are marked as records are handed out and committed
// explicitly via Commit.
type KafkaRowConsumer struct {
	client *kgo.Client
	topics map[string]*Topic
	log    logr.Logger
}

// NewRowConsumer joins the given consumer group subscribed to the given
// topics. Each topic supplies the deserializers for its own records.
func NewRowConsumer(brokers []string, group string, topics []*Topic, log logr.Logger) (*KafkaRowConsumer, error) {
	byName := make(map[string]*Topic, len(topics))
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		byName[t.Name()] = t
		names = append(names, t.Name())
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(names...),
		kgo.AutoCommitMarks(),
	)
	if err != nil {
		return nil, fmt.Errorf("create consumer client: %w", err)
	}
	return &KafkaRowConsumer{client: client, topics: byName, log: log}, nil
}

// PollRows fetches the next batch of records and deserializes them. A
// deserialization failure aborts the poll with the offending record left
// unmarked.
func (c *KafkaRowConsumer) PollRows(ctx context.Context) ([]*Row, error) {
	fetches := c.client.PollFetches(ctx)
	if errs := fetches.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("poll %s[%d]: %w", errs[0].Topic, errs[0].Partition, errs[0].Err)
	}

	var rows []*Row
	var iterErr error
	fetches.EachRecord(func(rec *kgo.Record) {
		if iterErr != nil {
			return
		}
		topic, ok := c.topics[rec.Topic]
		if !ok {
			iterErr = fmt.Errorf("rowflow: received record for unknown topic %q", rec.Topic)
			return
		}
		row, err := topic.RowDeserialize(rec)
		if err != nil {
			iterErr = err
			return
		}
		c.client.MarkCommitRecords(rec)
		rows = append(rows, row)
	})
	if iterErr != nil {
		return nil, iterErr
	}
	return rows, nil
}

// Commit flushes all marked offsets to the group coordinator.
func (c *KafkaRowConsumer) Commit(ctx context.Context) error {
	return c.client.CommitMarkedOffsets(ctx)
}

func (c *KafkaRowConsumer) Close() {
	c.client.Close()
}

var _ RowConsumer = (*KafkaRowConsumer)(nil)

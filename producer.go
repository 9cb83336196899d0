package rowflow

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// RowProducer publishes rows to topics. It is the producing collaborator
// contract consumed by ToTopic steps.
type RowProducer interface {
	ProduceRow(ctx context.Context, row *Row, topic *Topic) error
	Close()
}

// KafkaRowProducer implements RowProducer over a kgo client.
type KafkaRowProducer struct {
	client    *kgo.Client
	ownClient bool
}

// NewRowProducer connects a producer to the given brokers.
func NewRowProducer(brokers []string) (*KafkaRowProducer, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create producer client: %w", err)
	}
	return &KafkaRowProducer{client: client, ownClient: true}, nil
}

// NewRowProducerFromClient wraps an existing client; the caller keeps
// ownership of its lifecycle.
func NewRowProducerFromClient(client *kgo.Client) *KafkaRowProducer {
	return &KafkaRowProducer{client: client}
}

// ProduceRow serializes the row for the topic and produces it
// synchronously. Broker errors propagate unmodified; retry policy lives in
// the client configuration, not here.
func (p *KafkaRowProducer) ProduceRow(ctx context.Context, row *Row, topic *Topic) error {
	rec, err := topic.RowSerialize(row)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce to %q: %w", topic.Name(), err)
	}
	return nil
}

func (p *KafkaRowProducer) Close() {
	if p.ownClient {
		p.client.Close()
	}
}

var _ RowProducer = (*KafkaRowProducer)(nil)

package rowflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/multierr"
)

// Admin is the administrative collaborator contract consumed by the
// TopicManager. InspectTopics maps each requested name to the broker's
// actual configuration, or nil when the topic does not exist.
type Admin interface {
	CreateTopics(ctx context.Context, timeout time.Duration, configs ...*TopicConfig) error
	InspectTopics(ctx context.Context, names []string) (map[string]*TopicConfig, error)
}

// KafkaAdmin implements Admin against a Kafka cluster.
type KafkaAdmin struct {
	client *kgo.Client
	adm    *kadm.Client
}

// NewKafkaAdmin connects an admin client to the given brokers.
func NewKafkaAdmin(brokers []string) (*KafkaAdmin, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create admin client: %w", err)
	}
	return NewKafkaAdminFromClient(client), nil
}

// NewKafkaAdminFromClient wraps an existing client. The caller keeps
// ownership of the client's lifecycle.
func NewKafkaAdminFromClient(client *kgo.Client) *KafkaAdmin {
	return &KafkaAdmin{
		client: client,
		adm:    kadm.NewClient(client),
	}
}

func (a *KafkaAdmin) Close() {
	a.client.Close()
}

// CreateTopics issues one CreateTopics request carrying every topic with its
// own partition count, replication factor, and extra config. Topics that
// already exist are not an error; per-topic failures are aggregated. No
// retries happen here.
func (a *KafkaAdmin) CreateTopics(ctx context.Context, timeout time.Duration, configs ...*TopicConfig) error {
	if len(configs) == 0 {
		return nil
	}

	req := kmsg.NewPtrCreateTopicsRequest()
	req.TimeoutMillis = int32(timeout.Milliseconds())
	for _, cfg := range configs {
		reqTopic := kmsg.NewCreateTopicsRequestTopic()
		reqTopic.Topic = cfg.Name
		reqTopic.NumPartitions = int32(cfg.NumPartitions)
		reqTopic.ReplicationFactor = int16(cfg.ReplicationFactor)
		for k, v := range cfg.ExtraConfig {
			reqConfig := kmsg.NewCreateTopicsRequestTopicConfig()
			reqConfig.Name = k
			value := v
			reqConfig.Value = &value
			reqTopic.Configs = append(reqTopic.Configs, reqConfig)
		}
		req.Topics = append(req.Topics, reqTopic)
	}

	resp, err := req.RequestWith(ctx, a.client)
	if err != nil {
		return fmt.Errorf("create topics request: %w", err)
	}

	var errs error
	for _, topic := range resp.Topics {
		err := kerr.ErrorForCode(topic.ErrorCode)
		if err == nil || errors.Is(err, kerr.TopicAlreadyExists) {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("create topic %q: %w", topic.Topic, err))
	}
	return errs
}

// InspectTopics fetches partition metadata and dynamic configs for the
// given topics in one batched inspection.
func (a *KafkaAdmin) InspectTopics(ctx context.Context, names []string) (map[string]*TopicConfig, error) {
	out := make(map[string]*TopicConfig, len(names))
	if len(names) == 0 {
		return out, nil
	}

	details, err := a.adm.ListTopics(ctx, names...)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}

	var existing []string
	for _, name := range names {
		detail, ok := details[name]
		if !ok || detail.Err != nil {
			out[name] = nil
			continue
		}
		replication := 0
		if p, ok := detail.Partitions[0]; ok {
			replication = len(p.Replicas)
		}
		out[name] = &TopicConfig{
			Name:              name,
			NumPartitions:     len(detail.Partitions),
			ReplicationFactor: replication,
			ExtraConfig:       map[string]string{},
		}
		existing = append(existing, name)
	}

	if len(existing) == 0 {
		return out, nil
	}

	resourceConfigs, err := a.adm.DescribeTopicConfigs(ctx, existing...)
	if err != nil {
		return nil, fmt.Errorf("describe topic configs: %w", err)
	}
	for _, rc := range resourceConfigs {
		if rc.Err != nil {
			return nil, fmt.Errorf("describe configs for topic %q: %w", rc.Name, rc.Err)
		}
		cfg, ok := out[rc.Name]
		if !ok || cfg == nil {
			continue
		}
		for _, c := range rc.Configs {
			if c.Value != nil {
				cfg.ExtraConfig[c.Key] = *c.Value
			}
		}
	}
	return out, nil
}

var _ Admin = (*KafkaAdmin)(nil)

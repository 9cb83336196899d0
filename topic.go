package rowflow

import (
	"fmt"
	"sort"

	"github.com/rowflow/rowflow/kserde"
	"github.com/twmb/franz-go/pkg/kgo"
)

// TopicConfig describes the physical configuration a topic is created and
// validated with. Equality is structural.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	ExtraConfig       map[string]string
}

// Clone returns a deep copy. Configs are cloned defensively whenever they
// cross an ownership boundary, so callers may keep mutating their own copy.
func (c *TopicConfig) Clone() *TopicConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.ExtraConfig != nil {
		clone.ExtraConfig = make(map[string]string, len(c.ExtraConfig))
		for k, v := range c.ExtraConfig {
			clone.ExtraConfig[k] = v
		}
	}
	return &clone
}

// ApplyExtraDefaults merges default extra-config settings under the
// explicit ones: defaults apply first, explicit keys win.
func (c *TopicConfig) ApplyExtraDefaults(defaults map[string]string) {
	if len(defaults) == 0 {
		return
	}
	if c.ExtraConfig == nil {
		c.ExtraConfig = make(map[string]string, len(defaults))
	}
	for k, v := range defaults {
		if _, ok := c.ExtraConfig[k]; !ok {
			c.ExtraConfig[k] = v
		}
	}
}

// RestrictExtraConfig drops every extra-config key not in the allow-list.
func (c *TopicConfig) RestrictExtraConfig(allowed map[string]struct{}) {
	for k := range c.ExtraConfig {
		if _, ok := allowed[k]; !ok {
			delete(c.ExtraConfig, k)
		}
	}
}

// Equal reports full structural equality, including the complete
// extra-config mapping.
func (c *TopicConfig) Equal(other *TopicConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Name != other.Name ||
		c.NumPartitions != other.NumPartitions ||
		c.ReplicationFactor != other.ReplicationFactor ||
		len(c.ExtraConfig) != len(other.ExtraConfig) {
		return false
	}
	for k, v := range c.ExtraConfig {
		if ov, ok := other.ExtraConfig[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (c *TopicConfig) String() string {
	if c == nil {
		return "<nil>"
	}
	keys := make([]string, 0, len(c.ExtraConfig))
	for k := range c.ExtraConfig {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	extra := "{"
	for i, k := range keys {
		if i > 0 {
			extra += ", "
		}
		extra += fmt.Sprintf("%s=%s", k, c.ExtraConfig[k])
	}
	extra += "}"
	return fmt.Sprintf("TopicConfig(name=%s, partitions=%d, replication=%d, extra=%s)",
		c.Name, c.NumPartitions, c.ReplicationFactor, extra)
}

// Topic is a named, partitioned log together with the serialization roles
// used when producing to it or consuming from it. Config is nil when the
// topic is externally managed and not owned for creation.
type Topic struct {
	name       string
	config     *TopicConfig
	keySerde   kserde.Serde[[]byte]
	valueSerde kserde.Serde[map[string]any]
}

// TopicOption configures a Topic during construction.
type TopicOption func(*Topic)

// WithKeySerde overrides the key serde. Default is the pass-through bytes
// serde.
func WithKeySerde(s kserde.Serde[[]byte]) TopicOption {
	return func(t *Topic) {
		t.keySerde = s
	}
}

// WithValueSerde overrides the value serde. Default is JSON.
func WithValueSerde(s kserde.Serde[map[string]any]) TopicOption {
	return func(t *Topic) {
		t.valueSerde = s
	}
}

// NewTopic creates a Topic value object. Most callers should declare topics
// through a TopicManager instead, which also registers them for creation
// and validation.
func NewTopic(name string, config *TopicConfig, opts ...TopicOption) *Topic {
	t := &Topic{
		name:       name,
		config:     config,
		keySerde:   kserde.Bytes,
		valueSerde: kserde.JSON[map[string]any](),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Topic) Name() string { return t.name }

func (t *Topic) Config() *TopicConfig { return t.config }

// RowSerialize encodes a row into a producible record for this topic.
func (t *Topic) RowSerialize(row *Row) (*kgo.Record, error) {
	key, err := t.keySerde.Serializer(row.Key)
	if err != nil {
		return nil, fmt.Errorf("serialize key for topic %q: %w", t.name, err)
	}
	value, err := t.valueSerde.Serializer(row.Value)
	if err != nil {
		return nil, fmt.Errorf("serialize value for topic %q: %w", t.name, err)
	}
	return &kgo.Record{
		Topic:     t.name,
		Key:       key,
		Value:     value,
		Headers:   headersToKgo(row.Headers),
		Timestamp: row.Timestamp,
	}, nil
}

// RowDeserialize decodes a consumed record into a row with provenance
// metadata populated.
func (t *Topic) RowDeserialize(rec *kgo.Record) (*Row, error) {
	key, err := t.keySerde.Deserializer(rec.Key)
	if err != nil {
		return nil, fmt.Errorf("deserialize key from topic %q: %w", rec.Topic, err)
	}
	value, err := t.valueSerde.Deserializer(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("deserialize value from topic %q: %w", rec.Topic, err)
	}
	return &Row{
		Value:     value,
		Key:       key,
		Timestamp: rec.Timestamp,
		Headers:   headersFromKgo(rec.Headers),
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
	}, nil
}

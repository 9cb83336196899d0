package rowflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ValidationLevel is the strictness used when comparing expected topic state
// against the broker.
type ValidationLevel int

const (
	// ValidationNone performs no validation at all.
	ValidationNone ValidationLevel = iota
	// ValidationExists only checks that each topic exists on the broker.
	ValidationExists
	// ValidationRequired checks existence, partition count, replication
	// factor, and the extra-config keys the caller declared.
	ValidationRequired
	// ValidationAll is ValidationRequired plus exact equality of the full
	// actual extra-config mapping.
	ValidationAll
)

const (
	defaultNumPartitions     = 2
	defaultReplicationFactor = 1
	defaultCreateTimeout     = 60 * time.Second
)

func formatChangelogName(consumerGroup, sourceTopicName, suffix string) string {
	return fmt.Sprintf("changelog__%s--%s--%s", consumerGroup, sourceTopicName, suffix)
}

// TopicManager is the single authority for every topic and changelog topic
// the running process knows about. Ordinary declaration happens during the
// single-threaded startup phase; ChangelogTopic alone may be called from
// concurrent rebalance callbacks and is guarded accordingly.
type TopicManager struct {
	admin Admin
	log   logr.Logger

	createTimeout     time.Duration
	numPartitions     int
	replicationFactor int
	extraDefaults     map[string]string
	changelogDefaults map[string]string
	changelogImports  []string
	applyTopicPrefix  func(name string) string

	mu              sync.Mutex
	topics          map[string]*Topic
	changelogTopics map[string]map[string]*Topic
}

// TopicManagerOption configures a TopicManager.
type TopicManagerOption func(*TopicManager)

// WithCreateTimeout sets the timeout passed to the admin collaborator for
// topic creation.
func WithCreateTimeout(timeout time.Duration) TopicManagerOption {
	return func(tm *TopicManager) {
		tm.createTimeout = timeout
	}
}

// WithDefaultNumPartitions sets the partition count used when a declared
// config leaves it unset.
func WithDefaultNumPartitions(n int) TopicManagerOption {
	return func(tm *TopicManager) {
		tm.numPartitions = n
	}
}

// WithDefaultReplicationFactor sets the replication factor used when a
// declared config leaves it unset.
func WithDefaultReplicationFactor(n int) TopicManagerOption {
	return func(tm *TopicManager) {
		tm.replicationFactor = n
	}
}

// WithTopicPrefix installs a naming hook applied to every declared topic
// name. Platform integrations override this; the default is identity.
func WithTopicPrefix(fn func(name string) string) TopicManagerOption {
	return func(tm *TopicManager) {
		tm.applyTopicPrefix = fn
	}
}

// WithTopicManagerLogger sets the logger.
func WithTopicManagerLogger(log logr.Logger) TopicManagerOption {
	return func(tm *TopicManager) {
		tm.log = log
	}
}

// NewTopicManager creates a TopicManager backed by the given admin
// collaborator.
func NewTopicManager(admin Admin, opts ...TopicManagerOption) *TopicManager {
	tm := &TopicManager{
		admin:             admin,
		log:               logr.Discard(),
		createTimeout:     defaultCreateTimeout,
		numPartitions:     defaultNumPartitions,
		replicationFactor: defaultReplicationFactor,
		extraDefaults:     map[string]string{},
		changelogDefaults: map[string]string{"cleanup.policy": "compact"},
		changelogImports:  []string{"retention.bytes", "retention.ms"},
		applyTopicPrefix:  func(name string) string { return name },
		topics:            map[string]*Topic{},
		changelogTopics:   map[string]map[string]*Topic{},
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Topics returns a copy of the topic registry keyed by final topic name.
func (tm *TopicManager) Topics() map[string]*Topic {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make(map[string]*Topic, len(tm.topics))
	maps.Copy(out, tm.topics)
	return out
}

// TopicsList returns the registered topics ordered by name.
func (tm *TopicManager) TopicsList() []*Topic {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.topicsListLocked()
}

func (tm *TopicManager) topicsListLocked() []*Topic {
	names := maps.Keys(tm.topics)
	slices.Sort(names)
	out := make([]*Topic, 0, len(names))
	for _, name := range names {
		out = append(out, tm.topics[name])
	}
	return out
}

// ChangelogTopics returns the changelog registry as
// {source topic name: {suffix: Topic}}.
func (tm *TopicManager) ChangelogTopics() map[string]map[string]*Topic {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make(map[string]map[string]*Topic, len(tm.changelogTopics))
	for source, bySuffix := range tm.changelogTopics {
		inner := make(map[string]*Topic, len(bySuffix))
		maps.Copy(inner, bySuffix)
		out[source] = inner
	}
	return out
}

// ChangelogTopicsList returns all changelog topics ordered by source topic
// name and suffix.
func (tm *TopicManager) ChangelogTopicsList() []*Topic {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.changelogTopicsListLocked()
}

func (tm *TopicManager) changelogTopicsListLocked() []*Topic {
	sources := maps.Keys(tm.changelogTopics)
	slices.Sort(sources)
	var out []*Topic
	for _, source := range sources {
		suffixes := maps.Keys(tm.changelogTopics[source])
		slices.Sort(suffixes)
		for _, suffix := range suffixes {
			out = append(out, tm.changelogTopics[source][suffix])
		}
	}
	return out
}

// AllTopics returns every registered topic and changelog topic.
func (tm *TopicManager) AllTopics() []*Topic {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return append(tm.topicsListLocked(), tm.changelogTopicsListLocked()...)
}

// TopicConfig builds a TopicConfig with process-wide defaults filled in for
// unset numeric fields, and the default extra-config merged under the
// explicit settings.
func (tm *TopicManager) TopicConfig(name string, numPartitions, replicationFactor int, extraConfig map[string]string) *TopicConfig {
	return tm.topicConfigWithDefaults(name, numPartitions, replicationFactor, extraConfig, tm.extraDefaults)
}

func (tm *TopicManager) topicConfigWithDefaults(name string, numPartitions, replicationFactor int, extraConfig, extraDefaults map[string]string) *TopicConfig {
	if numPartitions == 0 {
		numPartitions = tm.numPartitions
	}
	if replicationFactor == 0 {
		replicationFactor = tm.replicationFactor
	}
	cfg := &TopicConfig{
		Name:              name,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	}
	if extraConfig != nil {
		cfg.ExtraConfig = make(map[string]string, len(extraConfig))
		for k, v := range extraConfig {
			cfg.ExtraConfig[k] = v
		}
	}
	cfg.ApplyExtraDefaults(extraDefaults)
	return cfg
}

// Topic declares a topic owned for creation and registers it under its
// final (prefixed) name. A nil config is replaced with the manager's
// defaults; a given config has its unset fields defaulted. Re-declaring a
// name overwrites the prior registration.
func (tm *TopicManager) Topic(name string, config *TopicConfig, opts ...TopicOption) *Topic {
	name = tm.applyTopicPrefix(name)
	var cfg *TopicConfig
	if config != nil {
		cfg = tm.topicConfigWithDefaults(name, config.NumPartitions, config.ReplicationFactor, config.ExtraConfig, tm.extraDefaults)
	} else {
		cfg = tm.topicConfigWithDefaults(name, 0, 0, nil, tm.extraDefaults)
	}
	return tm.register(NewTopic(name, cfg, opts...))
}

// ExternalTopic declares a topic that is managed outside this process: it
// is registered for consumption/production but carries no creation config.
func (tm *TopicManager) ExternalTopic(name string, opts ...TopicOption) *Topic {
	name = tm.applyTopicPrefix(name)
	return tm.register(NewTopic(name, nil, opts...))
}

func (tm *TopicManager) register(topic *Topic) *Topic {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	// Last writer wins on purpose; re-declaration of a topic is treated as
	// idempotent.
	tm.topics[topic.Name()] = topic
	return topic
}

// ChangelogTopic derives the compacted changelog topic for a stateful
// operator over the given source topic. The name is deterministic across
// restarts, so the topic is rediscoverable without any side table. The
// first call for a (source, suffix) pair wins; concurrent and subsequent
// calls return the cached Topic.
//
// The base configuration is taken from the broker's actual source topic
// state, falling back to the locally declared config when the broker does
// not have the topic yet. Only the allow-listed extra settings are
// imported, and the compaction policy is never importable: changelog topics
// are unconditionally compacted.
func (tm *TopicManager) ChangelogTopic(ctx context.Context, sourceTopicName, suffix, consumerGroup string, configsToImport ...string) (*Topic, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if topic, ok := tm.changelogTopics[sourceTopicName][suffix]; ok {
		return topic, nil
	}

	name := formatChangelogName(consumerGroup, sourceTopicName, suffix)

	if len(configsToImport) == 0 {
		configsToImport = tm.changelogImports
	}
	// Copy before dropping cleanup.policy so a caller-held slice is never
	// mutated across calls.
	imports := make(map[string]struct{}, len(configsToImport))
	for _, k := range configsToImport {
		imports[k] = struct{}{}
	}
	delete(imports, "cleanup.policy")

	inspected, err := tm.admin.InspectTopics(ctx, []string{sourceTopicName})
	if err != nil {
		return nil, fmt.Errorf("inspect source topic %q: %w", sourceTopicName, err)
	}
	base := inspected[sourceTopicName]
	if base == nil {
		source, ok := tm.topics[sourceTopicName]
		if !ok || source.Config() == nil {
			return nil, fmt.Errorf("%w: %q is neither on the broker nor declared locally", ErrMissingSourceTopic, sourceTopicName)
		}
		base = source.Config().Clone()
	}
	base.RestrictExtraConfig(imports)

	cfg := tm.topicConfigWithDefaults(name, base.NumPartitions, base.ReplicationFactor, base.ExtraConfig, tm.changelogDefaults)
	topic := NewTopic(name, cfg)

	bySuffix, ok := tm.changelogTopics[sourceTopicName]
	if !ok {
		bySuffix = map[string]*Topic{}
		tm.changelogTopics[sourceTopicName] = bySuffix
	}
	bySuffix[suffix] = topic
	tm.log.Info("derived changelog topic", "topic", name, "source", sourceTopicName, "suffix", suffix)
	return topic, nil
}

// CreateTopics creates the given topics via the admin collaborator. Every
// topic must carry a config. Failures propagate; there is no retry loop.
func (tm *TopicManager) CreateTopics(ctx context.Context, topics []*Topic) error {
	if len(topics) == 0 {
		tm.log.Info("no topics provided for creation, skipping")
		return nil
	}
	configs := make([]*TopicConfig, 0, len(topics))
	var missing []string
	for _, topic := range topics {
		if topic.Config() == nil {
			missing = append(missing, topic.Name())
			continue
		}
		configs = append(configs, topic.Config())
	}
	if len(missing) > 0 {
		return fmt.Errorf("rowflow: topics %v have no creation config", missing)
	}
	tm.log.Info("creating topics", "count", len(configs))
	return tm.admin.CreateTopics(ctx, tm.createTimeout, configs...)
}

// CreateAllTopics creates every topic and changelog topic registered on
// this manager.
func (tm *TopicManager) CreateAllTopics(ctx context.Context) error {
	return tm.CreateTopics(ctx, tm.AllTopics())
}

// ValidateTopics compares the given topics against actual broker state at
// the given strictness. All issues found are collected and returned as one
// TopicValidationError; validation never fails fast on the first mismatch.
func (tm *TopicManager) ValidateTopics(ctx context.Context, topics []*Topic, level ValidationLevel) error {
	if level == ValidationNone || len(topics) == 0 {
		return nil
	}

	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		names = append(names, topic.Name())
	}
	actualConfigs, err := tm.admin.InspectTopics(ctx, names)
	if err != nil {
		return fmt.Errorf("inspect topics: %w", err)
	}

	issues := map[string]*ValidationIssue{}
	for _, topic := range topics {
		actual := actualConfigs[topic.Name()]
		if actual == nil {
			issues[topic.Name()] = &ValidationIssue{Missing: true}
			continue
		}
		if level == ValidationExists {
			continue
		}
		expected := topic.Config()
		if expected == nil {
			// Externally managed topic; existence is all we can expect.
			continue
		}

		compared := actual.Clone()
		if level == ValidationRequired {
			// Only the settings the caller declared participate.
			declared := make(map[string]struct{}, len(expected.ExtraConfig))
			for k := range expected.ExtraConfig {
				declared[k] = struct{}{}
			}
			compared.RestrictExtraConfig(declared)
		}
		if !expected.Equal(compared) {
			issues[topic.Name()] = &ValidationIssue{
				Expected: expected.Clone(),
				Actual:   actual,
			}
		}
	}

	if len(issues) > 0 {
		return &TopicValidationError{Issues: issues}
	}
	tm.log.Info("all topics validated", "count", len(topics))
	return nil
}

// ValidateAllTopics validates every topic and changelog topic registered on
// this manager.
func (tm *TopicManager) ValidateAllTopics(ctx context.Context, level ValidationLevel) error {
	return tm.ValidateTopics(ctx, tm.AllTopics(), level)
}

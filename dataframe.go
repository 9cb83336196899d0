package rowflow

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// ApplyFunc is a user-supplied transform over the row value. Its return
// contract: nil means the value was mutated in place and the row is kept; a
// map[string]any replaces the value wholesale; a []map[string]any is only
// allowed with expand and branches the row; anything else is
// ErrInvalidResultType.
type ApplyFunc func(value map[string]any) (any, error)

// StreamingDataFrame is the builder façade over a Pipeline. Each builder
// call appends steps to the pipeline and returns the dataframe for
// chaining. Build the chain fully before processing records; Process is
// then safe to call concurrently across partition workers.
type StreamingDataFrame struct {
	id        string
	pipeline  *Pipeline
	topicsIn  map[string]*Topic
	topicsOut map[string]*Topic
	consumer  RowConsumer
	producer  RowProducer
	log       logr.Logger
}

// DataFrameOption configures a StreamingDataFrame.
type DataFrameOption func(*StreamingDataFrame)

// WithDataFrameLogger sets the logger used by the dataframe and its
// pipeline.
func WithDataFrameLogger(log logr.Logger) DataFrameOption {
	return func(df *StreamingDataFrame) {
		df.log = log
	}
}

// NewStreamingDataFrame creates a dataframe bound to the given input
// topics. At least one input topic is required.
func NewStreamingDataFrame(topicsIn []*Topic, opts ...DataFrameOption) (*StreamingDataFrame, error) {
	if len(topicsIn) == 0 {
		return nil, ErrNoInputTopics
	}
	df := &StreamingDataFrame{
		id:        uuid.NewString(),
		topicsIn:  make(map[string]*Topic, len(topicsIn)),
		topicsOut: map[string]*Topic{},
		log:       logr.Discard(),
	}
	for _, topic := range topicsIn {
		df.topicsIn[topic.Name()] = topic
	}
	for _, opt := range opts {
		opt(df)
	}
	df.pipeline = NewPipeline(df.id, df.log)
	return df, nil
}

func (df *StreamingDataFrame) ID() string { return df.id }

// TopicsIn returns the input topics keyed by name.
func (df *StreamingDataFrame) TopicsIn() map[string]*Topic { return df.topicsIn }

// TopicsOut returns the topics registered as outputs via ToTopic.
func (df *StreamingDataFrame) TopicsOut() map[string]*Topic { return df.topicsOut }

// Col references a field of the row value; it builds an expression and does
// not touch the pipeline.
func (df *StreamingDataFrame) Col(name string) *Column { return Col(name) }

// Select appends a step replacing the row value with the sub-mapping
// restricted to exactly the given keys. A missing key fails the row with
// ErrFieldNotFound.
func (df *StreamingDataFrame) Select(keys ...string) *StreamingDataFrame {
	return df.apply(func(_ context.Context, row *Row) ([]*Row, error) {
		value := make(map[string]any, len(keys))
		for _, k := range keys {
			v, ok := row.Get(k)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, k)
			}
			value[k] = v
		}
		row.Value = value
		return []*Row{row}, nil
	}, fmt.Sprintf("select:%v", keys))
}

// Filter appends a predicate gate: the row passes through unchanged when
// the expression evaluates truthy and is dropped otherwise.
func (df *StreamingDataFrame) Filter(col *Column) *StreamingDataFrame {
	return df.apply(func(_ context.Context, row *Row) ([]*Row, error) {
		v, err := col.Eval(row)
		if err != nil {
			return nil, err
		}
		if !Truthy(v) {
			return nil, nil
		}
		return []*Row{row}, nil
	}, "filter")
}

// Set appends a step assigning a field of the row value to either a literal
// or the result of evaluating a column expression against the row.
func (df *StreamingDataFrame) Set(key string, value any) *StreamingDataFrame {
	return df.apply(func(_ context.Context, row *Row) ([]*Row, error) {
		v := value
		if col, ok := value.(*Column); ok {
			evaluated, err := col.Eval(row)
			if err != nil {
				return nil, err
			}
			v = evaluated
		}
		row.Set(key, v)
		return []*Row{row}, nil
	}, "setitem:"+key)
}

// Apply appends a step invoking fn on the row value; see ApplyFunc for the
// return contract. With expand, a returned slice of mappings branches the
// row into one clone per mapping.
func (df *StreamingDataFrame) Apply(fn ApplyFunc, expand bool) *StreamingDataFrame {
	return df.apply(func(_ context.Context, row *Row) ([]*Row, error) {
		result, err := fn(row.Value)
		if err != nil {
			return nil, err
		}
		switch res := result.(type) {
		case nil:
			// Mutated in place.
			return []*Row{row}, nil
		case map[string]any:
			row.Value = res
			return []*Row{row}, nil
		case []map[string]any:
			if !expand {
				return nil, fmt.Errorf("%w: returning a slice is not allowed unless expand is set", ErrInvalidResultType)
			}
			out := make([]*Row, 0, len(res))
			for _, value := range res {
				out = append(out, row.CloneWithValue(value))
			}
			return out, nil
		default:
			return nil, fmt.Errorf("%w: only map[string]any, []map[string]any or nil allowed, got %T", ErrInvalidResultType, result)
		}
	}, "apply:"+funcName(fn))
}

// ToTopic appends a step producing the row to the given topic through the
// bound producer and records the topic as a tracked output. The row passes
// through unchanged.
func (df *StreamingDataFrame) ToTopic(topic *Topic) *StreamingDataFrame {
	df.topicsOut[topic.Name()] = topic
	return df.apply(func(ctx context.Context, row *Row) ([]*Row, error) {
		producer := df.producer
		if producer == nil {
			return nil, ErrProducerNotBound
		}
		if err := producer.ProduceRow(ctx, row, topic); err != nil {
			return nil, err
		}
		return []*Row{row}, nil
	}, "to_topic:"+topic.Name())
}

// Process executes the built pipeline on a row. The result is nil when the
// row was filtered, one row for the common path, or several rows after an
// expanding step. Errors from user steps propagate unmodified.
func (df *StreamingDataFrame) Process(ctx context.Context, row *Row) ([]*Row, error) {
	return df.pipeline.Process(ctx, row)
}

// Clone branches the dataframe: the clone shares the already-built step
// prefix with the original, and steps appended to either afterwards stay
// invisible to the other.
func (df *StreamingDataFrame) Clone() *StreamingDataFrame {
	clone := &StreamingDataFrame{
		id:        uuid.NewString(),
		pipeline:  df.pipeline.Clone(),
		topicsIn:  make(map[string]*Topic, len(df.topicsIn)),
		topicsOut: make(map[string]*Topic, len(df.topicsOut)),
		consumer:  df.consumer,
		producer:  df.producer,
		log:       df.log,
	}
	for k, v := range df.topicsIn {
		clone.topicsIn[k] = v
	}
	for k, v := range df.topicsOut {
		clone.topicsOut[k] = v
	}
	return clone
}

// Consumer returns the bound consumer collaborator.
func (df *StreamingDataFrame) Consumer() (RowConsumer, error) {
	if df.consumer == nil {
		return nil, ErrConsumerNotBound
	}
	return df.consumer, nil
}

// Producer returns the bound producer collaborator.
func (df *StreamingDataFrame) Producer() (RowProducer, error) {
	if df.producer == nil {
		return nil, ErrProducerNotBound
	}
	return df.producer, nil
}

// SetConsumer binds the consumer. Must happen before processing begins.
func (df *StreamingDataFrame) SetConsumer(consumer RowConsumer) {
	df.consumer = consumer
}

// SetProducer binds the producer. Must happen before processing begins.
func (df *StreamingDataFrame) SetProducer(producer RowProducer) {
	df.producer = producer
}

// Pipeline exposes the underlying pipeline for diagnostics.
func (df *StreamingDataFrame) Pipeline() *Pipeline { return df.pipeline }

func (df *StreamingDataFrame) apply(fn RowApplier, name string) *StreamingDataFrame {
	df.pipeline.Apply(fn, name)
	return df
}

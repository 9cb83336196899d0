package rowflow

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
)

type producedRow struct {
	row   *Row
	topic string
}

type fakeProducer struct {
	produced []producedRow
}

func (p *fakeProducer) ProduceRow(_ context.Context, row *Row, topic *Topic) error {
	p.produced = append(p.produced, producedRow{row: row, topic: topic.Name()})
	return nil
}

func (p *fakeProducer) Close() {}

func inputTopics() []*Topic {
	return []*Topic{NewTopic("input", nil)}
}

func TestStreamingDataFrame_New(t *testing.T) {
	t.Run("requires input topics", func(t *testing.T) {
		_, err := NewStreamingDataFrame(nil)
		assert.IsError(t, err, ErrNoInputTopics)
	})

	t.Run("registers input topics by name", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		_, ok := df.TopicsIn()["input"]
		assert.True(t, ok)
	})
}

func TestStreamingDataFrame_Select(t *testing.T) {
	df, err := NewStreamingDataFrame(inputTopics())
	assert.NoError(t, err)
	df.Select("b", "a")

	out, err := df.Process(context.Background(), &Row{Value: map[string]any{"a": 1, "b": 2, "c": 3}})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(out))
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out[0].Value)

	_, err = df.Process(context.Background(), &Row{Value: map[string]any{"a": 1}})
	assert.IsError(t, err, ErrFieldNotFound)
}

func TestStreamingDataFrame_Filter(t *testing.T) {
	df, err := NewStreamingDataFrame(inputTopics())
	assert.NoError(t, err)
	df.Filter(Col("b").Ge(5))

	out, err := df.Process(context.Background(), &Row{Value: map[string]any{"b": 7}})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(out))
	// The gate passes the record through unchanged.
	assert.Equal(t, map[string]any{"b": 7}, out[0].Value)

	out, err = df.Process(context.Background(), &Row{Value: map[string]any{"b": 3}})
	assert.NoError(t, err)
	assert.Zero(t, out)
}

func TestStreamingDataFrame_Set(t *testing.T) {
	df, err := NewStreamingDataFrame(inputTopics())
	assert.NoError(t, err)
	df.Set("doubled", Col("n").Mul(2))
	df.Set("source", "sensor")

	out, err := df.Process(context.Background(), &Row{Value: map[string]any{"n": 21}})
	assert.NoError(t, err)
	assert.Equal(t, int64(42), out[0].Value["doubled"].(int64))
	assert.Equal(t, "sensor", out[0].Value["source"].(string))
}

func TestStreamingDataFrame_Apply(t *testing.T) {
	t.Run("nil return keeps the in-place mutated row", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		df.Apply(func(value map[string]any) (any, error) {
			value["touched"] = true
			return nil, nil
		}, false)

		out, err := df.Process(context.Background(), &Row{Value: map[string]any{}})
		assert.NoError(t, err)
		assert.True(t, out[0].Value["touched"].(bool))
	})

	t.Run("map return replaces the value wholesale", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		df.Apply(func(value map[string]any) (any, error) {
			return map[string]any{"replaced": true}, nil
		}, false)

		out, err := df.Process(context.Background(), &Row{Value: map[string]any{"old": 1}})
		assert.NoError(t, err)
		assert.Equal(t, map[string]any{"replaced": true}, out[0].Value)
	})

	t.Run("slice return without expand is rejected", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		df.Apply(func(value map[string]any) (any, error) {
			return []map[string]any{{"n": 1}, {"n": 2}}, nil
		}, false)

		_, err = df.Process(context.Background(), &Row{Value: map[string]any{}})
		assert.IsError(t, err, ErrInvalidResultType)
	})

	t.Run("slice return with expand branches", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		df.Apply(func(value map[string]any) (any, error) {
			return []map[string]any{{"n": 1}, {"n": 2}}, nil
		}, true)

		out, err := df.Process(context.Background(), &Row{
			Value: map[string]any{}, Topic: "input", Partition: 3, Offset: 42,
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, len(out))
		assert.Equal(t, 1, out[0].Value["n"].(int))
		assert.Equal(t, 2, out[1].Value["n"].(int))
		// Provenance carries into every branch.
		assert.Equal(t, int64(42), out[0].Offset)
		assert.Equal(t, int64(42), out[1].Offset)
	})

	t.Run("other return types are rejected", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		df.Apply(func(value map[string]any) (any, error) {
			return 42, nil
		}, false)

		_, err = df.Process(context.Background(), &Row{Value: map[string]any{}})
		assert.IsError(t, err, ErrInvalidResultType)
	})
}

func TestStreamingDataFrame_ToTopic(t *testing.T) {
	output := NewTopic("output", nil)

	t.Run("produces through the bound producer and tracks the output", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		producer := &fakeProducer{}
		df.SetProducer(producer)
		df.ToTopic(output)

		_, ok := df.TopicsOut()["output"]
		assert.True(t, ok)

		out, err := df.Process(context.Background(), &Row{Value: map[string]any{"n": 1}})
		assert.NoError(t, err)
		assert.Equal(t, 1, len(out))
		assert.Equal(t, 1, len(producer.produced))
		assert.Equal(t, "output", producer.produced[0].topic)
	})

	t.Run("fails without a bound producer", func(t *testing.T) {
		df, err := NewStreamingDataFrame(inputTopics())
		assert.NoError(t, err)
		df.ToTopic(output)

		_, err = df.Process(context.Background(), &Row{Value: map[string]any{}})
		assert.IsError(t, err, ErrProducerNotBound)
	})
}

func TestStreamingDataFrame_Accessors(t *testing.T) {
	df, err := NewStreamingDataFrame(inputTopics())
	assert.NoError(t, err)

	_, err = df.Consumer()
	assert.IsError(t, err, ErrConsumerNotBound)
	_, err = df.Producer()
	assert.IsError(t, err, ErrProducerNotBound)

	producer := &fakeProducer{}
	df.SetProducer(producer)
	got, err := df.Producer()
	assert.NoError(t, err)
	assert.Equal[RowProducer](t, producer, got)
}

func TestStreamingDataFrame_Clone(t *testing.T) {
	df, err := NewStreamingDataFrame(inputTopics())
	assert.NoError(t, err)
	df.Set("a", 1)

	branch := df.Clone()
	branch.Set("b", 2)
	df.Set("c", 3)

	out, err := df.Process(context.Background(), &Row{Value: map[string]any{}})
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, out[0].Value)

	out, err = branch.Process(context.Background(), &Row{Value: map[string]any{}})
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out[0].Value)
}

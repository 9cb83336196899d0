package rowflow

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
)

func TestRow_Clone(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	original := &Row{
		Value: map[string]any{
			"name":   "alice",
			"nested": map[string]any{"score": 10},
			"tags":   []any{"a", "b"},
			"raw":    []byte("payload"),
		},
		Key:       []byte("k1"),
		Timestamp: ts,
		Headers:   []RowHeader{{Key: "trace", Value: []byte("t1")}},
		Topic:     "input",
		Partition: 3,
		Offset:    42,
	}

	clone := original.Clone()

	// Provenance carries over.
	assert.Equal(t, []byte("k1"), clone.Key)
	assert.Equal(t, ts, clone.Timestamp)
	assert.Equal(t, "input", clone.Topic)
	assert.Equal(t, int32(3), clone.Partition)
	assert.Equal(t, int64(42), clone.Offset)

	// Mutating the clone leaves the original untouched, nested values
	// included.
	clone.Set("name", "bob")
	clone.Value["nested"].(map[string]any)["score"] = 99
	clone.Value["tags"].([]any)[0] = "mutated"
	clone.Value["raw"].([]byte)[0] = 'X'
	clone.Headers = append(clone.Headers, RowHeader{Key: "extra"})

	assert.Equal(t, "alice", original.Value["name"].(string))
	assert.Equal(t, 10, original.Value["nested"].(map[string]any)["score"].(int))
	assert.Equal(t, "a", original.Value["tags"].([]any)[0].(string))
	assert.Equal(t, []byte("payload"), original.Value["raw"].([]byte))
	assert.Equal(t, 1, len(original.Headers))
}

func TestRow_CloneWithValue(t *testing.T) {
	original := &Row{
		Value:     map[string]any{"n": 1},
		Topic:     "input",
		Partition: 1,
		Offset:    7,
	}

	clone := original.CloneWithValue(map[string]any{"n": 2})
	assert.Equal(t, 2, clone.Value["n"].(int))
	assert.Equal(t, 1, original.Value["n"].(int))
	assert.Equal(t, "input", clone.Topic)
	assert.Equal(t, int64(7), clone.Offset)
}

func TestRow_Set(t *testing.T) {
	var row Row
	row.Set("a", 1)
	got, ok := row.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, got.(int))

	_, ok = row.Get("missing")
	assert.False(t, ok)
}

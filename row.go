package rowflow

import (
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// RowHeader is a single Kafka record header.
type RowHeader struct {
	Key   string
	Value []byte
}

// Row is one stream message: a mutable Value mapping plus immutable
// provenance metadata from the source record. Pipeline steps mutate Value
// only; provenance carries through unless a step clones with an override.
type Row struct {
	Value map[string]any

	Key       []byte
	Timestamp time.Time
	Headers   []RowHeader
	Topic     string
	Partition int32
	Offset    int64
}

// Get returns the value of a field, with a presence flag.
func (r *Row) Get(field string) (any, bool) {
	v, ok := r.Value[field]
	return v, ok
}

// Set assigns a field of the row value.
func (r *Row) Set(field string, value any) {
	if r.Value == nil {
		r.Value = map[string]any{}
	}
	r.Value[field] = value
}

// Clone returns a copy of the row with a deep copy of Value. Provenance
// metadata is carried over as-is.
func (r *Row) Clone() *Row {
	return r.CloneWithValue(deepCopyValue(r.Value))
}

// CloneWithValue returns a copy of the row carrying the same provenance but
// the given value mapping. Used by expanding steps to fan one source record
// out into several.
func (r *Row) CloneWithValue(value map[string]any) *Row {
	clone := *r
	clone.Value = value
	clone.Headers = append([]RowHeader(nil), r.Headers...)
	return &clone
}

func deepCopyValue(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyAny(v)
	}
	return out
}

func deepCopyAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyValue(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyAny(e)
		}
		return out
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

func headersFromKgo(headers []kgo.RecordHeader) []RowHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]RowHeader, len(headers))
	for i, h := range headers {
		out[i] = RowHeader{Key: h.Key, Value: h.Value}
	}
	return out
}

func headersToKgo(headers []RowHeader) []kgo.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kgo.RecordHeader, len(headers))
	for i, h := range headers {
		out[i] = kgo.RecordHeader{Key: h.Key, Value: h.Value}
	}
	return out
}

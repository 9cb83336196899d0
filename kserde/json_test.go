package kserde

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestJSON(t *testing.T) {
	serde := JSON[map[string]any]()

	input := map[string]any{"word": "stream", "length": 6.0}
	serialized, err := serde.Serializer(input)
	assert.NoError(t, err)

	deserialized, err := serde.Deserializer(serialized)
	assert.NoError(t, err)
	assert.Equal(t, input, deserialized)
}

func TestJSON_InvalidInput(t *testing.T) {
	serde := JSON[map[string]any]()
	_, err := serde.Deserializer([]byte("{not json"))
	assert.Error(t, err)
}

package kserde

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestBytes(t *testing.T) {
	input := []byte("raw")
	serialized, err := Bytes.Serializer(input)
	assert.NoError(t, err)
	assert.Equal(t, input, serialized)

	deserialized, err := Bytes.Deserializer(serialized)
	assert.NoError(t, err)
	assert.Equal(t, input, deserialized)
}

package kserde

// Serializer encodes a value into its wire representation.
type Serializer[T any] func(T) ([]byte, error)

// Deserializer decodes a value from its wire representation.
type Deserializer[T any] func([]byte) (T, error)

// Serde pairs a Serializer and Deserializer for one type.
type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

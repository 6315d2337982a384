// Package serde contains the codecs used to move typed keys and values
// in and out of byte-oriented stores and Kafka records.
package serde

// Serializer converts a value into its byte representation.
type Serializer[T any] func(T) ([]byte, error)

// Deserializer converts bytes back into a value.
type Deserializer[T any] func([]byte) (T, error)

// Serde bundles a Serializer and Deserializer for one type.
type Serde[T any] struct {
	Serializer   Serializer[T]
	Deserializer Deserializer[T]
}

// IsZero reports whether the serde has not been set.
func (s Serde[T]) IsZero() bool {
	return s.Serializer == nil && s.Deserializer == nil
}

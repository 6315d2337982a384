package serde

import (
	"encoding/binary"
	"fmt"
	"math"
)

var Float64Serializer = func(data float64) ([]byte, error) {
	res := make([]byte, 8)
	binary.BigEndian.PutUint64(res, math.Float64bits(data))
	return res, nil
}

var Float64Deserializer = func(data []byte) (float64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("float64 deserialization requires exactly 8 bytes, got %d", len(data))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
}

// Float64 is a serde for float64 values.
var Float64 = Serde[float64]{
	Serializer:   Float64Serializer,
	Deserializer: Float64Deserializer,
}

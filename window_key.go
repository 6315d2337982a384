package windstream

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/calluna/windstream/serde"
)

// Window keys are stored as:
//
//	uint16 key length | key bytes | uint64 window start (unix ms)
//
// All fields are big-endian. For a fixed key, byte order equals window
// start order, and all entries of one key are contiguous, so a range scan
// over one key's windows is a plain byte-range scan.

func encodeWindowKey(keyBytes []byte, startMs int64) ([]byte, error) {
	if len(keyBytes) > 0xFFFF {
		return nil, fmt.Errorf("window key too large: %d bytes", len(keyBytes))
	}
	buf := make([]byte, 2+len(keyBytes)+8)
	binary.BigEndian.PutUint16(buf, uint16(len(keyBytes)))
	copy(buf[2:], keyBytes)
	binary.BigEndian.PutUint64(buf[2+len(keyBytes):], uint64(startMs))
	return buf, nil
}

// WindowKeyStartMillis extracts the window start milliseconds from an
// encoded window key. External store backends use it for time-based
// eviction.
func WindowKeyStartMillis(encoded []byte) (int64, error) {
	return windowKeyStart(encoded)
}

// windowKeyStart extracts the window start milliseconds from an encoded
// window key. Store backends use it to place entries into time segments.
func windowKeyStart(encoded []byte) (int64, error) {
	if len(encoded) < 2+8 {
		return 0, fmt.Errorf("window key too short: %d bytes", len(encoded))
	}
	return int64(binary.BigEndian.Uint64(encoded[len(encoded)-8:])), nil
}

// WindowKeySerializer wraps a key serializer into a window key serializer.
func WindowKeySerializer[K any](inner serde.Serializer[K]) serde.Serializer[WindowKey[K]] {
	return func(wk WindowKey[K]) ([]byte, error) {
		keyBytes, err := inner(wk.Key)
		if err != nil {
			return nil, err
		}
		return encodeWindowKey(keyBytes, wk.Start.UnixMilli())
	}
}

// WindowKeyDeserializer wraps a key deserializer into a window key
// deserializer.
func WindowKeyDeserializer[K any](inner serde.Deserializer[K]) serde.Deserializer[WindowKey[K]] {
	return func(b []byte) (WindowKey[K], error) {
		if len(b) < 2+8 {
			return WindowKey[K]{}, fmt.Errorf("window key too short: %d bytes", len(b))
		}
		keyLen := int(binary.BigEndian.Uint16(b))
		if len(b) != 2+keyLen+8 {
			return WindowKey[K]{}, fmt.Errorf("window key length mismatch: header says %d, have %d bytes", keyLen, len(b)-2-8)
		}

		key, err := inner(b[2 : 2+keyLen])
		if err != nil {
			return WindowKey[K]{}, err
		}

		startMs := int64(binary.BigEndian.Uint64(b[2+keyLen:]))
		return WindowKey[K]{Key: key, Start: time.UnixMilli(startMs).UTC()}, nil
	}
}

// WindowKeySerde wraps a key serde into a window key serde.
func WindowKeySerde[K any](inner serde.Serde[K]) serde.Serde[WindowKey[K]] {
	return serde.Serde[WindowKey[K]]{
		Serializer:   WindowKeySerializer(inner.Serializer),
		Deserializer: WindowKeyDeserializer(inner.Deserializer),
	}
}

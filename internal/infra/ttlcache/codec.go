package ttlcache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrDecompress reports a stored value that could not be restored.
// Callers treat it as a cache miss.
var ErrDecompress = errors.New("ttlcache: decompress value")

func init() {
	// Generic config trees are the common interface payloads.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func initCodec() {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
}

// encodeValue gob-encodes value so that concrete types survive the round trip,
// including those held in interfaces. Other concrete types carried in
// interfaces must be registered with gob; unexported fields are not kept.
func encodeValue[V any](value V) ([]byte, error) {
	initCodec()
	if codecErr != nil {
		return nil, fmt.Errorf("init zstd codec: %w", codecErr)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, fmt.Errorf("encode cache value: %w", err)
	}
	raw := buf.Bytes()
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

func decodeValue[V any](payload []byte) (V, error) {
	var zero V
	initCodec()
	if codecErr != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecompress, codecErr)
	}
	raw, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	var value V
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&value); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrDecompress, err)
	}
	return value, nil
}

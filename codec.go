package tiercache

import (
	"fmt"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// codec turns caller values into storable payloads and back. Values are
// msgpack-encoded; encodings at or above the compression threshold are
// zstd-compressed. The Compressed flag travels with the entry, so decoding
// needs no external context.
type codec struct {
	// threshold is the encoded size in bytes at which compression kicks
	// in. Zero disables compression. Atomic so config reloads can adjust
	// it while reads and writes are in flight.
	threshold atomic.Int64

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// newCodec builds a codec with a shared zstd encoder and decoder. Both are
// safe for concurrent use via EncodeAll/DecodeAll.
func newCodec(threshold int) (*codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("tiercache: init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("tiercache: init zstd decoder: %w", err)
	}
	c := &codec{enc: enc, dec: dec}
	c.threshold.Store(int64(threshold))
	return c, nil
}

// setThreshold adjusts the compression threshold at runtime.
func (c *codec) setThreshold(threshold int) {
	c.threshold.Store(int64(threshold))
}

// Encode serializes value and compresses the result once it crosses the
// threshold. Compression is skipped when it would not shrink the payload.
// Returns the final payload and whether it is compressed.
func (c *codec) Encode(value any) ([]byte, bool, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	threshold := int(c.threshold.Load())
	if threshold > 0 && len(data) >= threshold {
		compressed := c.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
		if len(compressed) < len(data) {
			return compressed, true, nil
		}
	}
	return data, false, nil
}

// Decode reverses Encode into dst, which must be a non-nil pointer.
// Corrupt payloads surface as ErrDecode so readers can treat them as
// misses.
func (c *codec) Decode(payload []byte, compressed bool, dst any) error {
	data := payload
	if compressed {
		var err error
		data, err = c.dec.DecodeAll(payload, nil)
		if err != nil {
			return fmt.Errorf("%w: zstd: %v", ErrDecode, err)
		}
	}
	if err := msgpack.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// Close releases the zstd encoder and decoder.
func (c *codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

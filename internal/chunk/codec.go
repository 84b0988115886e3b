// Package chunk splits opaque binary payloads into ordered, size-bounded
// fragments and reassembles them. Pure data plumbing, no I/O.
package chunk

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrIncompleteTransfer = errors.New("chunk: transfer has missing indices")
	ErrTotalMismatch      = errors.New("chunk: totalChunks inconsistent within transfer")
	ErrBadChunkSize       = errors.New("chunk: max chunk size must be positive")
)

// Chunk is one bounded-size fragment of a larger payload.
type Chunk struct {
	Index   int
	Payload []byte
	IsLast  bool
	Total   int
}

// Split cuts payload into ceil(len/maxSize) chunks of at most maxSize
// bytes each. The last chunk carries the remainder and IsLast=true;
// every chunk carries the same Total.
//
// An empty payload produces zero chunks: callers treat a zero-chunk
// transfer as a no-op and send nothing.
func Split(payload []byte, maxSize int) ([]Chunk, error) {
	if maxSize <= 0 {
		return nil, ErrBadChunkSize
	}
	if len(payload) == 0 {
		return nil, nil
	}
	total := (len(payload) + maxSize - 1) / maxSize
	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxSize
		end := start + maxSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, Chunk{
			Index:   i,
			Payload: payload[start:end],
			IsLast:  i == total-1,
			Total:   total,
		})
	}
	return chunks, nil
}

// Join reassembles the original payload from chunks in any order.
// It errors rather than truncate when any index in 0..Total-1 is
// absent, or when chunks disagree on Total.
func Join(chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	total := chunks[0].Total
	byIndex := make(map[int][]byte, len(chunks))
	size := 0
	for _, c := range chunks {
		if c.Total != total {
			return nil, fmt.Errorf("%w: saw %d and %d", ErrTotalMismatch, total, c.Total)
		}
		if c.Index < 0 || c.Index >= total {
			return nil, fmt.Errorf("%w: index %d outside 0..%d", ErrIncompleteTransfer, c.Index, total-1)
		}
		if _, dup := byIndex[c.Index]; dup {
			continue
		}
		byIndex[c.Index] = c.Payload
		size += len(c.Payload)
	}
	out := make([]byte, 0, size)
	for i := 0; i < total; i++ {
		part, ok := byIndex[i]
		if !ok {
			return nil, fmt.Errorf("%w: missing index %d of %d", ErrIncompleteTransfer, i, total)
		}
		out = append(out, part...)
	}
	return out, nil
}

// EncodePayload renders the chunk payload transport-safe for the JSON
// wire framing. Lossless for arbitrary bytes, zero bytes included.
func (c Chunk) EncodePayload() string {
	return base64.StdEncoding.EncodeToString(c.Payload)
}

// DecodePayload reverses EncodePayload.
func DecodePayload(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

package chunk

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxSize = 8

func payloadOf(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i % 251)
	}
	return p
}

func TestSplitJoinRoundTrip(t *testing.T) {
	sizes := []int{0, 1, maxSize - 1, maxSize, maxSize + 1, 3 * maxSize, 5*maxSize + 3}
	for _, n := range sizes {
		payload := payloadOf(n)
		chunks, err := Split(payload, maxSize)
		require.NoError(t, err, "size %d", n)

		if n == 0 {
			assert.Empty(t, chunks, "empty payload must produce zero chunks")
			continue
		}
		got, err := Join(chunks)
		require.NoError(t, err, "size %d", n)
		assert.True(t, bytes.Equal(payload, got), "round trip mismatch at size %d", n)
	}
}

func TestSplitChunkCount(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{
		{1, 1},
		{maxSize, 1},
		{maxSize + 1, 2},
		{2 * maxSize, 2},
		{5*maxSize + 3, 6},
	}
	for _, tc := range cases {
		chunks, err := Split(payloadOf(tc.size), maxSize)
		require.NoError(t, err)
		require.Len(t, chunks, tc.want, "size %d", tc.size)

		lastCount := 0
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, tc.want, c.Total)
			assert.LessOrEqual(t, len(c.Payload), maxSize)
			assert.NotEmpty(t, c.Payload)
			if c.IsLast {
				lastCount++
			}
		}
		assert.Equal(t, 1, lastCount, "exactly one chunk carries isLast")
		assert.True(t, chunks[len(chunks)-1].IsLast)
	}
}

func TestSplitSingleChunk(t *testing.T) {
	chunks, err := Split([]byte("short"), maxSize)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.True(t, chunks[0].IsLast)
	assert.Equal(t, 1, chunks[0].Total)
}

func TestSplitRejectsBadSize(t *testing.T) {
	_, err := Split([]byte("x"), 0)
	assert.ErrorIs(t, err, ErrBadChunkSize)
	_, err = Split([]byte("x"), -1)
	assert.ErrorIs(t, err, ErrBadChunkSize)
}

func TestJoinErrorsOnGap(t *testing.T) {
	chunks, err := Split(payloadOf(3*maxSize), maxSize)
	require.NoError(t, err)

	gapped := []Chunk{chunks[0], chunks[2]}
	_, err = Join(gapped)
	assert.ErrorIs(t, err, ErrIncompleteTransfer)
}

func TestJoinErrorsOnTotalMismatch(t *testing.T) {
	chunks, err := Split(payloadOf(2*maxSize), maxSize)
	require.NoError(t, err)
	chunks[1].Total = 3

	_, err = Join(chunks)
	assert.ErrorIs(t, err, ErrTotalMismatch)
}

func TestJoinToleratesAnyOrder(t *testing.T) {
	payload := payloadOf(4 * maxSize)
	chunks, err := Split(payload, maxSize)
	require.NoError(t, err)

	reversed := make([]Chunk, 0, len(chunks))
	for i := len(chunks) - 1; i >= 0; i-- {
		reversed = append(reversed, chunks[i])
	}
	got, err := Join(reversed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
}

func TestEncodePayloadLossless(t *testing.T) {
	// Arbitrary bytes, zero bytes included, must survive the text encoding.
	raw := []byte{0x00, 0xff, 0x00, 0x7f, 0x80, 0x01, 0x00}
	c := Chunk{Index: 0, Payload: raw, IsLast: true, Total: 1}

	decoded, err := DecodePayload(c.EncodePayload())
	require.NoError(t, err)
	assert.True(t, bytes.Equal(raw, decoded))
}

package chunk

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = Key{Room: "room-1", Sender: "alice"}

func mustSplit(t *testing.T, payload []byte) []Chunk {
	t.Helper()
	chunks, err := Split(payload, maxSize)
	require.NoError(t, err)
	return chunks
}

func TestReassemblerCompletesInOrder(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	payload := payloadOf(3*maxSize + 2)
	var got []byte
	for _, c := range mustSplit(t, payload) {
		out, done, err := r.Accept(testKey, c)
		require.NoError(t, err)
		if done {
			got = out
		}
	}
	require.NotNil(t, got)
	assert.True(t, bytes.Equal(payload, got))

	// Key is idle again after completion.
	_, _, open := r.Pending(testKey)
	assert.False(t, open)
}

func TestReassemblerSingleChunkTransfer(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	payload := []byte("hi")
	chunks := mustSplit(t, payload)
	out, done, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)
	require.True(t, done)
	assert.True(t, bytes.Equal(payload, out))
}

func TestReassemblerDuplicateChunkIdempotent(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	payload := payloadOf(2 * maxSize)
	chunks := mustSplit(t, payload)

	_, done, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)
	require.False(t, done)

	// Same chunk twice must not corrupt or double-count.
	_, done, err = r.Accept(testKey, chunks[0])
	require.NoError(t, err)
	require.False(t, done)

	out, done, err := r.Accept(testKey, chunks[1])
	require.NoError(t, err)
	require.True(t, done)
	assert.True(t, bytes.Equal(payload, out))
}

func TestReassemblerToleratesReorderedMiddleChunks(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	payload := payloadOf(4 * maxSize)
	chunks := mustSplit(t, payload)

	// A transfer opens on index 0; after that, middle chunks may arrive
	// in any order as long as the final chunk arrives last.
	order := []int{0, 2, 1, 3}
	var got []byte
	for _, i := range order {
		out, done, err := r.Accept(testKey, chunks[i])
		require.NoError(t, err)
		if done {
			got = out
		}
	}
	require.NotNil(t, got)
	assert.True(t, bytes.Equal(payload, got))
}

func TestReassemblerDropsChunkWithoutOpenTransfer(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	chunks := mustSplit(t, payloadOf(3*maxSize))

	// Index > 0 with no open transfer is ignored, not an error.
	_, done, err := r.Accept(testKey, chunks[1])
	require.NoError(t, err)
	assert.False(t, done)
	_, _, open := r.Pending(testKey)
	assert.False(t, open)
}

func TestReassemblerLastChunkOverGapDiscards(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	chunks := mustSplit(t, payloadOf(3*maxSize))

	_, _, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)

	// isLast triggers reassembly; the gap at index 1 is a protocol
	// inconsistency that discards the transfer.
	_, done, err := r.Accept(testKey, chunks[2])
	assert.ErrorIs(t, err, ErrIncompleteTransfer)
	assert.False(t, done)
	_, _, open := r.Pending(testKey)
	assert.False(t, open)
}

func TestReassemblerNewTransferDiscardsStale(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	stale := mustSplit(t, payloadOf(3*maxSize))
	_, _, err := r.Accept(testKey, stale[0])
	require.NoError(t, err)
	_, _, err = r.Accept(testKey, stale[1])
	require.NoError(t, err)

	// A fresh index-0 chunk abandons the incomplete transfer.
	fresh := payloadOf(2 * maxSize)
	freshChunks := mustSplit(t, fresh)
	_, done, err := r.Accept(testKey, freshChunks[0])
	require.NoError(t, err)
	require.False(t, done)

	out, done, err := r.Accept(testKey, freshChunks[1])
	require.NoError(t, err)
	require.True(t, done)
	assert.True(t, bytes.Equal(fresh, out))
}

func TestReassemblerTotalMismatchDiscards(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	chunks := mustSplit(t, payloadOf(3*maxSize))
	_, _, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)

	bad := chunks[1]
	bad.Total = 7
	_, done, err := r.Accept(testKey, bad)
	assert.ErrorIs(t, err, ErrTotalMismatch)
	assert.False(t, done)
	_, _, open := r.Pending(testKey)
	assert.False(t, open)
}

func TestReassemblerIndependentSenders(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	alice := Key{Room: "room-1", Sender: "alice"}
	bob := Key{Room: "room-1", Sender: "bob"}

	pa := payloadOf(2 * maxSize)
	pb := payloadOf(2*maxSize + 1)
	ca := mustSplit(t, pa)
	cb := mustSplit(t, pb)

	// Interleave the two transfers.
	_, _, err := r.Accept(alice, ca[0])
	require.NoError(t, err)
	_, _, err = r.Accept(bob, cb[0])
	require.NoError(t, err)

	outB, doneB, err := r.Accept(bob, cb[1])
	require.NoError(t, err)
	require.True(t, doneB)
	assert.True(t, bytes.Equal(pb, outB))

	outA, doneA, err := r.Accept(alice, ca[1])
	require.NoError(t, err)
	require.True(t, doneA)
	assert.True(t, bytes.Equal(pa, outA))
}

func TestReassemblerPendingProgress(t *testing.T) {
	r := NewReassembler(0)
	defer r.Stop()

	chunks := mustSplit(t, payloadOf(4*maxSize))
	_, _, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)
	_, _, err = r.Accept(testKey, chunks[1])
	require.NoError(t, err)

	received, total, open := r.Pending(testKey)
	require.True(t, open)
	assert.Equal(t, 2, received)
	assert.Equal(t, 4, total)
}

func TestReassemblerTimeoutDropsTransfer(t *testing.T) {
	r := NewReassembler(20 * time.Millisecond)
	defer r.Stop()

	chunks := mustSplit(t, payloadOf(3*maxSize))
	_, _, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, open := r.Pending(testKey)
		return !open
	}, time.Second, 5*time.Millisecond, "stalled transfer should expire")
}

func TestReassemblerStopCancelsTimers(t *testing.T) {
	r := NewReassembler(time.Hour)

	chunks := mustSplit(t, payloadOf(3*maxSize))
	_, _, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)

	r.Stop()
	_, _, open := r.Pending(testKey)
	assert.False(t, open)

	// Accept after Stop is a no-op.
	_, done, err := r.Accept(testKey, chunks[0])
	require.NoError(t, err)
	assert.False(t, done)
}

package chunk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Key scopes one in-flight transfer to its room and sender. Each
// receiving side reconstructs independently; there is no shared
// reassembly state across peers.
type Key struct {
	Room   string
	Sender string
}

type transfer struct {
	total    int
	parts    map[int][]byte
	sawLast  bool
	lastIdx  int
	deadline *time.Timer
}

func (t *transfer) chunks() []Chunk {
	out := make([]Chunk, 0, len(t.parts))
	for i, p := range t.parts {
		out = append(out, Chunk{Index: i, Payload: p, Total: t.total, IsLast: t.sawLast && i == t.lastIdx})
	}
	return out
}

// Reassembler accumulates incoming chunks into completed payloads,
// keyed by (room, sender). At most one incomplete transfer exists per
// key: a fresh index-0 chunk discards whatever came before it.
//
// Safe for concurrent use.
type Reassembler struct {
	mu        sync.Mutex
	transfers map[Key]*transfer
	timeout   time.Duration
	stopped   bool
}

// NewReassembler builds a Reassembler. A non-zero timeout drops any
// transfer that stays incomplete for that long, so senders who
// disconnect mid-transfer don't leak state. Zero disables the timer.
func NewReassembler(timeout time.Duration) *Reassembler {
	return &Reassembler{
		transfers: make(map[Key]*transfer),
		timeout:   timeout,
	}
}

// Accept feeds one chunk into the state machine for key. When the
// chunk completes a transfer, the reassembled payload is returned with
// done=true and the key resets to idle. Duplicate indices are no-ops.
// A chunk for a sender with no open transfer and index > 0 is dropped:
// its transfer was already abandoned or completed.
//
// Protocol inconsistencies (index gaps at completion, disagreeing
// totals) discard the transfer and return the error; they never take
// down the receiving side.
func (r *Reassembler) Accept(key Key, c Chunk) (payload []byte, done bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil, false, nil
	}
	if c.Index < 0 || c.Index >= c.Total {
		return nil, false, fmt.Errorf("%w: index %d outside 0..%d", ErrIncompleteTransfer, c.Index, c.Total-1)
	}

	t, open := r.transfers[key]
	if c.Index == 0 {
		if open {
			log.Warn().Str("module", "chunk").Str("room", key.Room).Str("sender", key.Sender).
				Int("had", len(t.parts)).Msg("new transfer started, discarding incomplete one")
			r.drop(key)
		}
		t = &transfer{total: c.Total, parts: make(map[int][]byte, c.Total)}
		if r.timeout > 0 {
			t.deadline = time.AfterFunc(r.timeout, func() { r.expire(key) })
		}
		r.transfers[key] = t
		open = true
	}
	if !open {
		log.Debug().Str("module", "chunk").Str("sender", key.Sender).Int("index", c.Index).
			Msg("chunk without open transfer, dropping")
		return nil, false, nil
	}

	if c.Total != t.total {
		r.drop(key)
		return nil, false, ErrTotalMismatch
	}
	if _, dup := t.parts[c.Index]; !dup {
		t.parts[c.Index] = c.Payload
	}
	if c.IsLast {
		t.sawLast = true
		t.lastIdx = c.Index
	}

	if !t.sawLast && len(t.parts) < t.total {
		return nil, false, nil
	}

	payload, err = Join(t.chunks())
	r.drop(key)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Pending reports received and expected chunk counts for an open
// transfer, for progress display. ok=false when the key is idle.
func (r *Reassembler) Pending(key Key) (received, total int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, open := r.transfers[key]
	if !open {
		return 0, 0, false
	}
	return len(t.parts), t.total, true
}

// Forget drops any open transfer for key, e.g. when its sender leaves.
func (r *Reassembler) Forget(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drop(key)
}

// Stop cancels all accumulation timers and drops open transfers. No
// timer fires after Stop returns.
func (r *Reassembler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	for key := range r.transfers {
		r.drop(key)
	}
}

func (r *Reassembler) expire(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.transfers[key]; ok {
		log.Debug().Str("module", "chunk").Str("sender", key.Sender).Int("had", len(t.parts)).
			Int("total", t.total).Msg("transfer timed out")
		r.drop(key)
	}
}

// drop removes the transfer and stops its timer. Caller holds r.mu.
func (r *Reassembler) drop(key Key) {
	if t, ok := r.transfers[key]; ok {
		if t.deadline != nil {
			t.deadline.Stop()
		}
		delete(r.transfers, key)
	}
}

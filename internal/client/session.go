// Package client is the Go client for a babelroom server: one logical
// connection with automatic reconnection, room re-join, liveness
// probing, chunked audio sending and reassembly of incoming audio.
package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/babelroom/babelroom/internal/chunk"
	"github.com/babelroom/babelroom/internal/protocol"
)

type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusErrored:
		return "errored"
	}
	return "unknown"
}

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrClosed       = errors.New("client: session closed")
)

// Config carries the knobs of one session. Zero values get defaults.
type Config struct {
	URL    string
	Dialer Dialer

	// ChunkSize bounds one audio chunk payload before encoding.
	ChunkSize int
	// ChunkPacing is the deliberate delay between chunk sends. It is a
	// backpressure substitute, not an optimization knob: sending a
	// whole clip back to back overwhelms the relay.
	ChunkPacing time.Duration
	// ChunkRetries bounds reconnect-and-retry cycles per chunk before
	// the whole transfer aborts.
	ChunkRetries int

	PingPeriod time.Duration

	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration
	MaxReconnects int

	// ReassemblyTimeout drops transfers from senders who went silent
	// mid-clip. Zero keeps them until a new transfer replaces them.
	ReassemblyTimeout time.Duration

	Handlers Handlers
}

func (c *Config) withDefaults() {
	if c.Dialer == nil {
		c.Dialer = NewWebsocketDialer()
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 8192
	}
	if c.ChunkPacing <= 0 {
		c.ChunkPacing = 150 * time.Millisecond
	}
	if c.ChunkRetries <= 0 {
		c.ChunkRetries = 3
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 20 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = 1.7
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 10
	}
}

// Session is a client-side logical connection. Safe for concurrent
// use; inbound dispatch runs on a single goroutine.
type Session struct {
	cfg Config

	status atomic.Int32

	// connectMu serializes dialing so a background reconnect and a
	// per-chunk redial never race.
	connectMu sync.Mutex

	// writeMu serializes frame writes: the websocket transport allows
	// one writer at a time.
	writeMu sync.Mutex

	mu     sync.Mutex
	conn   Conn
	closed bool

	// Last known join triple, replayed after every reconnect because
	// the server keeps no membership for dropped connections.
	user, room, language string
	hasRoom              bool

	joinWait chan protocol.JoinedRoom

	reasm *chunk.Reassembler
	done  chan struct{}
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("client: URL required")
	}
	cfg.withDefaults()
	s := &Session{
		cfg:   cfg,
		reasm: chunk.NewReassembler(cfg.ReassemblyTimeout),
		done:  make(chan struct{}),
	}
	s.status.Store(int32(StatusDisconnected))
	return s, nil
}

func (s *Session) Status() Status {
	return Status(s.status.Load())
}

func (s *Session) setStatus(st Status) {
	old := Status(s.status.Swap(int32(st)))
	if old == st {
		return
	}
	log.Debug().Str("module", "client").Str("from", old.String()).Str("to", st.String()).Msg("status")
	if s.cfg.Handlers.OnStatus != nil {
		s.cfg.Handlers.OnStatus(st)
	}
}

// Connect dials the server. On success the session is Connected and
// pumps are running; on failure it lands in Errored and the error is
// returned to the caller (no automatic retry on first connect). A
// later Connect may still be attempted.
func (s *Session) Connect(ctx context.Context) error {
	s.setStatus(StatusConnecting)
	if err := s.tryConnect(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			s.setStatus(StatusDisconnected)
		} else {
			s.setStatus(StatusErrored)
		}
		return err
	}
	return nil
}

// tryConnect performs one dial-and-install cycle. No-op when already
// connected.
func (s *Session) tryConnect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	s.conn = conn
	rejoin := s.hasRoom
	user, room, lang := s.user, s.room, s.language
	s.mu.Unlock()

	s.setStatus(StatusConnected)
	go s.readLoop(conn)
	go s.pingLoop(conn)

	if rejoin {
		log.Info().Str("module", "client").Str("room", room).Str("user", user).Msg("re-announcing room membership")
		if err := s.send(protocol.JoinRoom{Type: protocol.KindJoinRoom, User: user, Room: room, Language: lang}); err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("rejoin send failed")
		}
	}
	return nil
}

// JoinRoom announces membership and remembers the triple for automatic
// re-join after reconnects.
func (s *Session) JoinRoom(user, room, language string) error {
	s.mu.Lock()
	s.user, s.room, s.language = user, room, language
	s.hasRoom = true
	s.mu.Unlock()
	return s.send(protocol.JoinRoom{Type: protocol.KindJoinRoom, User: user, Room: room, Language: language})
}

// CreateRoom asks the server for a fresh room and blocks until the
// join confirmation arrives (or ctx expires).
func (s *Session) CreateRoom(ctx context.Context, user, language string) (string, error) {
	wait := make(chan protocol.JoinedRoom, 1)
	s.mu.Lock()
	s.user, s.language = user, language
	s.hasRoom = true
	s.joinWait = wait
	s.mu.Unlock()

	err := s.send(protocol.CreateRoom{Type: protocol.KindCreateRoom, User: user, Language: language})
	if err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	case joined := <-wait:
		return joined.Room, nil
	}
}

// SendText sends a chat message in the session's language.
func (s *Session) SendText(text string) error {
	s.mu.Lock()
	lang := s.language
	s.mu.Unlock()
	return s.send(protocol.Message{Type: protocol.KindMessage, Text: text, Language: lang})
}

// Ping sends one liveness probe out of band of the periodic loop.
func (s *Session) Ping() error {
	return s.send(protocol.Ping{Type: protocol.KindPing})
}

// Signaling senders. Target is a connection id learned from the
// membership snapshot; the server stamps the sender identity.

func (s *Session) SendReady(target string) error {
	return s.send(protocol.Ready{Type: protocol.KindReady, Target: target})
}

func (s *Session) SendOffer(target string, sdp webrtc.SessionDescription) error {
	return s.send(protocol.Offer{Type: protocol.KindOffer, Target: target, SDP: sdp})
}

func (s *Session) SendAnswer(target string, sdp webrtc.SessionDescription) error {
	return s.send(protocol.Answer{Type: protocol.KindAnswer, Target: target, SDP: sdp})
}

func (s *Session) SendCandidate(target string, cand webrtc.ICECandidateInit) error {
	return s.send(protocol.Candidate{Type: protocol.KindCandidate, Target: target, Candidate: cand})
}

// Close tears the session down: transport released, all timers stopped,
// nothing fires afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	close(s.done)
	s.mu.Unlock()

	s.reasm.Stop()
	if conn != nil {
		_ = conn.Close()
	}
	s.status.Store(int32(StatusDisconnected))
	return nil
}

// send marshals and writes one frame on the current connection.
func (s *Session) send(v any) error {
	frame, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil || s.Status() != StatusConnected {
		return ErrNotConnected
	}
	s.writeMu.Lock()
	err = conn.WriteMessage(frame)
	s.writeMu.Unlock()
	if err != nil {
		s.dropConn(conn)
		return err
	}
	return nil
}

// readLoop pumps inbound frames until the connection dies, then hands
// off to reconnection.
func (s *Session) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.dropConn(conn)
			return
		}
		s.dispatch(data)
	}
}

// pingLoop probes liveness while this conn is current. A failed probe
// proactively cycles the connection instead of waiting for transport
// level detection.
func (s *Session) pingLoop(conn Conn) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !s.isCurrent(conn) {
				return
			}
			if err := s.send(protocol.Ping{Type: protocol.KindPing}); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("liveness probe failed, cycling connection")
				return
			}
		}
	}
}

func (s *Session) isCurrent(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn
}

// dropConn retires a dead connection and starts background
// reconnection. Stale calls (the conn was already replaced) no-op, so
// read and write paths can both report the same death.
func (s *Session) dropConn(conn Conn) {
	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()
	_ = conn.Close()

	s.setStatus(StatusReconnecting)
	go s.reconnectLoop()
}

// reconnectLoop retries with exponential backoff until connected or
// the retry budget runs out, which leaves the session Disconnected:
// a terminal state requiring explicit caller action.
func (s *Session) reconnectLoop() {
	for attempt := 1; attempt <= s.cfg.MaxReconnects; attempt++ {
		select {
		case <-s.done:
			return
		case <-time.After(s.backoff(attempt)):
		}
		if s.Status() == StatusConnected {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.tryConnect(ctx)
		cancel()
		if err == nil {
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}
		log.Warn().Err(err).Str("module", "client").Int("attempt", attempt).
			Int("max", s.cfg.MaxReconnects).Msg("reconnect attempt failed")
	}
	log.Error().Str("module", "client").Msg("reconnect budget exhausted")
	s.setStatus(StatusDisconnected)
}

func (s *Session) backoff(attempt int) time.Duration {
	d := time.Duration(float64(s.cfg.BackoffBase) * math.Pow(s.cfg.BackoffFactor, float64(attempt-1)))
	if d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}

package signalk

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/timeutil"
)

// Reconnect backoff bounds.
const (
	DefaultMinBackoff = 1 * time.Second
	DefaultMaxBackoff = 60 * time.Second
)

// SubscribedPaths are the paths requested from the server on connect.
var SubscribedPaths = []string{
	"navigation.position",
	"navigation.courseOverGroundTrue",
	"navigation.speedOverGround",
}

// StreamConfig contains configuration for Stream.
type StreamConfig struct {
	// ServerURL is the http(s) base URL of the Signal K server
	ServerURL string
	// Sink receives every decoded update
	Sink Sink
	// Clock times reconnect backoff; nil uses the real clock
	Clock timeutil.Clock
	// Dialer is optional; nil uses websocket.DefaultDialer
	Dialer *websocket.Dialer
	// MinBackoff and MaxBackoff bound the reconnect delay (1s, 60s)
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// StreamStats is a snapshot of stream counters.
type StreamStats struct {
	Connected bool   `json:"connected"`
	Connects  uint64 `json:"connects"`
	Messages  uint64 `json:"messages"`
	Malformed uint64 `json:"malformed"`
	LastError string `json:"last_error,omitempty"`
}

// Stream subscribes to the Signal K delta stream and feeds a Sink,
// reconnecting with capped exponential backoff.
type Stream struct {
	url        string
	sink       Sink
	clock      timeutil.Clock
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration

	connected atomic.Bool
	connects  atomic.Uint64
	messages  atomic.Uint64
	malformed atomic.Uint64

	mu      sync.Mutex
	lastErr error
}

// NewStream validates cfg and returns an idle stream. Call Run to connect.
func NewStream(cfg StreamConfig) (*Stream, error) {
	wsURL, err := StreamURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("stream: sink is required")
	}
	s := &Stream{
		url:        wsURL,
		sink:       cfg.Sink,
		clock:      cfg.Clock,
		dialer:     cfg.Dialer,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
	}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	if s.dialer == nil {
		s.dialer = websocket.DefaultDialer
	}
	if s.minBackoff <= 0 {
		s.minBackoff = DefaultMinBackoff
	}
	if s.maxBackoff < s.minBackoff {
		s.maxBackoff = max(DefaultMaxBackoff, s.minBackoff)
	}
	return s, nil
}

// StreamURL derives the websocket stream URL from a server base URL.
func StreamURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url %q: unsupported scheme %q", serverURL, u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/signalk/v1/stream"
	u.RawQuery = "subscribe=none"
	return u.String(), nil
}

// URL returns the websocket URL the stream dials.
func (s *Stream) URL() string { return s.url }

// Stats returns current counters.
func (s *Stream) Stats() StreamStats {
	st := StreamStats{
		Connected: s.connected.Load(),
		Connects:  s.connects.Load(),
		Messages:  s.messages.Load(),
		Malformed: s.malformed.Load(),
	}
	s.mu.Lock()
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()
	return st
}

// Run connects and reads deltas until ctx is cancelled, reconnecting after
// any failure. It returns ctx.Err().
func (s *Stream) Run(ctx context.Context) error {
	backoff := s.minBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.minBackoff
		}
		s.setErr(err)
		monitoring.Logf("[Stream] %v; reconnecting in %v", err, backoff)

		timer := s.clock.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
		backoff = min(backoff*2, s.maxBackoff)
	}
}

// session runs one connection. connected reports whether the dial and
// subscription succeeded.
func (s *Stream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", s.url, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage()); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	s.connects.Add(1)
	s.connected.Store(true)
	defer s.connected.Store(false)
	monitoring.Logf("[Stream] connected to %s", s.url)

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		s.messages.Add(1)
		d, err := Decode(data)
		if err != nil {
			s.malformed.Add(1)
			continue
		}
		Dispatch(d, s.sink)
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

type subscription struct {
	Path string `json:"path"`
}

type subscribeRequest struct {
	Context   string         `json:"context"`
	Subscribe []subscription `json:"subscribe"`
}

func subscribeMessage() subscribeRequest {
	req := subscribeRequest{Context: "*"}
	for _, p := range SubscribedPaths {
		req.Subscribe = append(req.Subscribe, subscription{Path: p})
	}
	return req
}

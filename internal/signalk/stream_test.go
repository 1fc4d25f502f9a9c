package signalk

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/testutil"
	"github.com/banshee-data/vessel.report/internal/timeutil"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

func TestStreamURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:3000", "ws://localhost:3000/signalk/v1/stream?subscribe=none", false},
		{"https://sk.example.com/", "wss://sk.example.com/signalk/v1/stream?subscribe=none", false},
		{"http://host/prefix/", "ws://host/prefix/signalk/v1/stream?subscribe=none", false},
		{"ws://host:3000", "ws://host:3000/signalk/v1/stream?subscribe=none", false},
		{"ftp://host", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := StreamURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewStream_Validation(t *testing.T) {
	_, err := NewStream(StreamConfig{ServerURL: "http://localhost:3000"})
	assert.Error(t, err, "sink is required")

	_, err = NewStream(StreamConfig{ServerURL: "gopher://x", Sink: &recordingSink{}})
	assert.Error(t, err)

	s, err := NewStream(StreamConfig{ServerURL: "http://localhost:3000", Sink: &recordingSink{}})
	require.NoError(t, err)
	assert.Equal(t, DefaultMinBackoff, s.minBackoff)
	assert.Equal(t, DefaultMaxBackoff, s.maxBackoff)
	assert.Equal(t, "ws://localhost:3000/signalk/v1/stream?subscribe=none", s.URL())
	assert.Equal(t, StreamStats{}, s.Stats())
}

func TestStream_DispatchAndReconnect(t *testing.T) {
	server := testutil.NewSignalKServer(t)
	server.Messages = []string{
		`{"name": "signalk-server", "self": "vessels.self"}`,
		`{"context": "vessels.v1", "updates": [{"values": [{"path": "navigation.speedOverGround", "value": 3.5}]}]}`,
		`not json`,
	}
	server.DropFirst = true
	server.Start()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sink := &recordingSink{}

	s, err := NewStream(StreamConfig{ServerURL: server.URL, Sink: sink, Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case sub := <-server.Subscriptions():
		assert.Equal(t, "*", sub.Context)
		assert.Equal(t, SubscribedPaths, sub.Paths())
	case <-time.After(5 * time.Second):
		t.Fatal("no subscribe request")
	}

	require.Eventually(t, func() bool { return len(sink.Updates()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []update{{"vessels.v1", vessel.FieldSpeed, 3.5}}, sink.Updates())
	assert.Equal(t, []string{"vessels.self"}, sink.SelfIDs())

	// The server drops the first connection; the stream waits one backoff.
	require.Eventually(t, func() bool { return clock.PendingTimers() == 1 }, 5*time.Second, 5*time.Millisecond)
	stats := s.Stats()
	assert.False(t, stats.Connected)
	assert.Equal(t, uint64(1), stats.Connects)
	assert.Equal(t, uint64(3), stats.Messages)
	assert.Equal(t, uint64(1), stats.Malformed)
	assert.NotEmpty(t, stats.LastError)

	clock.Advance(DefaultMinBackoff)
	require.Eventually(t, func() bool { return s.Stats().Connected }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, server.Conns())
	require.Eventually(t, func() bool { return len(sink.Updates()) == 2 }, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.Stats().Connected)
}

func TestStream_BackoffDoublesAndCaps(t *testing.T) {
	var dials atomic.Int32
	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dials.Add(1)
			return nil, errors.New("connection refused")
		},
	}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s, err := NewStream(StreamConfig{
		ServerURL:  "http://sk.invalid:3000",
		Sink:       &recordingSink{},
		Clock:      clock,
		Dialer:     dialer,
		MinBackoff: time.Second,
		MaxBackoff: 2 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitDials := func(n int32) {
		t.Helper()
		require.Eventually(t, func() bool {
			return dials.Load() == n && clock.PendingTimers() == 1
		}, 5*time.Second, 5*time.Millisecond)
	}

	waitDials(1)
	clock.Advance(time.Second)
	waitDials(2)

	// Second wait is 2s.
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), dials.Load())
	clock.Advance(time.Second)
	waitDials(3)

	// Capped at MaxBackoff.
	clock.Advance(2 * time.Second)
	waitDials(4)

	assert.Zero(t, s.Stats().Connects)
	assert.Contains(t, s.Stats().LastError, "connection refused")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStream_FeedsRegistry(t *testing.T) {
	server := testutil.NewSignalKServer(t)
	server.Messages = []string{
		`{"context": "vessels.v1", "updates": [{"values": [{"path": "navigation.position", "value": {"latitude": 60.1, "longitude": 24.9}}]}]}`,
	}
	server.Start()
	reg := vessel.NewRegistry(vessel.RegistryConfig{})
	s, err := NewStream(StreamConfig{ServerURL: server.URL, Sink: reg, Clock: timeutil.NewMockClock(time.Unix(0, 0))})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return reg.Len() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]geo.Point{"vessels.v1": {Lat: 60.1, Lon: 24.9}}, reg.Positions())
	reg.Remove("vessels.v1")
}

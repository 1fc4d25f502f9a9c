// Package testutil provides a fake Signal K server for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

// Subscription is the subscribe request a stream client sends on connect.
type Subscription struct {
	Context   string `json:"context"`
	Subscribe []struct {
		Path string `json:"path"`
	} `json:"subscribe"`
}

// Paths returns the subscribed paths in order.
func (s Subscription) Paths() []string {
	out := make([]string, len(s.Subscribe))
	for i, sub := range s.Subscribe {
		out[i] = sub.Path
	}
	return out
}

// SignalKServer fakes the parts of a Signal K server the tracker talks to:
// the delta stream and the per-vessel name and track endpoints.
type SignalKServer struct {
	*httptest.Server

	// Messages are replayed to every stream connection after it subscribes.
	Messages []string
	// DropFirst closes the first stream connection after the replay.
	DropFirst bool
	// Names and Tracks map "<group>/<id>" to a JSON body. Missing entries
	// answer 404.
	Names  map[string]string
	Tracks map[string]string

	conns      atomic.Int32
	subscribes chan Subscription
}

// NewSignalKServer returns an unstarted fake; call Start after setting the
// exported fields. The server is closed when the test ends.
func NewSignalKServer(t *testing.T) *SignalKServer {
	t.Helper()
	s := &SignalKServer{
		Names:      map[string]string{},
		Tracks:     map[string]string{},
		subscribes: make(chan Subscription, 16),
	}
	s.Server = httptest.NewUnstartedServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Conns returns the number of stream connections accepted so far.
func (s *SignalKServer) Conns() int { return int(s.conns.Load()) }

// Subscriptions delivers each subscribe request as it arrives.
func (s *SignalKServer) Subscriptions() <-chan Subscription { return s.subscribes }

const apiPrefix = "/signalk/v1/api/"

func (s *SignalKServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/signalk/v1/stream" {
		s.serveStream(w, r)
		return
	}
	rest, ok := strings.CutPrefix(r.URL.Path, apiPrefix)
	if !ok {
		http.NotFound(w, r)
		return
	}
	i := strings.LastIndex(rest, "/")
	if i < 0 {
		http.NotFound(w, r)
		return
	}
	key, leaf := rest[:i], rest[i+1:]

	var body string
	switch leaf {
	case "name":
		body, ok = s.Names[key]
	case "track":
		body, ok = s.Tracks[key]
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (s *SignalKServer) serveStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := s.conns.Add(1)

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err == nil {
		select {
		case s.subscribes <- sub:
		default:
		}
	}

	for _, m := range s.Messages {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			return
		}
	}
	if s.DropFirst && n == 1 {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

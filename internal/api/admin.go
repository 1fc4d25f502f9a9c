package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"

	"tailscale.com/tsweb"

	"github.com/banshee-data/vessel.report/internal/monitoring"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

// tailBuffer bounds the events queued for one slow tail client; further
// events are dropped until it catches up.
const tailBuffer = 64

// TailEvent is one server-sent event on /debug/vessels-tail.
type TailEvent struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// AttachAdminRoutes mounts the /debug pages on mux.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Vessels tracked", func() any { return s.reg.Len() })
	debug.KVFunc("Self", func() any { return s.reg.SelfID() })
	debug.KVFunc("Tracks available", func() any { return s.avail.Available() })
	if s.stream != nil {
		debug.KVFunc("Stream", func() any {
			st := s.stream.Stats()
			return fmt.Sprintf("connected=%t connects=%d messages=%d malformed=%d", st.Connected, st.Connects, st.Messages, st.Malformed)
		})
	}

	debug.HandleFunc("vessels", "tracked vessels", s.debugVessels)
	debug.HandleSilentFunc("vessels-tail", s.tailVessels)
}

func (s *Server) debugVessels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSELF\tPOSITION\tHEADING\tSPEED\tTRACK\tLAST UPDATE")
	for _, st := range s.reg.Snapshot() {
		v := s.summary(st)
		pos, heading, speed := "-", "-", "-"
		if v.Position != nil {
			pos = fmt.Sprintf("%.5f,%.5f", v.Position.Lat, v.Position.Lon)
		}
		if v.Heading != nil {
			heading = fmt.Sprintf("%.0f°", *v.Heading)
		}
		if v.Speed != nil {
			speed = fmt.Sprintf("%.1f %s", *v.Speed, v.SpeedUnits)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\t%d\t%s\n",
			v.ID, v.Name, v.Self, pos, heading, speed, v.TrackLength, v.LastUpdateAt.Format("15:04:05"))
	}
	tw.Flush()
}

// tailVessels streams registry add/remove events as server-sent events.
func (s *Server) tailVessels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Registry events arrive on the goroutine that caused them, so never
	// block it.
	events := make(chan TailEvent, tailBuffer)
	cancel := s.reg.Subscribe(func(ev vessel.Event) {
		select {
		case events <- TailEvent{Kind: ev.Kind.String(), ID: ev.ID}:
		default:
		}
	})
	defer cancel()

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				monitoring.Logf("[API] marshal tail event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

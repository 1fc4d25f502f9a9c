// Package api serves the tracked vessels as JSON and mounts admin routes.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/vessel.report/internal/enrich"
	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/httputil"
	"github.com/banshee-data/vessel.report/internal/selection"
	"github.com/banshee-data/vessel.report/internal/signalk"
	"github.com/banshee-data/vessel.report/internal/units"
	"github.com/banshee-data/vessel.report/internal/version"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

// StreamStatus reports the state of the delta stream. *signalk.Stream
// implements it.
type StreamStatus interface {
	Stats() signalk.StreamStats
}

// Options configures a Server. Registry is required.
type Options struct {
	Registry     *vessel.Registry
	Availability *enrich.Availability
	Stream       StreamStatus
	// Gatherer backs /metrics; nil uses prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	SpeedUnits            string
	ProjectionHorizon     time.Duration
	ProjectionStep        time.Duration
	SelectionRadiusMeters float64
}

type Server struct {
	reg       *vessel.Registry
	avail     *enrich.Availability
	stream    StreamStatus
	gatherer  prometheus.Gatherer
	selection *selection.Tracker

	units   string
	horizon time.Duration
	step    time.Duration
}

func NewServer(opts Options) *Server {
	s := &Server{
		reg:      opts.Registry,
		avail:    opts.Availability,
		stream:   opts.Stream,
		gatherer: opts.Gatherer,
		units:    opts.SpeedUnits,
		horizon:  opts.ProjectionHorizon,
		step:     opts.ProjectionStep,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if !units.IsValid(s.units) {
		s.units = units.Knots
	}
	if s.horizon <= 0 {
		s.horizon = 10 * time.Minute
	}
	if s.step <= 0 {
		s.step = time.Minute
	}
	radius := opts.SelectionRadiusMeters
	if radius <= 0 {
		radius = 500
	}
	s.selection = selection.NewTracker(selection.NearestResolver{Source: opts.Registry, RadiusMeters: radius})
	return s
}

// Selection exposes the tracker driven by /api/selection.
func (s *Server) Selection() *selection.Tracker { return s.selection }

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/vessels", s.listVessels)
	mux.HandleFunc("/api/vessels/{id}", s.showVessel)
	mux.HandleFunc("/api/selection", s.handleSelection)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// VesselSummary is one row of GET /api/vessels. Heading is in degrees and
// speed in SpeedUnits.
type VesselSummary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name,omitempty"`
	Self         bool       `json:"self"`
	Position     *geo.Point `json:"position,omitempty"`
	Heading      *float64   `json:"heading,omitempty"`
	Speed        *float64   `json:"speed,omitempty"`
	SpeedUnits   string     `json:"speed_units"`
	TrackLength  int        `json:"track_length"`
	LastUpdateAt time.Time  `json:"last_update_at"`
}

// VesselDetail is the body of GET /api/vessels/{id}.
type VesselDetail struct {
	VesselSummary
	Track         []geo.Point `json:"track"`
	Projection    []geo.Point `json:"projection,omitempty"`
	HasHistorical bool        `json:"has_historical"`
	Selected      bool        `json:"selected"`
}

func (s *Server) summary(st vessel.State) VesselSummary {
	v := VesselSummary{
		ID:           st.ID,
		Name:         st.Name,
		Self:         st.IsSelf,
		Position:     st.Position,
		SpeedUnits:   s.units,
		TrackLength:  len(st.Track),
		LastUpdateAt: st.LastUpdateAt,
	}
	if st.Heading != nil {
		deg := units.Degrees(*st.Heading)
		v.Heading = &deg
	}
	if st.Speed != nil {
		speed := units.ConvertSpeed(*st.Speed, s.units)
		v.Speed = &speed
	}
	return v
}

func (s *Server) listVessels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	states := s.reg.Snapshot()
	out := make([]VesselSummary, 0, len(states))
	for _, st := range states {
		out = append(out, s.summary(st))
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showVessel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id := r.PathValue("id")
	p, ok := s.reg.Get(id)
	if !ok {
		httputil.NotFound(w, "vessel not found: "+id)
		return
	}
	st := p.Snapshot()
	selected, _ := s.selection.Current()
	detail := VesselDetail{
		VesselSummary: s.summary(st),
		Track:         st.Track,
		Projection:    st.Projection(s.horizon, s.step),
		HasHistorical: st.HasHistorical,
		Selected:      selected == id,
	}
	if detail.Track == nil {
		detail.Track = []geo.Point{}
	}
	httputil.WriteJSONOK(w, detail)
}

// SelectionResponse is the body of /api/selection. Tracked is false when the
// selected vessel has since expired.
type SelectionResponse struct {
	Selected string `json:"selected,omitempty"`
	Tracked  bool   `json:"tracked"`
}

func (s *Server) selectionResponse() SelectionResponse {
	id, ok := s.selection.Current()
	if !ok {
		return SelectionResponse{}
	}
	_, tracked := s.reg.Get(id)
	return SelectionResponse{Selected: id, Tracked: tracked}
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		p, err := parsePoint(r)
		if err != "" {
			httputil.BadRequest(w, err)
			return
		}
		s.selection.Move(p)
	case http.MethodDelete:
		s.selection.Clear()
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodDelete)
		return
	}
	httputil.WriteJSONOK(w, s.selectionResponse())
}

func parsePoint(r *http.Request) (geo.Point, string) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return geo.Point{}, "invalid 'lat' parameter"
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		return geo.Point{}, "invalid 'lon' parameter"
	}
	return geo.Point{Lat: lat, Lon: lon}, ""
}

// Status is the body of GET /api/status.
type Status struct {
	Version         string               `json:"version"`
	GitSHA          string               `json:"git_sha"`
	Vessels         int                  `json:"vessels"`
	Self            string               `json:"self,omitempty"`
	TracksAvailable bool                 `json:"tracks_available"`
	SpeedUnits      string               `json:"speed_units"`
	Stream          *signalk.StreamStats `json:"stream,omitempty"`
}

func (s *Server) status() Status {
	st := Status{
		Version:         version.Version,
		GitSHA:          version.GitSHA,
		Vessels:         s.reg.Len(),
		Self:            s.reg.SelfID(),
		TracksAvailable: s.avail.Available(),
		SpeedUnits:      s.units,
	}
	if s.stream != nil {
		stats := s.stream.Stats()
		st.Stream = &stats
	}
	return st
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

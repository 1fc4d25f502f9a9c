// Package signalk talks to a Signal K server: it decodes delta messages from
// the websocket stream and fetches vessel names and historical tracks over
// the REST API.
package signalk

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

// Sink receives decoded updates. *vessel.Registry implements it.
type Sink interface {
	OnUpdate(id string, field vessel.Field, value any) bool
	OnSelfAnnounced(id string)
}

// Delta is one stream message. Three shapes are accepted:
//
//	{"context": "vessels.x", "updates": [{"values": [{"path": ..., "value": ...}]}]}
//	{"entityId": "x", "updates": [{"path": ..., "value": ...}]}
//	{"entityId": "x", "path": ..., "value": ...}
//
// plus the hello message {"self": "vessels.x"}.
type Delta struct {
	Context  string          `json:"context,omitempty"`
	EntityID string          `json:"entityId,omitempty"`
	Self     string          `json:"self,omitempty"`
	Updates  []Update        `json:"updates,omitempty"`
	Path     string          `json:"path,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// Update groups values from one source.
type Update struct {
	Values []PathValue     `json:"values,omitempty"`
	Path   string          `json:"path,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// PathValue is a single path/value pair.
type PathValue struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// Decode parses one stream message.
func Decode(data []byte) (Delta, error) {
	var d Delta
	if err := json.Unmarshal(data, &d); err != nil {
		return Delta{}, fmt.Errorf("decode delta: %w", err)
	}
	return d, nil
}

// ID returns the entity the delta is about.
func (d Delta) ID() string {
	if d.Context != "" {
		return d.Context
	}
	return d.EntityID
}

// Values flattens every path/value pair in message order.
func (d Delta) Values() []PathValue {
	var out []PathValue
	if d.Path != "" {
		out = append(out, PathValue{Path: d.Path, Value: d.Value})
	}
	for _, u := range d.Updates {
		if u.Path != "" {
			out = append(out, PathValue{Path: u.Path, Value: u.Value})
		}
		out = append(out, u.Values...)
	}
	return out
}

// Dispatch routes a decoded delta into sink and returns how many values were
// applied. Unknown paths and malformed values are skipped.
func Dispatch(d Delta, sink Sink) int {
	id := d.ID()
	if id == "" {
		if d.Self != "" {
			sink.OnSelfAnnounced(d.Self)
		}
		return 0
	}

	applied := 0
	for _, pv := range d.Values() {
		field, ok := vessel.ParseField(pv.Path)
		if !ok {
			continue
		}
		value, ok := decodeValue(field, pv.Value)
		if !ok {
			continue
		}
		if sink.OnUpdate(id, field, value) {
			applied++
		}
	}
	return applied
}

type position struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func decodeValue(field vessel.Field, raw json.RawMessage) (any, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	switch field {
	case vessel.FieldPosition:
		var p position
		if err := json.Unmarshal(raw, &p); err != nil || p.Latitude == nil || p.Longitude == nil {
			return nil, false
		}
		return geo.Point{Lat: *p.Latitude, Lon: *p.Longitude}, true
	case vessel.FieldHeading, vessel.FieldSpeed:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

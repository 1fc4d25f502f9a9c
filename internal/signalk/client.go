package signalk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/banshee-data/vessel.report/internal/enrich"
	"github.com/banshee-data/vessel.report/internal/geo"
	"github.com/banshee-data/vessel.report/internal/httputil"
)

// ErrUnexpectedStatus is returned for non-success responses that do not mean
// the endpoint is unsupported.
var ErrUnexpectedStatus = errors.New("signalk: unexpected status")

const apiPrefix = "/signalk/v1/api/"

// Client fetches enrichment data from the Signal K REST API.
type Client struct {
	base *url.URL
	http httputil.HTTPClient
}

// NewClient returns a client for the server at baseURL (for example
// http://localhost:3000).
func NewClient(baseURL string, c httputil.HTTPClient) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if c == nil {
		c = httputil.NewStandardClient(0)
	}
	return &Client{base: u, http: c}, nil
}

// SplitContext splits a Signal K context such as
// "vessels.urn:mrn:imo:mmsi:230000000" into its group and id.
func SplitContext(target string) (group, id string, ok bool) {
	group, id, ok = strings.Cut(target, ".")
	if !ok || group == "" || id == "" {
		return "", "", false
	}
	return group, id, true
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.base.String() + apiPrefix + strings.Join(escaped, "/")
}

// FetchName returns the raw name stored for context.
func (c *Client) FetchName(ctx context.Context, target string) (string, error) {
	group, id, ok := SplitContext(target)
	if !ok {
		return "", fmt.Errorf("fetch name: invalid context %q", target)
	}
	resp, err := httputil.Get(ctx, c.http, c.endpoint(group, id, "name"))
	if err != nil {
		return "", fmt.Errorf("fetch name for %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		httputil.Drain(resp)
		return "", fmt.Errorf("fetch name for %s: %w: %d", target, ErrUnexpectedStatus, resp.StatusCode)
	}
	var name string
	if err := httputil.DecodeJSON(resp, &name); err != nil {
		return "", fmt.Errorf("fetch name for %s: %w", target, err)
	}
	return name, nil
}

// FetchTrack returns the server's historical track for a vessel in
// (lat, lon) order. Non-vessel contexts have no track and return nil
// without a request. 404, 405 and 501 wrap enrich.ErrTrackUnsupported.
func (c *Client) FetchTrack(ctx context.Context, target string) ([]geo.Point, error) {
	group, id, ok := SplitContext(target)
	if !ok || group != "vessels" {
		return nil, nil
	}
	resp, err := httputil.Get(ctx, c.http, c.endpoint("vessels", id, "track"))
	if err != nil {
		return nil, fmt.Errorf("fetch track for %s: %w", target, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		httputil.Drain(resp)
		return nil, fmt.Errorf("fetch track for %s: status %d: %w", target, resp.StatusCode, enrich.ErrTrackUnsupported)
	default:
		httputil.Drain(resp)
		return nil, fmt.Errorf("fetch track for %s: %w: %d", target, ErrUnexpectedStatus, resp.StatusCode)
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch track for %s: %w", target, err)
	}
	return decodeTrack(body)
}

// decodeTrack accepts a GeoJSON MultiLineString (first line is used) or
// LineString geometry, or an untyped {"coordinates": ...} object in either
// layout.
func decodeTrack(body []byte) ([]geo.Point, error) {
	if g, err := geojson.UnmarshalGeometry(body); err == nil {
		switch {
		case g.IsMultiLineString():
			if len(g.MultiLineString) == 0 {
				return nil, nil
			}
			return geo.FromLonLat(g.MultiLineString[0]), nil
		case g.IsLineString():
			return geo.FromLonLat(g.LineString), nil
		default:
			return nil, fmt.Errorf("decode track: unsupported geometry %q", g.Type)
		}
	}

	var raw struct {
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode track: %w", err)
	}
	if len(raw.Coordinates) == 0 {
		return nil, nil
	}
	var multi [][][]float64
	if err := json.Unmarshal(raw.Coordinates, &multi); err == nil {
		if len(multi) == 0 {
			return nil, nil
		}
		return geo.FromLonLat(multi[0]), nil
	}
	var line [][]float64
	if err := json.Unmarshal(raw.Coordinates, &line); err != nil {
		return nil, fmt.Errorf("decode track coordinates: %w", err)
	}
	return geo.FromLonLat(line), nil
}

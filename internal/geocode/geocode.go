// Package geocode resolves place names to Point or Polygon/MultiPolygon
// geometries. It tries a forward Point lookup first, falls
// back to a boundary/polygon provider, decimates oversized polygons, and
// caches resolved results on disk across process restarts.
package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/time/rate"

	apperrors "github.com/hyperstructure/ingestor/internal/errors"
	"github.com/hyperstructure/ingestor/internal/geospatial"
	"github.com/hyperstructure/ingestor/internal/logging"
)

// GeometryType mirrors facts.SpatialType without importing the facts
// package, keeping geocode a leaf dependency.
type GeometryType string

const (
	Point        GeometryType = "Point"
	Polygon      GeometryType = "Polygon"
	MultiPolygon GeometryType = "MultiPolygon"
)

// Result is one resolved location record.
type Result struct {
	Name        string
	Type        GeometryType
	Coordinates any // [2]float64 for Point; [][][2]float64 rings for Polygon/MultiPolygon; nil if unresolved.
}

// sanitizedAway lists the input strings discarded before ever calling a
// provider, case-insensitive.
var sanitizedAway = map[string]bool{
	"unknown":       true,
	"none":          true,
	"n/a":           true,
	"not specified": true,
	"unspecified":   true,
}

// Sanitize reports whether name is a real place name worth geocoding.
func Sanitize(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", false
	}
	if sanitizedAway[strings.ToLower(trimmed)] {
		return "", false
	}
	return trimmed, true
}

// PointProvider resolves a name to a single Point, or ok=false if no
// point result exists.
type PointProvider interface {
	GeocodePoint(ctx context.Context, name string) (lon, lat float64, ok bool, err error)
}

// PolygonProvider resolves a name to a boundary, or ok=false if no
// boundary result exists.
type PolygonProvider interface {
	GeocodeBoundary(ctx context.Context, name string) (geomType GeometryType, rings []geospatial.Ring, ok bool, err error)
}

// Geocoder implements the two-stage point-then-polygon policy over a
// disk-backed cache and an outbound rate limiter.
type Geocoder struct {
	points    PointProvider
	polygons  PolygonProvider
	limiter   *rate.Limiter
	cache     *bolt.DB
	cacheName []byte
}

const cacheBucket = "geocode_results"

// New builds a Geocoder backed by a bbolt cache file. cachePath may be
// empty to disable caching; results are then not cached at all, not even
// in memory.
func New(points PointProvider, polygons PolygonProvider, requestsPerSecond float64, cachePath string) (*Geocoder, error) {
	g := &Geocoder{
		points:   points,
		polygons: polygons,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}

	if cachePath != "" {
		db, err := bolt.Open(cachePath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
		if err != nil {
			return nil, apperrors.ConfigurationErrorf("open geocode cache %q: %v", cachePath, err)
		}
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
			return err
		}); err != nil {
			_ = db.Close()
			return nil, apperrors.ConfigurationErrorf("init geocode cache bucket: %v", err)
		}
		g.cache = db
	}

	return g, nil
}

// Close releases the on-disk cache handle, if any.
func (g *Geocoder) Close() error {
	if g.cache == nil {
		return nil
	}
	return g.cache.Close()
}

// Resolve resolves one place name: sanitize,
// check cache, Point lookup, Polygon/MultiPolygon fallback with
// decimation, then a Point(nil) placeholder if everything fails or the
// context is cancelled.
func (g *Geocoder) Resolve(ctx context.Context, name string) Result {
	clean, ok := Sanitize(name)
	if !ok {
		return Result{}
	}

	if cached, found := g.readCache(clean); found {
		return cached
	}

	result := g.resolveUncached(ctx, clean)
	g.writeCache(clean, result)
	return result
}

func (g *Geocoder) resolveUncached(ctx context.Context, name string) Result {
	if err := ctx.Err(); err != nil {
		return placeholder(name)
	}

	if g.points != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return placeholder(name)
		}
		lon, lat, ok, err := g.points.GeocodePoint(ctx, name)
		if err != nil {
			logging.Warn("geocode point lookup failed", "name", name, "error", err)
		}
		if ok {
			return Result{Name: name, Type: Point, Coordinates: [2]float64{lon, lat}}
		}
	}

	if ctx.Err() != nil {
		return placeholder(name)
	}

	if g.polygons != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return placeholder(name)
		}
		geomType, rings, ok, err := g.polygons.GeocodeBoundary(ctx, name)
		if err != nil {
			logging.Warn("geocode boundary lookup failed", "name", name, "error", err)
		}
		if ok {
			if geospatial.ExceedsMinimalCap(len(rings)) {
				// Even the minimal per-ring representation would overflow
				// the vertex cap; fall back to a point placeholder rather
				// than storing a degenerate shape.
				return placeholder(name)
			}
			decimated := geospatial.DecimateRings(rings)
			return Result{Name: name, Type: geomType, Coordinates: ringsToCoordinates(decimated)}
		}
	}

	return placeholder(name)
}

func placeholder(name string) Result {
	return Result{Name: name, Type: Point, Coordinates: nil}
}

func ringsToCoordinates(rings []geospatial.Ring) [][][2]float64 {
	out := make([][][2]float64, len(rings))
	for i, ring := range rings {
		points := make([][2]float64, len(ring))
		for j, p := range ring {
			points[j] = [2]float64(p)
		}
		out[i] = points
	}
	return out
}

type cacheEntry struct {
	Name        string          `json:"name"`
	Type        GeometryType    `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func (g *Geocoder) readCache(name string) (Result, bool) {
	if g.cache == nil {
		return Result{}, false
	}

	var entry cacheEntry
	found := false
	_ = g.cache.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(cacheBucket))
		if b == nil {
			return nil
		}
		raw := b.Get([]byte(strings.ToLower(name)))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if !found {
		return Result{}, false
	}

	var coords any
	if len(entry.Coordinates) > 0 && !bytes.Equal(entry.Coordinates, []byte("null")) {
		_ = json.Unmarshal(entry.Coordinates, &coords)
	}
	return Result{Name: entry.Name, Type: entry.Type, Coordinates: coords}, true
}

func (g *Geocoder) writeCache(name string, result Result) {
	if g.cache == nil {
		return
	}

	coords, err := json.Marshal(result.Coordinates)
	if err != nil {
		return
	}
	entry := cacheEntry{Name: result.Name, Type: result.Type, Coordinates: coords}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_ = g.cache.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(strings.ToLower(name)), raw)
	})
}

// NominatimProvider implements PointProvider and PolygonProvider against
// the public Nominatim OpenStreetMap search API — the only concrete
// geocoding backend wired in by default. No pack example ships a
// geocoding SDK, so this talks HTTP directly with net/http rather than
// reaching for an unrelated library just to avoid stdlib; see DESIGN.md.
type NominatimProvider struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// NewNominatimProvider builds a provider against the public Nominatim
// instance with a 60s request timeout.
func NewNominatimProvider(userAgent string) *NominatimProvider {
	return &NominatimProvider{
		BaseURL:    "https://nominatim.openstreetmap.org",
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		UserAgent:  userAgent,
	}
}

type nominatimResult struct {
	Lat         string          `json:"lat"`
	Lon         string          `json:"lon"`
	GeoJSON     json.RawMessage `json:"geojson"`
	DisplayName string          `json:"display_name"`
}

func (p *NominatimProvider) search(ctx context.Context, name string, polygon bool) ([]nominatimResult, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	if polygon {
		q.Set("polygon_geojson", "1")
	}

	reqURL := fmt.Sprintf("%s/search?%s", p.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, apperrors.UpstreamErrorf(err, "nominatim request for %q", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.UpstreamErrorf(nil, "nominatim returned status %d for %q", resp.StatusCode, name)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, apperrors.UpstreamErrorf(err, "decode nominatim response for %q", name)
	}
	return results, nil
}

func (p *NominatimProvider) GeocodePoint(ctx context.Context, name string) (float64, float64, bool, error) {
	results, err := p.search(ctx, name, false)
	if err != nil || len(results) == 0 {
		return 0, 0, false, err
	}

	var lon, lat float64
	if _, err := fmt.Sscanf(results[0].Lon, "%f", &lon); err != nil {
		return 0, 0, false, nil
	}
	if _, err := fmt.Sscanf(results[0].Lat, "%f", &lat); err != nil {
		return 0, 0, false, nil
	}
	return lon, lat, true, nil
}

type geoJSONGeometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

func (p *NominatimProvider) GeocodeBoundary(ctx context.Context, name string) (GeometryType, []geospatial.Ring, bool, error) {
	results, err := p.search(ctx, name, true)
	if err != nil || len(results) == 0 || len(results[0].GeoJSON) == 0 {
		return "", nil, false, err
	}

	var geom geoJSONGeometry
	if err := json.Unmarshal(results[0].GeoJSON, &geom); err != nil {
		return "", nil, false, nil
	}

	switch geom.Type {
	case "Polygon":
		rings, ok := decodePolygonCoordinates(geom.Coordinates)
		if !ok {
			return "", nil, false, nil
		}
		return Polygon, rings, true, nil
	case "MultiPolygon":
		rings, ok := decodeMultiPolygonCoordinates(geom.Coordinates)
		if !ok {
			return "", nil, false, nil
		}
		return MultiPolygon, rings, true, nil
	default:
		return "", nil, false, nil
	}
}

func decodePolygonCoordinates(raw any) ([]geospatial.Ring, bool) {
	outer, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	rings := make([]geospatial.Ring, 0, len(outer))
	for _, ringRaw := range outer {
		ring, ok := decodeRing(ringRaw)
		if !ok {
			return nil, false
		}
		rings = append(rings, ring)
	}
	return rings, true
}

func decodeMultiPolygonCoordinates(raw any) ([]geospatial.Ring, bool) {
	polygons, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	var rings []geospatial.Ring
	for _, polyRaw := range polygons {
		polyRings, ok := decodePolygonCoordinates(polyRaw)
		if !ok {
			return nil, false
		}
		rings = append(rings, polyRings...)
	}
	return rings, true
}

func decodeRing(raw any) (geospatial.Ring, bool) {
	points, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	ring := make(geospatial.Ring, 0, len(points))
	for _, pointRaw := range points {
		coords, ok := pointRaw.([]any)
		if !ok || len(coords) < 2 {
			return nil, false
		}
		lon, ok1 := coords[0].(float64)
		lat, ok2 := coords[1].(float64)
		if !ok1 || !ok2 {
			return nil, false
		}
		ring = append(ring, geospatial.Point{lon, lat})
	}
	return ring, true
}

package graphwriter

import (
	"encoding/json"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/identity"
)

// maxCoordinatesJSONBytes is the hard cap on a stored polygon/
// multipolygon's JSON coordinate payload; anything larger degrades to
// null rather than being stored.
const maxCoordinatesJSONBytes = 200_000

// contextRecord is one (interval, location) pair ready to MERGE as a
// Context node, carrying its content-addressed id precomputed in Go
// so the Cypher layer never has to compute a hash.
type contextRecord struct {
	ID           string
	FromTime     any // string or nil
	ToTime       any // string or nil
	LocationName string
	SpatialType  string
	Coordinates  any // neo4j.Point2D, string (JSON), or nil
	Certainty    float64
}

// unknownSpatial is the zero-value location substituted when a fact
// carries no spatial context at all.
var unknownSpatial = facts.SpatialContext{Name: "unknown", Type: facts.SpatialUnknown}

// unknownInterval is the zero-value interval substituted when a fact
// carries no temporal bound at all.
var unknownInterval = facts.TemporalInterval{}

// buildContextRecord computes a contextRecord's content-addressed id and
// driver-ready coordinate value for one (interval, location) pair.
func buildContextRecord(interval facts.TemporalInterval, loc facts.SpatialContext) contextRecord {
	name := loc.Name
	if name == "" {
		name = "unknown"
	}
	spatialType := string(loc.Type)
	if spatialType == "" {
		spatialType = string(facts.SpatialUnknown)
	}

	id := identity.ContextID(derefOr(interval.StartTime, ""), derefOr(interval.EndTime, ""), name, spatialType, loc.Coordinates)

	return contextRecord{
		ID:           id,
		FromTime:     derefPtr(interval.StartTime),
		ToTime:       derefPtr(interval.EndTime),
		LocationName: name,
		SpatialType:  spatialType,
		Coordinates:  storedCoordinates(spatialType, loc.Coordinates),
		Certainty:    1.0,
	}
}

// storedCoordinates converts a resolved geometry into the value sent to
// the driver: a native neo4j.Point2D for Point geometries, a minified
// JSON string for Polygon/MultiPolygon capped at maxCoordinatesJSONBytes, or
// nil when unresolved or oversized.
func storedCoordinates(spatialType string, coordinates any) any {
	if coordinates == nil {
		return nil
	}

	if strings.EqualFold(spatialType, string(facts.SpatialPoint)) {
		switch pt := coordinates.(type) {
		case [2]float64:
			return neo4j.Point2D{SpatialRefId: 4326, X: pt[0], Y: pt[1]}
		case []float64:
			if len(pt) == 2 {
				return neo4j.Point2D{SpatialRefId: 4326, X: pt[0], Y: pt[1]}
			}
		}
		return nil
	}

	raw, err := json.Marshal(coordinates)
	if err != nil || len(raw) > maxCoordinatesJSONBytes {
		return nil
	}
	return string(raw)
}

func derefPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// cartesianContexts builds the cartesian product of intervals × locations,
// substituting the single "unknown" placeholder on whichever side is
// empty. The create-fresh path and the append diff's "new × all" /
// "all × new" blocks both go through here.
func cartesianContexts(intervals []facts.TemporalInterval, locations []facts.SpatialContext) []contextRecord {
	ti := intervals
	if len(ti) == 0 {
		ti = []facts.TemporalInterval{unknownInterval}
	}
	loc := locations
	if len(loc) == 0 {
		loc = []facts.SpatialContext{unknownSpatial}
	}

	out := make([]contextRecord, 0, len(ti)*len(loc))
	for _, interval := range ti {
		for _, l := range loc {
			out = append(out, buildContextRecord(interval, l))
		}
	}
	return out
}

// dedupeContexts drops later records whose id was already seen, so a
// MERGE parameter list never repeats the same content-addressed id
// (harmless for MERGE itself, but keeps the append statement's UNWIND
// list minimal).
func dedupeContexts(records []contextRecord) []contextRecord {
	seen := make(map[string]bool, len(records))
	out := make([]contextRecord, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func intervalKey(i facts.TemporalInterval) string {
	return derefOr(i.StartTime, "__NULL__") + "|" + derefOr(i.EndTime, "__NULL__")
}

func locationKey(l facts.SpatialContext) string {
	name := l.Name
	if name == "" {
		name = "unknown"
	}
	spatialType := string(l.Type)
	if spatialType == "" {
		spatialType = string(facts.SpatialUnknown)
	}
	return name + "|" + spatialType + "|" + identity.CoordinateSignature(spatialType, l.Coordinates)
}

// diffIntervals returns the entries of next not present in existing, by
// (start,end) key.
func diffIntervals(next, existing []facts.TemporalInterval) []facts.TemporalInterval {
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[intervalKey(e)] = true
	}
	var out []facts.TemporalInterval
	seen := map[string]bool{}
	for _, n := range next {
		k := intervalKey(n)
		if have[k] || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}

// diffLocations returns the entries of next not present in existing, by
// (name,type,coord-signature) key.
func diffLocations(next, existing []facts.SpatialContext) []facts.SpatialContext {
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[locationKey(e)] = true
	}
	var out []facts.SpatialContext
	seen := map[string]bool{}
	for _, n := range next {
		k := locationKey(n)
		if have[k] || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}

// unionLocations concatenates and deduplicates a and b, preserving first
// occurrence order.
func unionLocations(a, b []facts.SpatialContext) []facts.SpatialContext {
	seen := map[string]bool{}
	out := make([]facts.SpatialContext, 0, len(a)+len(b))
	for _, l := range append(append([]facts.SpatialContext{}, a...), b...) {
		k := locationKey(l)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, l)
	}
	return out
}

// unionIntervals concatenates and deduplicates a and b, preserving first
// occurrence order.
func unionIntervals(a, b []facts.TemporalInterval) []facts.TemporalInterval {
	seen := map[string]bool{}
	out := make([]facts.TemporalInterval, 0, len(a)+len(b))
	for _, i := range append(append([]facts.TemporalInterval{}, a...), b...) {
		k := intervalKey(i)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, i)
	}
	return out
}

// contextParams renders records as the $newContexts parameter list the
// append/create Cypher UNWINDs over.
func contextParams(records []contextRecord) []map[string]any {
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = map[string]any{
			"id":            r.ID,
			"from_time":     r.FromTime,
			"to_time":       r.ToTime,
			"location_name": r.LocationName,
			"spatial_type":  r.SpatialType,
			"coordinates":   r.Coordinates,
			"certainty":     r.Certainty,
		}
	}
	return out
}

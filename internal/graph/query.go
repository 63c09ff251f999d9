package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hyperstructure/ingestor/internal/geospatial"
)

// SpatiotemporalQuery is the parameter set for GET
// /api/hyperstructure/data's combined temporal, location-name, and
// distance filters.
type SpatiotemporalQuery struct {
	StartTime                      string
	EndTime                        string
	LocationNames                  []string
	LocationCoordinates            [2]float64 // [lon, lat]; zero value means "not provided"
	HasLocationCoordinates         bool
	RadiusKM                       float64
	IncludeSpatiallyUnconstrained  bool
	IncludeTemporallyUnconstrained bool
}

// HyperedgeRecord is one row of the read-side query result: a hyperedge
// plus its subjects, objects, and contexts, denormalized for the
// frontend's visualisation layer.
type HyperedgeRecord struct {
	ID           string
	RelationType string
	EntityCount  int
	Subjects     []string
	Objects      []string
	Contexts     []ContextRecord
}

// ContextRecord is one VALID_IN context attached to a hyperedge.
type ContextRecord struct {
	ID           string
	FromTime     string
	ToTime       string
	LocationName string
	SpatialType  string
	Coordinates  any
	Certainty    float64
}

// QuerySpatiotemporal runs the combined temporal+spatial read query
// backing GET /api/hyperstructure/data: a Cypher-side filter on the
// contexts' temporal bounds and location names, then the Go-side
// point-distance filter when LocationCoordinates and RadiusKM are set.
// IncludeTemporallyUnconstrained and IncludeSpatiallyUnconstrained each
// admit only hyperedges with no context at all; a hyperedge whose contexts
// carry a name but no Point/Polygon geometry is not admitted by them.
func (c *Client) QuerySpatiotemporal(ctx context.Context, q SpatiotemporalQuery) ([]HyperedgeRecord, error) {
	query := `
MATCH (h:Hyperedge)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
OPTIONAL MATCH (h)-[:VALID_IN]->(c:Context)
WITH h, collect(DISTINCT s.id) AS subjects, collect(DISTINCT o.id) AS objects, collect(DISTINCT c) AS contexts
WHERE
  ($startTime IS NULL OR any(ctx IN contexts WHERE ctx.to_time IS NULL OR ctx.to_time >= $startTime) OR ($includeTemporallyUnconstrained AND size(contexts) = 0))
  AND
  ($endTime IS NULL OR any(ctx IN contexts WHERE ctx.from_time IS NULL OR ctx.from_time <= $endTime) OR ($includeTemporallyUnconstrained AND size(contexts) = 0))
  AND
  (size($locationNames) = 0 OR any(ctx IN contexts WHERE ctx.location_name IN $locationNames) OR ($includeSpatiallyUnconstrained AND size(contexts) = 0))
RETURN h.id AS id, h.relation_type AS relationType, h.entity_count AS entityCount,
       subjects, objects,
       [ctx IN contexts | {id: ctx.id, from_time: ctx.from_time, to_time: ctx.to_time,
                            location_name: ctx.location_name, spatial_type: ctx.spatial_type,
                            coordinates: ctx.coordinates, certainty: ctx.certainty}] AS contexts
`
	params := map[string]any{
		"startTime":                      nullableString(q.StartTime),
		"endTime":                        nullableString(q.EndTime),
		"locationNames":                  q.LocationNames,
		"includeTemporallyUnconstrained": q.IncludeTemporallyUnconstrained,
		"includeSpatiallyUnconstrained":  q.IncludeSpatiallyUnconstrained,
	}

	rows, err := c.RunRead(ctx, "spatiotemporal_query", query, params)
	if err != nil {
		return nil, fmt.Errorf("query spatiotemporal: %w", err)
	}

	records := rowsToRecords(rows)
	if q.HasLocationCoordinates && q.RadiusKM > 0 {
		records = filterByDistance(records, q.LocationCoordinates, q.RadiusKM, q.IncludeSpatiallyUnconstrained)
	}
	return records, nil
}

// QueryBySpatialDistance restricts to hyperedges with at least one Point
// context within radiusKM of center, using Neo4j's native point.distance
// as a coarse pre-filter and then the same Go-side filter for exactness,
// rather than pulling everything client-side.
func (c *Client) QueryBySpatialDistance(ctx context.Context, center [2]float64, radiusKM float64, includeUnconstrained bool) ([]HyperedgeRecord, error) {
	query := `
MATCH (h:Hyperedge)-[:VALID_IN]->(c:Context {spatial_type: 'Point'})
WHERE c.coordinates IS NOT NULL
  AND point.distance(c.coordinates, point({longitude: $lon, latitude: $lat})) <= $radiusMeters
WITH DISTINCT h
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
OPTIONAL MATCH (h)-[:VALID_IN]->(c2:Context)
RETURN h.id AS id, h.relation_type AS relationType, h.entity_count AS entityCount,
       collect(DISTINCT s.id) AS subjects, collect(DISTINCT o.id) AS objects,
       [ctx IN collect(DISTINCT c2) | {id: ctx.id, from_time: ctx.from_time, to_time: ctx.to_time,
                            location_name: ctx.location_name, spatial_type: ctx.spatial_type,
                            coordinates: ctx.coordinates, certainty: ctx.certainty}] AS contexts
`
	params := map[string]any{
		"lon":          center[0],
		"lat":          center[1],
		"radiusMeters": radiusKM * 1000,
	}

	rows, err := c.RunRead(ctx, "spatiotemporal_query", query, params)
	if err != nil {
		return nil, fmt.Errorf("query by spatial distance: %w", err)
	}

	records := rowsToRecords(rows)
	records = filterByDistance(records, center, radiusKM, false)
	if includeUnconstrained {
		unconstrained, err := c.queryUnconstrained(ctx)
		if err != nil {
			return nil, err
		}
		records = append(records, unconstrained...)
	}
	return records, nil
}

// QueryByLocationName restricts to hyperedges with a context whose
// location_name exactly matches one of names.
func (c *Client) QueryByLocationName(ctx context.Context, names []string, includeUnconstrained bool) ([]HyperedgeRecord, error) {
	query := `
MATCH (h:Hyperedge)-[:VALID_IN]->(c:Context)
WHERE c.location_name IN $names
WITH DISTINCT h
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
OPTIONAL MATCH (h)-[:VALID_IN]->(c2:Context)
RETURN h.id AS id, h.relation_type AS relationType, h.entity_count AS entityCount,
       collect(DISTINCT s.id) AS subjects, collect(DISTINCT o.id) AS objects,
       [ctx IN collect(DISTINCT c2) | {id: ctx.id, from_time: ctx.from_time, to_time: ctx.to_time,
                            location_name: ctx.location_name, spatial_type: ctx.spatial_type,
                            coordinates: ctx.coordinates, certainty: ctx.certainty}] AS contexts
`
	rows, err := c.RunRead(ctx, "spatiotemporal_query", query, map[string]any{"names": names})
	if err != nil {
		return nil, fmt.Errorf("query by location name: %w", err)
	}

	records := rowsToRecords(rows)
	if includeUnconstrained {
		unconstrained, err := c.queryUnconstrained(ctx)
		if err != nil {
			return nil, err
		}
		records = append(records, unconstrained...)
	}
	return records, nil
}

// QueryBySpatialArea returns hyperedges whose Point
// contexts fall within a bounding-box pre-filter on areaRing's bounds, then
// an exact point-in-polygon / polygon-intersection test in Go for both
// Point and Polygon/MultiPolygon contexts, the same two-phase shape as
// QueryBySpatialDistance's point pre-filter plus the
// geospatial helpers.
func (c *Client) QueryBySpatialArea(ctx context.Context, areaRing geospatial.Ring) ([]HyperedgeRecord, error) {
	minLon, maxLon, minLat, maxLat := ringBounds(areaRing)

	query := `
MATCH (h:Hyperedge)-[:VALID_IN]->(c:Context)
WHERE c.coordinates IS NOT NULL
  AND (
    (c.spatial_type = 'Point' AND c.coordinates.longitude >= $minLon AND c.coordinates.longitude <= $maxLon
       AND c.coordinates.latitude >= $minLat AND c.coordinates.latitude <= $maxLat)
    OR c.spatial_type IN ['Polygon', 'MultiPolygon']
  )
WITH DISTINCT h, c
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
OPTIONAL MATCH (h)-[:VALID_IN]->(c2:Context)
RETURN h.id AS id, h.relation_type AS relationType, h.entity_count AS entityCount,
       collect(DISTINCT s.id) AS subjects, collect(DISTINCT o.id) AS objects,
       [ctx IN collect(DISTINCT c2) | {id: ctx.id, from_time: ctx.from_time, to_time: ctx.to_time,
                            location_name: ctx.location_name, spatial_type: ctx.spatial_type,
                            coordinates: ctx.coordinates, certainty: ctx.certainty}] AS contexts
`
	rows, err := c.RunRead(ctx, "spatiotemporal_query", query, map[string]any{
		"minLon": minLon, "maxLon": maxLon, "minLat": minLat, "maxLat": maxLat,
	})
	if err != nil {
		return nil, fmt.Errorf("query by spatial area: %w", err)
	}

	candidates := rowsToRecords(rows)
	out := make([]HyperedgeRecord, 0, len(candidates))
	for _, rec := range candidates {
		if recordIntersectsArea(rec, areaRing) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetHyperedgeDetails returns the normalized temporal/spatial shape for a
// single hyperedge id, backing
// GET /api/hyperedge/extract_structured_data.
func (c *Client) GetHyperedgeDetails(ctx context.Context, id string) (*HyperedgeRecord, error) {
	query := `
MATCH (h:Hyperedge {id: $id})
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
OPTIONAL MATCH (h)-[:VALID_IN]->(c:Context)
RETURN h.id AS id, h.relation_type AS relationType, h.entity_count AS entityCount,
       collect(DISTINCT s.id) AS subjects, collect(DISTINCT o.id) AS objects,
       [ctx IN collect(DISTINCT c) | {id: ctx.id, from_time: ctx.from_time, to_time: ctx.to_time,
                            location_name: ctx.location_name, spatial_type: ctx.spatial_type,
                            coordinates: ctx.coordinates, certainty: ctx.certainty}] AS contexts
`
	rows, err := c.RunRead(ctx, "spatiotemporal_query", query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get hyperedge details %s: %w", id, err)
	}
	if len(rows) == 0 || rows[0]["id"] == nil {
		return nil, nil
	}
	records := rowsToRecords(rows)
	return &records[0], nil
}

func (c *Client) queryUnconstrained(ctx context.Context) ([]HyperedgeRecord, error) {
	query := `
MATCH (h:Hyperedge)
WHERE NOT EXISTS { (h)-[:VALID_IN]->(:Context) }
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
RETURN h.id AS id, h.relation_type AS relationType, h.entity_count AS entityCount,
       collect(DISTINCT s.id) AS subjects, collect(DISTINCT o.id) AS objects,
       [] AS contexts
`
	rows, err := c.RunRead(ctx, "spatiotemporal_query", query, nil)
	if err != nil {
		return nil, fmt.Errorf("query unconstrained: %w", err)
	}
	return rowsToRecords(rows), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rowsToRecords(rows []map[string]any) []HyperedgeRecord {
	out := make([]HyperedgeRecord, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id == "" {
			continue
		}
		rec := HyperedgeRecord{
			ID:           id,
			RelationType: asString(row["relationType"]),
			EntityCount:  asInt(row["entityCount"]),
			Subjects:     asStringSlice(row["subjects"]),
			Objects:      asStringSlice(row["objects"]),
		}
		for _, rawCtx := range asMapSlice(row["contexts"]) {
			if rawCtx["id"] == nil {
				continue
			}
			rec.Contexts = append(rec.Contexts, ContextRecord{
				ID:           asString(rawCtx["id"]),
				FromTime:     asString(rawCtx["from_time"]),
				ToTime:       asString(rawCtx["to_time"]),
				LocationName: asString(rawCtx["location_name"]),
				SpatialType:  asString(rawCtx["spatial_type"]),
				Coordinates:  rawCtx["coordinates"],
				Certainty:    asFloat(rawCtx["certainty"]),
			})
		}
		out = append(out, rec)
	}
	return out
}

func recordIntersectsArea(rec HyperedgeRecord, area geospatial.Ring) bool {
	for _, ctx := range rec.Contexts {
		switch ctx.SpatialType {
		case "Point":
			if pt, ok := pointFromAny(ctx.Coordinates); ok && geospatial.PointInPolygon(pt, area) {
				return true
			}
		case "Polygon", "MultiPolygon":
			for _, ring := range ringsFromAny(ctx.Coordinates) {
				if geospatial.PolygonsIntersect(ring, area) {
					return true
				}
			}
		}
	}
	return false
}

func filterByDistance(records []HyperedgeRecord, center [2]float64, radiusKM float64, includeUnconstrained bool) []HyperedgeRecord {
	out := make([]HyperedgeRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Contexts) == 0 {
			if includeUnconstrained {
				out = append(out, rec)
			}
			continue
		}
		for _, ctx := range rec.Contexts {
			if ctx.SpatialType != "Point" {
				continue
			}
			if pt, ok := pointFromAny(ctx.Coordinates); ok && haversineKM(pt, geospatial.Point(center)) <= radiusKM {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func ringBounds(ring geospatial.Ring) (minLon, maxLon, minLat, maxLat float64) {
	if len(ring) == 0 {
		return 0, 0, 0, 0
	}
	minLon, maxLon = ring[0][0], ring[0][0]
	minLat, maxLat = ring[0][1], ring[0][1]
	for _, p := range ring[1:] {
		if p[0] < minLon {
			minLon = p[0]
		}
		if p[0] > maxLon {
			maxLon = p[0]
		}
		if p[1] < minLat {
			minLat = p[1]
		}
		if p[1] > maxLat {
			maxLat = p[1]
		}
	}
	return
}

func pointFromAny(v any) (geospatial.Point, bool) {
	switch c := v.(type) {
	case neo4j.Point2D:
		return geospatial.Point{c.X, c.Y}, true
	case map[string]any:
		lon, ok1 := c["longitude"].(float64)
		lat, ok2 := c["latitude"].(float64)
		if ok1 && ok2 {
			return geospatial.Point{lon, lat}, true
		}
	case [2]float64:
		return geospatial.Point(c), true
	case []any:
		if len(c) == 2 {
			lon, ok1 := c[0].(float64)
			lat, ok2 := c[1].(float64)
			if ok1 && ok2 {
				return geospatial.Point{lon, lat}, true
			}
		}
	}
	return geospatial.Point{}, false
}

// ringsFromAny parses a stored Polygon/MultiPolygon's minified JSON
// coordinate string back into rings for the Go-side intersection test
// (the inverse of graphwriter's storedCoordinates JSON encoding).
func ringsFromAny(v any) []geospatial.Ring {
	raw, ok := v.(string)
	if !ok {
		return nil
	}
	var nested [][][2]float64
	if err := json.Unmarshal([]byte(raw), &nested); err != nil {
		return nil
	}
	rings := make([]geospatial.Ring, len(nested))
	for i, ring := range nested {
		r := make(geospatial.Ring, len(ring))
		for j, p := range ring {
			r[j] = geospatial.Point(p)
		}
		rings[i] = r
	}
	return rings
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func asStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asMapSlice(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// haversineKM computes the great-circle distance in kilometers between
// two [lon, lat] points.
func haversineKM(a, b geospatial.Point) float64 {
	const earthRadiusKM = 6371.0
	lat1, lon1 := degToRad(a[1]), degToRad(a[0])
	lat2, lon2 := degToRad(b[1]), degToRad(b[0])
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

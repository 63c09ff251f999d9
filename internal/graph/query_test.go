package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperstructure/ingestor/internal/geospatial"
)

func TestRowsToRecords_SkipsRowsWithoutID(t *testing.T) {
	rows := []map[string]any{
		{"id": "", "relationType": "joined"},
		{
			"id":           "h1",
			"relationType": "joined",
			"entityCount":  float64(2),
			"subjects":     []any{"Alice"},
			"objects":      []any{"Acme"},
			"contexts": []any{
				map[string]any{
					"id": "ctx1", "from_time": "2020", "to_time": "",
					"location_name": "Paris", "spatial_type": "Point",
					"coordinates": map[string]any{"longitude": 2.0, "latitude": 48.0},
					"certainty":   1.0,
				},
			},
		},
	}

	records := rowsToRecords(rows)
	assert.Len(t, records, 1)
	assert.Equal(t, "h1", records[0].ID)
	assert.Equal(t, 2, records[0].EntityCount)
	assert.Equal(t, []string{"Alice"}, records[0].Subjects)
	assert.Equal(t, []string{"Acme"}, records[0].Objects)
	assert.Len(t, records[0].Contexts, 1)
	assert.Equal(t, "Paris", records[0].Contexts[0].LocationName)
}

func TestRowsToRecords_SkipsContextsWithoutID(t *testing.T) {
	rows := []map[string]any{{
		"id":       "h1",
		"subjects": []any{}, "objects": []any{},
		"contexts": []any{map[string]any{"id": nil, "location_name": "Paris"}},
	}}

	records := rowsToRecords(rows)
	assert.Len(t, records, 1)
	assert.Empty(t, records[0].Contexts)
}

func TestRingBounds_ComputesMinMax(t *testing.T) {
	ring := geospatial.Ring{{0, 0}, {4, 1}, {2, -3}, {-1, 5}}
	minLon, maxLon, minLat, maxLat := ringBounds(ring)
	assert.Equal(t, -1.0, minLon)
	assert.Equal(t, 4.0, maxLon)
	assert.Equal(t, -3.0, minLat)
	assert.Equal(t, 5.0, maxLat)
}

func TestRingBounds_EmptyRingIsZero(t *testing.T) {
	minLon, maxLon, minLat, maxLat := ringBounds(nil)
	assert.Equal(t, 0.0, minLon)
	assert.Equal(t, 0.0, maxLon)
	assert.Equal(t, 0.0, minLat)
	assert.Equal(t, 0.0, maxLat)
}

func TestPointFromAny(t *testing.T) {
	pt, ok := pointFromAny(map[string]any{"longitude": 2.5, "latitude": 48.8})
	assert.True(t, ok)
	assert.Equal(t, geospatial.Point{2.5, 48.8}, pt)

	pt, ok = pointFromAny([]any{2.5, 48.8})
	assert.True(t, ok)
	assert.Equal(t, geospatial.Point{2.5, 48.8}, pt)

	_, ok = pointFromAny("not a point")
	assert.False(t, ok)
}

func TestRingsFromAny_ParsesStoredPolygonJSON(t *testing.T) {
	raw := `[[[0,0],[0,1],[1,1],[1,0],[0,0]]]`
	rings := ringsFromAny(raw)
	assert.Len(t, rings, 1)
	assert.Len(t, rings[0], 5)
	assert.Equal(t, geospatial.Point{0, 0}, rings[0][0])
}

func TestRingsFromAny_NonStringReturnsNil(t *testing.T) {
	assert.Nil(t, ringsFromAny(42))
}

func TestRecordIntersectsArea_PointInsideRing(t *testing.T) {
	area := geospatial.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	rec := HyperedgeRecord{Contexts: []ContextRecord{{
		SpatialType: "Point",
		Coordinates: []any{5.0, 5.0},
	}}}
	assert.True(t, recordIntersectsArea(rec, area))

	rec.Contexts[0].Coordinates = []any{50.0, 50.0}
	assert.False(t, recordIntersectsArea(rec, area))
}

func TestFilterByDistance_KeepsUnconstrainedOnlyWhenRequested(t *testing.T) {
	records := []HyperedgeRecord{
		{ID: "bare"},
		{ID: "near", Contexts: []ContextRecord{{SpatialType: "Point", Coordinates: []any{2.0, 48.0}}}},
		{ID: "far", Contexts: []ContextRecord{{SpatialType: "Point", Coordinates: []any{150.0, 0.0}}}},
	}

	out := filterByDistance(records, [2]float64{2.0, 48.0}, 50, false)
	assert.Len(t, out, 1)
	assert.Equal(t, "near", out[0].ID)

	out = filterByDistance(records, [2]float64{2.0, 48.0}, 50, true)
	assert.Len(t, out, 2)
}

func TestHaversineKM_SamePointIsZero(t *testing.T) {
	assert.InDelta(t, 0.0, haversineKM(geospatial.Point{2.0, 48.0}, geospatial.Point{2.0, 48.0}), 1e-9)
}

func TestHaversineKM_KnownDistance(t *testing.T) {
	// Paris to London, roughly 340km as the crow flies.
	paris := geospatial.Point{2.3522, 48.8566}
	london := geospatial.Point{-0.1276, 51.5072}
	assert.InDelta(t, 340, haversineKM(paris, london), 15)
}

func TestAsStringSlice_DropsNonStringAndEmptyEntries(t *testing.T) {
	out := asStringSlice([]any{"a", "", 5, "b"})
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestAsInt_HandlesDriverNumericTypes(t *testing.T) {
	assert.Equal(t, 3, asInt(int64(3)))
	assert.Equal(t, 3, asInt(3))
	assert.Equal(t, 3, asInt(float64(3)))
	assert.Equal(t, 0, asInt("not a number"))
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "x", nullableString("x"))
}

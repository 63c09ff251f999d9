package geospatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func square() Ring {
	return Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
}

func TestPointInPolygon(t *testing.T) {
	assert.True(t, PointInPolygon(Point{5, 5}, square()))
	assert.False(t, PointInPolygon(Point{50, 50}, square()))
}

func TestPointInPolygonDegenerate(t *testing.T) {
	assert.False(t, PointInPolygon(Point{0, 0}, Ring{{0, 0}, {1, 1}}))
}

func TestBoundingBoxesOverlap(t *testing.T) {
	a := square()
	b := Ring{{5, 5}, {5, 15}, {15, 15}, {15, 5}, {5, 5}}
	c := Ring{{100, 100}, {100, 110}, {110, 110}, {110, 100}, {100, 100}}

	assert.True(t, BoundingBoxesOverlap(a, b))
	assert.False(t, BoundingBoxesOverlap(a, c))
}

func TestPolygonsIntersectOverlapping(t *testing.T) {
	a := square()
	b := Ring{{5, 5}, {5, 15}, {15, 15}, {15, 5}, {5, 5}}
	assert.True(t, PolygonsIntersect(a, b))
}

func TestPolygonsIntersectDisjoint(t *testing.T) {
	a := square()
	c := Ring{{100, 100}, {100, 110}, {110, 110}, {110, 100}, {100, 100}}
	assert.False(t, PolygonsIntersect(a, c))
}

func TestPolygonsIntersectOneInsideAnother(t *testing.T) {
	outer := square()
	inner := Ring{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}}
	assert.True(t, PolygonsIntersect(outer, inner))
}

func TestDecimateRingKeepsIndexZeroAndRecloses(t *testing.T) {
	ring := make(Ring, 40)
	for i := range ring {
		ring[i] = Point{float64(i), float64(i)}
	}
	ring[39] = ring[0] // closed

	out := decimateRing(ring, 10)
	assert.LessOrEqual(t, len(out), 11)
	assert.Equal(t, ring[0], out[0])
	assert.Equal(t, ring[0], out[len(out)-1], "closed ring must stay closed after decimation")
}

func TestDecimateRingsRespectsTotalCap(t *testing.T) {
	ring1 := make(Ring, 30)
	ring2 := make(Ring, 30)
	for i := 0; i < 30; i++ {
		ring1[i] = Point{float64(i), 0}
		ring2[i] = Point{float64(i), 1}
	}

	out := DecimateRings([]Ring{ring1, ring2})
	assert.LessOrEqual(t, TotalVertices(out), MaxTotalVertices)
}

func TestExceedsMinimalCap(t *testing.T) {
	assert.False(t, ExceedsMinimalCap(4))
	assert.True(t, ExceedsMinimalCap(6))
}

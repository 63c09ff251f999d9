// Package geospatial implements the pure computational-geometry helpers
// the graph writer and read-side spatiotemporal queries share: point-in-
// polygon, polygon/polygon intersection, and deterministic polygon
// decimation.
package geospatial

import "math"

// Point is a [longitude, latitude] pair.
type Point [2]float64

// Ring is a closed or open list of points forming one polygon boundary.
type Ring []Point

// PointInPolygon reports whether point lies inside ring using the ray
// casting algorithm (even-odd rule).
func PointInPolygon(point Point, ring Ring) bool {
	if len(ring) < 3 {
		return false
	}

	x, y := point[0], point[1]
	n := len(ring)
	inside := false

	p1x, p1y := ring[0][0], ring[0][1]
	var xIntersect float64
	for i := 0; i <= n; i++ {
		p2x, p2y := ring[i%n][0], ring[i%n][1]
		if y > math.Min(p1y, p2y) && y <= math.Max(p1y, p2y) && x <= math.Max(p1x, p2x) {
			if p1y != p2y {
				xIntersect = (y-p1y)*(p2x-p1x)/(p2y-p1y) + p1x
			}
			if p1x == p2x || x <= xIntersect {
				inside = !inside
			}
		}
		p1x, p1y = p2x, p2y
	}

	return inside
}

// BoundingBoxesOverlap reports whether the axis-aligned bounding boxes of
// two rings overlap — a cheap pre-filter before the more expensive
// intersection tests.
func BoundingBoxesOverlap(a, b Ring) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}

	aMinLon, aMaxLon, aMinLat, aMaxLat := bounds(a)
	bMinLon, bMaxLon, bMinLat, bMaxLat := bounds(b)

	return !(aMaxLon < bMinLon || bMaxLon < aMinLon || aMaxLat < bMinLat || bMaxLat < aMinLat)
}

func bounds(ring Ring) (minLon, maxLon, minLat, maxLat float64) {
	minLon, maxLon = ring[0][0], ring[0][0]
	minLat, maxLat = ring[0][1], ring[0][1]
	for _, p := range ring[1:] {
		minLon = math.Min(minLon, p[0])
		maxLon = math.Max(maxLon, p[0])
		minLat = math.Min(minLat, p[1])
		maxLat = math.Max(maxLat, p[1])
	}
	return
}

// EdgesIntersect reports whether segments (a1,a2) and (b1,b2) cross, using
// the counter-clockwise orientation test.
func EdgesIntersect(a1, a2, b1, b2 Point) bool {
	ccw := func(a, b, c Point) bool {
		return (c[1]-a[1])*(b[0]-a[0]) > (b[1]-a[1])*(c[0]-a[0])
	}
	return ccw(a1, b1, b2) != ccw(a2, b1, b2) && ccw(a1, a2, b1) != ccw(a1, a2, b2)
}

// PolygonsIntersect reports whether two polygons (each a single ring)
// intersect: bounding-box pre-check, then containment of either polygon's
// vertices in the other, then edge-crossing tests.
func PolygonsIntersect(a, b Ring) bool {
	if len(a) < 3 || len(b) < 3 {
		return false
	}

	if !BoundingBoxesOverlap(a, b) {
		return false
	}

	for _, p := range a {
		if PointInPolygon(p, b) {
			return true
		}
	}
	for _, p := range b {
		if PointInPolygon(p, a) {
			return true
		}
	}

	for i := range a {
		aStart, aEnd := a[i], a[(i+1)%len(a)]
		for j := range b {
			bStart, bEnd := b[j], b[(j+1)%len(b)]
			if EdgesIntersect(aStart, aEnd, bStart, bEnd) {
				return true
			}
		}
	}

	return false
}

// MaxTotalVertices is the hard cap on stored polygon geometry across
// all rings after decimation.
const MaxTotalVertices = 20

// DecimateRings samples each ring at an even stride so the total vertex
// count across all rings does not exceed MaxTotalVertices:
// stride = ceil(len(ring) / perRingCap), perRingCap =
// max(4, MaxTotalVertices/numRings), index 0 always kept, and a ring that
// was originally closed (first point == last point) is re-closed after
// sampling. If even the minimal per-ring representation would exceed the
// cap, the caller should fall back to a Point instead.
func DecimateRings(rings []Ring) []Ring {
	if len(rings) == 0 {
		return rings
	}

	perRingCap := MaxTotalVertices / len(rings)
	if perRingCap < 4 {
		perRingCap = 4
	}

	out := make([]Ring, len(rings))
	for i, ring := range rings {
		out[i] = decimateRing(ring, perRingCap)
	}
	return out
}

func decimateRing(ring Ring, cap int) Ring {
	if len(ring) <= cap {
		return ring
	}

	wasClosed := len(ring) > 1 && ring[0] == ring[len(ring)-1]

	slots := cap
	if wasClosed {
		slots = cap - 1 // leave room for the re-closing vertex
	}
	stride := int(math.Ceil(float64(len(ring)) / float64(slots)))
	if stride < 1 {
		stride = 1
	}

	sampled := make(Ring, 0, cap+1)
	for i := 0; i < len(ring); i += stride {
		sampled = append(sampled, ring[i])
	}

	if wasClosed && (len(sampled) == 0 || sampled[len(sampled)-1] != ring[0]) {
		sampled = append(sampled, ring[0])
	}

	return sampled
}

// TotalVertices sums vertex counts across all rings.
func TotalVertices(rings []Ring) int {
	total := 0
	for _, r := range rings {
		total += len(r)
	}
	return total
}

// ExceedsMinimalCap reports whether even the minimal 4-vertices-per-ring
// representation of these rings would exceed MaxTotalVertices — the
// signal for the geocoder to fall back to a bare Point.
func ExceedsMinimalCap(numRings int) bool {
	return numRings*4 > MaxTotalVertices
}

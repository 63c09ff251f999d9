// Package facts defines the tagged variant records passed between
// pipeline stages. Every stage from the Structured Extractor onward
// reads and writes these types rather than passing around maps, so a schema mismatch is a compile error, not a
// runtime KeyError.
package facts

// SpatialType is the sum-type tag for a Context's geometry.
type SpatialType string

const (
	SpatialPoint        SpatialType = "Point"
	SpatialPolygon      SpatialType = "Polygon"
	SpatialMultiPolygon SpatialType = "MultiPolygon"
	SpatialUnknown      SpatialType = "unknown"
)

// TemporalInterval is one `(start_time, end_time)` bound pair. Either bound
// may be nil (unknown), an ISO-8601 string, or a descriptive string the
// canonicaliser left unresolved (e.g. "start of the wedding").
type TemporalInterval struct {
	StartTime *string
	EndTime   *string
}

// SpatialContext is a single geocoded (or placeholder) location attached to
// a fact's Context set.
type SpatialContext struct {
	Name        string
	Type        SpatialType
	Coordinates any // [2]float64 for Point; [][][2]float64 rings for Polygon/MultiPolygon; nil if unresolved.
}

// TemporalFact is the Structured Extractor's primary output record.
// SpatialNames holds the raw, pre-geocoding location strings; the Spatial
// Expander replaces them with SpatialContexts.
type TemporalFact struct {
	Subjects          []string
	Objects           []string
	RelationType      string
	TemporalIntervals []TemporalInterval
	SpatialNames      []string
	SpatialContexts   []SpatialContext
}

// AffectedFactRef identifies a hyperedge by its set-equality key rather
// than its id, since the id may not be known to the LLM that produced the
// reference.
type AffectedFactRef struct {
	Subjects     []string
	Objects      []string
	RelationType string
}

// CauseRef pairs a referenced fact with the boolean the CAUSES_STATE /
// REQUIRES_STATE edge carries as its `required_state`/`triggers_state`
// property.
type CauseRef struct {
	Fact  AffectedFactRef
	State bool
}

// StateChangeEvent is the causal-inference output record. CausedBy is a
// list of OR-groups, each an AND'd set of causing
// facts (a group is satisfied when every fact in it holds) — this mirrors
// the inbound CAUSES_STATE edges being wired per group. Causes and
// RequiresState are flat: each entry becomes one outbound CAUSES_STATE /
// REQUIRES_STATE edge respectively.
type StateChangeEvent struct {
	ID            string
	AffectedFact  AffectedFactRef
	CausedBy      [][]CauseRef
	Causes        []CauseRef
	RequiresState []CauseRef
}

// Modification is a retroactive edit to an already-asserted fact.
// Exactly the fields that changed are non-nil/non-empty; the rest
// are left as zero values and ignored by the Graph Writer.
type Modification struct {
	AffectedFact AffectedFactRef

	NewRelationType *string

	NewTemporalIntervals []TemporalInterval
	NewSpatialContexts   []SpatialContext

	NewSubjects []string
	NewObjects  []string
}

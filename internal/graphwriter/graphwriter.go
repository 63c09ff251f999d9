// Package graphwriter implements the append-vs-create decision, the
// content-addressed MERGE/CREATE statements for every fact kind, and safe
// modification rewiring.
package graphwriter

import (
	"context"
	"fmt"

	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/identity"
)

// Runner is the subset of *graph.Client the writer depends on, kept as an
// interface so tests exercise the append-vs-create and Cypher-generation
// logic against a fake rather than a live Neo4j instance.
type Runner interface {
	Run(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error)
	RunRead(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error)
}

// Writer executes the graph mutations the ingestion pipeline produces.
type Writer struct {
	runner Runner
}

// New builds a Writer over the given Runner (normally a *graph.Client).
func New(runner Runner) *Writer {
	return &Writer{runner: runner}
}

// WriteResult reports what the write actually did, for progress-stream
// reporting and tests.
type WriteResult struct {
	HyperedgeID string
	Created     bool // true if a new hyperedge was created, false if an existing one was appended to
	Criterion   int  // which append criterion matched; 0 when Created
}

// WriteTemporalFact probes for an appendable hyperedge under the three
// ordered criteria, appends to the best match if one exists, and creates
// a fresh hyperedge otherwise.
func (w *Writer) WriteTemporalFact(ctx context.Context, fact facts.TemporalFact) (*WriteResult, error) {
	candidate, err := w.findAppendable(ctx, fact)
	if err != nil {
		return nil, err
	}

	if candidate != nil {
		id, err := w.appendToHyperedge(ctx, *candidate, fact)
		if err != nil {
			return nil, err
		}
		return &WriteResult{HyperedgeID: id, Created: false, Criterion: candidate.Criterion}, nil
	}

	id, err := w.createHyperedge(ctx, fact)
	if err != nil {
		return nil, err
	}
	return &WriteResult{HyperedgeID: id, Created: true}, nil
}

// createHyperedge MERGEs all entities, MERGEs the T×L context product (or
// the unknown-substituted variants), MERGEs the hyperedge under its
// deterministic id, and MERGEs every CONNECTS/VALID_IN edge, recomputing
// entity_count at the end.
func (w *Writer) createHyperedge(ctx context.Context, fact facts.TemporalFact) (string, error) {
	contexts := dedupeContexts(cartesianContexts(fact.TemporalIntervals, fact.SpatialContexts))
	contextIDs := make([]string, len(contexts))
	for i, c := range contexts {
		contextIDs[i] = c.ID
	}

	hyperedgeID := identity.HyperedgeID(fact.RelationType, fact.Subjects, fact.Objects, contextIDs)

	query := `
MERGE (h:Hyperedge {id: $hyperedgeId})
ON CREATE SET h.relation_type = $relationType, h.entity_count = 0
WITH h
UNWIND $subjects AS subjId
MERGE (s:Node {id: subjId})
ON CREATE SET s.type = 'entity'
MERGE (h)-[:CONNECTS {role: 'subject'}]->(s)
WITH DISTINCT h
UNWIND CASE WHEN size($objects) = 0 THEN [null] ELSE $objects END AS objId
FOREACH (_ IN CASE WHEN objId IS NOT NULL THEN [1] ELSE [] END |
  MERGE (o:Node {id: objId})
  ON CREATE SET o.type = 'entity'
  MERGE (h)-[:CONNECTS {role: 'object'}]->(o)
)
WITH DISTINCT h
UNWIND $contexts AS ctx
MERGE (c:Context {id: ctx.id})
ON CREATE SET c.from_time = ctx.from_time, c.to_time = ctx.to_time,
              c.location_name = ctx.location_name, c.spatial_type = ctx.spatial_type,
              c.coordinates = ctx.coordinates, c.certainty = ctx.certainty
MERGE (h)-[:VALID_IN]->(c)
WITH DISTINCT h
MATCH (h)-[:CONNECTS]->(n:Node)
WITH h, count(n) AS cnt
SET h.entity_count = cnt
RETURN h.id AS id
`
	params := map[string]any{
		"hyperedgeId":  hyperedgeID,
		"relationType": fact.RelationType,
		"subjects":     fact.Subjects,
		"objects":      fact.Objects,
		"contexts":     contextParams(contexts),
	}

	if _, err := w.runner.Run(ctx, "fact_write", query, params); err != nil {
		return "", fmt.Errorf("create hyperedge: %w", err)
	}
	return hyperedgeID, nil
}

// appendToHyperedge applies the uniform append-diff rule,
// regardless of which criterion matched: new subjects/objects are
// S\existing / O\existing; new contexts are (newTimes × allLocations) ∪
// (allTimes × newLocations), each MERGEd by content-addressed id;
// entity_count is recomputed from the live CONNECTS count afterward.
func (w *Writer) appendToHyperedge(ctx context.Context, candidate appendCandidate, fact facts.TemporalFact) (string, error) {
	newSubjects := diffByValue(fact.Subjects, candidate.Subjects)
	newObjects := diffByValue(fact.Objects, candidate.Objects)

	newTimes := diffIntervals(fact.TemporalIntervals, candidate.TemporalIntervals)
	newLocs := diffLocations(fact.SpatialContexts, candidate.SpatialContexts)

	allLocsForNewTimes := unionLocations(candidate.SpatialContexts, fact.SpatialContexts)
	allTimesForNewLocs := unionIntervals(candidate.TemporalIntervals, fact.TemporalIntervals)

	var newContexts []contextRecord
	if len(newTimes) > 0 {
		newContexts = append(newContexts, cartesianContexts(newTimes, allLocsForNewTimes)...)
	}
	if len(newLocs) > 0 {
		newContexts = append(newContexts, cartesianContexts(allTimesForNewLocs, newLocs)...)
	}
	newContexts = dedupeContexts(newContexts)

	query := `
MATCH (h:Hyperedge {id: $hyperedgeId})
WITH h
UNWIND CASE WHEN size($newSubjects) = 0 THEN [null] ELSE $newSubjects END AS subjId
FOREACH (_ IN CASE WHEN subjId IS NOT NULL THEN [1] ELSE [] END |
  MERGE (s:Node {id: subjId})
  ON CREATE SET s.type = 'entity'
  MERGE (h)-[:CONNECTS {role: 'subject'}]->(s)
)
WITH DISTINCT h
UNWIND CASE WHEN size($newObjects) = 0 THEN [null] ELSE $newObjects END AS objId
FOREACH (_ IN CASE WHEN objId IS NOT NULL THEN [1] ELSE [] END |
  MERGE (o:Node {id: objId})
  ON CREATE SET o.type = 'entity'
  MERGE (h)-[:CONNECTS {role: 'object'}]->(o)
)
WITH DISTINCT h
UNWIND CASE WHEN size($newContexts) = 0 THEN [null] ELSE $newContexts END AS ctx
FOREACH (_ IN CASE WHEN ctx IS NOT NULL THEN [1] ELSE [] END |
  MERGE (c:Context {id: ctx.id})
  ON CREATE SET c.from_time = ctx.from_time, c.to_time = ctx.to_time,
                c.location_name = ctx.location_name, c.spatial_type = ctx.spatial_type,
                c.coordinates = ctx.coordinates, c.certainty = ctx.certainty
  MERGE (h)-[:VALID_IN]->(c)
)
WITH DISTINCT h
MATCH (h)-[:CONNECTS]->(n:Node)
WITH h, count(n) AS cnt
SET h.entity_count = cnt
RETURN h.id AS id
`
	params := map[string]any{
		"hyperedgeId": candidate.ID,
		"newSubjects": newSubjects,
		"newObjects":  newObjects,
		"newContexts": contextParams(newContexts),
	}

	if _, err := w.runner.Run(ctx, "fact_write", query, params); err != nil {
		return "", fmt.Errorf("append hyperedge %s: %w", candidate.ID, err)
	}
	return candidate.ID, nil
}

// diffByValue returns the entries of next not present (by value) in
// existing, deduplicated and order-preserving.
func diffByValue(next, existing []string) []string {
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[e] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, n := range next {
		if have[n] || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

package graphwriter

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hyperstructure/ingestor/internal/facts"
)

// appendCandidate is an existing hyperedge eligible for the append path,
// with enough of its current state to compute the append diff.
type appendCandidate struct {
	ID                string
	Criterion         int // 1: (R,O,contexts); 2: (S,R,O); 3: (S,R,contexts)
	Subjects          []string
	Objects           []string
	TemporalIntervals []facts.TemporalInterval
	SpatialContexts   []facts.SpatialContext
}

// findAppendable runs the three ordered match criteria concurrently
// (errgroup-based concurrent append probing) and, among
// whichever probes matched, returns the lowest-numbered criterion's
// candidate — ties within a criterion are broken by smallest id,
// lexicographically.
func (w *Writer) findAppendable(ctx context.Context, fact facts.TemporalFact) (*appendCandidate, error) {
	results := make([]*appendCandidate, 4) // index 1..3 used

	g, gctx := errgroup.WithContext(ctx)
	for _, criterion := range []int{1, 2, 3} {
		criterion := criterion
		g.Go(func() error {
			id, ok, err := w.probeCriterion(gctx, criterion, fact)
			if err != nil {
				return fmt.Errorf("append probe criterion %d: %w", criterion, err)
			}
			if !ok {
				return nil
			}
			candidate, err := w.loadCandidate(gctx, id, criterion)
			if err != nil {
				return err
			}
			results[criterion] = candidate
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, criterion := range []int{1, 2, 3} {
		if results[criterion] != nil {
			return results[criterion], nil
		}
	}
	return nil, nil
}

// probeCriterion runs one of the three ordered match queries and returns
// the matched hyperedge's id, if any.
func (w *Writer) probeCriterion(ctx context.Context, criterion int, fact facts.TemporalFact) (string, bool, error) {
	query, params := criterionQuery(criterion, fact)
	if query == "" {
		return "", false, nil
	}

	rows, err := w.runner.RunRead(ctx, "append_probe", query, params)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	id, _ := rows[0]["id"].(string)
	return id, id != "", nil
}

// coalescedTimes renders a fact's temporal intervals as the __NULL__-
// coalesced [start,end] pairs the match queries compare against stored
// Context properties (nulls normalise to "__NULL__" before comparison).
// A fact with no intervals still gets one context on the write path
// (cartesianContexts substitutes the unknown interval), so the probe must
// compare against that same single [__NULL__, __NULL__] pair, not an
// empty set.
func coalescedTimes(intervals []facts.TemporalInterval) []any {
	if len(intervals) == 0 {
		return []any{[]string{"__NULL__", "__NULL__"}}
	}
	out := make([]any, len(intervals))
	for i, iv := range intervals {
		out[i] = []string{derefOr(iv.StartTime, "__NULL__"), derefOr(iv.EndTime, "__NULL__")}
	}
	return out
}

// coalescedNames mirrors the write path the same way: a fact with no
// spatial context is stored under the single "unknown" location
// (cartesianContexts substitutes unknownSpatial), so an empty input
// compares as ["unknown"].
func coalescedNames(spatial []facts.SpatialContext) []any {
	if len(spatial) == 0 {
		return []any{"unknown"}
	}
	out := make([]any, len(spatial))
	for i, s := range spatial {
		name := s.Name
		if name == "" {
			name = "unknown"
		}
		out[i] = name
	}
	return out
}

// criterionQuery builds the parameterized probe for one of the three
// ordered match criteria. Returns an empty query when
// the criterion cannot apply (criteria 2 and 3 require at least one
// subject, which every valid TemporalFact has, but the helper stays
// defensive).
func criterionQuery(criterion int, fact facts.TemporalFact) (string, map[string]any) {
	times := coalescedTimes(fact.TemporalIntervals)
	names := coalescedNames(fact.SpatialContexts)

	switch criterion {
	case 1: // (relation_type, objects, contexts) match
		q := `MATCH (h:Hyperedge {relation_type: $relation})` + "\n"
		if len(fact.Objects) > 0 {
			q += `MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
WITH h, collect(DISTINCT o.id) AS objIds
WHERE size(objIds) = size($objects) AND all(x IN objIds WHERE x IN $objects) AND all(x IN $objects WHERE x IN objIds)
`
		} else {
			q += `WHERE NOT EXISTS { (h)-[:CONNECTS {role: 'object'}]->() }
`
		}
		q += contextMatchClause("h") + `
RETURN h.id AS id ORDER BY h.id LIMIT 1`
		return q, map[string]any{
			"relation": fact.RelationType,
			"objects":  fact.Objects,
			"times":    times,
			"names":    names,
		}

	case 2: // (subjects, relation_type, objects) match
		if len(fact.Subjects) == 0 {
			return "", nil
		}
		q := `MATCH (h:Hyperedge {relation_type: $relation})
MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
WITH h, collect(DISTINCT s.id) AS subjIds
WHERE size(subjIds) = size($subjects) AND all(x IN subjIds WHERE x IN $subjects) AND all(x IN $subjects WHERE x IN subjIds)
`
		if len(fact.Objects) > 0 {
			q += `WITH h
MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
WITH h, collect(DISTINCT o.id) AS objIds
WHERE size(objIds) = size($objects) AND all(x IN objIds WHERE x IN $objects) AND all(x IN $objects WHERE x IN objIds)
`
		} else {
			q += `AND NOT EXISTS { (h)-[:CONNECTS {role: 'object'}]->() }
`
		}
		q += `RETURN h.id AS id ORDER BY h.id LIMIT 1`
		return q, map[string]any{
			"relation": fact.RelationType,
			"subjects": fact.Subjects,
			"objects":  fact.Objects,
		}

	case 3: // (subjects, relation_type, contexts) match
		if len(fact.Subjects) == 0 {
			return "", nil
		}
		q := `MATCH (h:Hyperedge {relation_type: $relation})
MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
WITH h, collect(DISTINCT s.id) AS subjIds
WHERE size(subjIds) = size($subjects) AND all(x IN subjIds WHERE x IN $subjects) AND all(x IN $subjects WHERE x IN subjIds)
`
		q += contextMatchClause("h") + `
RETURN h.id AS id ORDER BY h.id LIMIT 1`
		return q, map[string]any{
			"relation": fact.RelationType,
			"subjects": fact.Subjects,
			"times":    times,
			"names":    names,
		}
	}
	return "", nil
}

// contextMatchClause appends the shared "contexts match exactly"
// sub-clause used by criteria 1 and 3: the hyperedge's attached contexts'
// distinct (start,end) pairs and distinct location names must each equal
// the candidate fact's sets.
func contextMatchClause(hVar string) string {
	return fmt.Sprintf(`WITH %s
MATCH (%s)-[:VALID_IN]->(c:Context)
WITH %s, collect(DISTINCT [coalesce(c.from_time, '__NULL__'), coalesce(c.to_time, '__NULL__')]) AS times,
        collect(DISTINCT coalesce(c.location_name, '__NULL__')) AS names
WHERE size(times) = size($times) AND all(x IN times WHERE x IN $times) AND all(x IN $times WHERE x IN times)
  AND size(names) = size($names) AND all(x IN names WHERE x IN $names) AND all(x IN $names WHERE x IN names)`,
		hVar, hVar, hVar)
}

// loadCandidate fetches the full current state (subjects, objects,
// distinct temporal intervals, distinct spatial contexts) of a matched
// hyperedge, used to compute the append diff.
func (w *Writer) loadCandidate(ctx context.Context, id string, criterion int) (*appendCandidate, error) {
	query := `
MATCH (h:Hyperedge {id: $id})
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
OPTIONAL MATCH (h)-[:VALID_IN]->(c:Context)
RETURN h.id AS id,
       collect(DISTINCT s.id) AS subjects,
       collect(DISTINCT o.id) AS objects,
       collect(DISTINCT {start_time: c.from_time, end_time: c.to_time}) AS times,
       collect(DISTINCT {name: c.location_name, type: c.spatial_type, coordinates: c.coordinates}) AS locations
`
	rows, err := w.runner.RunRead(ctx, "append_probe", query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("load append candidate %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("append candidate %s vanished between probe and load", id)
	}

	row := rows[0]
	candidate := &appendCandidate{
		ID:        id,
		Criterion: criterion,
		Subjects:  toStringSlice(row["subjects"]),
		Objects:   toStringSlice(row["objects"]),
	}

	for _, raw := range toMapSlice(row["times"]) {
		start, _ := raw["start_time"].(string)
		end, _ := raw["end_time"].(string)
		iv := facts.TemporalInterval{}
		if start != "" {
			iv.StartTime = &start
		}
		if end != "" {
			iv.EndTime = &end
		}
		candidate.TemporalIntervals = append(candidate.TemporalIntervals, iv)
	}

	for _, raw := range toMapSlice(row["locations"]) {
		name, _ := raw["name"].(string)
		typ, _ := raw["type"].(string)
		if name == "" && typ == "" {
			continue
		}
		candidate.SpatialContexts = append(candidate.SpatialContexts, facts.SpatialContext{
			Name: name,
			Type: facts.SpatialType(typ),
		})
	}

	return candidate, nil
}

func toStringSlice(v any) []string {
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

func toMapSlice(v any) []map[string]any {
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

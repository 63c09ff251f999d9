package graphwriter

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperstructure/ingestor/internal/facts"
)

// WriteStateChangeEvent locates the hyperedge matching event.AffectedFact by
// exact subject/object set equality, creates a StateChangeEvent node, and
// wires its CAUSES_STATE / REQUIRES_STATE edges. Returns
// the event's id.
//
// Locating the affected hyperedge never uses path cardinality tricks:
// it matches a hyperedge with the right relation type whose
// subject/object sets are exactly equal, nothing more, nothing less.
func (w *Writer) WriteStateChangeEvent(ctx context.Context, event facts.StateChangeEvent) (string, error) {
	affectedID, err := w.locateHyperedgeBySet(ctx, event.AffectedFact)
	if err != nil {
		return "", err
	}
	if affectedID == "" {
		return "", fmt.Errorf("no hyperedge matches affected fact (relation=%q)", event.AffectedFact.RelationType)
	}

	id := event.ID
	if id == "" {
		id = "sce_" + uuid.NewString()[:8]
	}

	causeGroups := make([][]causeRefParam, len(event.CausedBy))
	for i, group := range event.CausedBy {
		causeGroups[i] = make([]causeRefParam, len(group))
		for j, ref := range group {
			hyperedgeID, err := w.resolveCauseRef(ctx, ref)
			if err != nil {
				return "", fmt.Errorf("resolve caused_by[%d][%d]: %w", i, j, err)
			}
			causeGroups[i][j] = causeRefParam{HyperedgeID: hyperedgeID, IsState: ref.State}
		}
	}

	causesRefs := make([]causeRefParam, len(event.Causes))
	for i, ref := range event.Causes {
		hyperedgeID, err := w.resolveCauseRef(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("resolve causes[%d]: %w", i, err)
		}
		causesRefs[i] = causeRefParam{HyperedgeID: hyperedgeID, IsState: ref.State}
	}

	requiresRefs := make([]causeRefParam, len(event.RequiresState))
	for i, ref := range event.RequiresState {
		hyperedgeID, err := w.resolveCauseRef(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("resolve requires_state[%d]: %w", i, err)
		}
		requiresRefs[i] = causeRefParam{HyperedgeID: hyperedgeID, IsState: ref.State}
	}

	// causedBy groups are OR-of-AND: each group is one sufficient cause set.
	// Flatten to a parameter list tagged with its group index so a single
	// UNWIND can wire every edge in one statement.
	flatCaused := make([]map[string]any, 0)
	for groupIdx, group := range causeGroups {
		for _, ref := range group {
			flatCaused = append(flatCaused, map[string]any{
				"group":          groupIdx,
				"hyperedgeId":    ref.HyperedgeID,
				"required_state": ref.IsState,
			})
		}
	}

	query := `
MERGE (evt:StateChangeEvent {id: $eventId})
WITH evt
MATCH (affected:Hyperedge {id: $affectedId})
MERGE (evt)-[:AFFECTS_FACT]->(affected)
WITH evt
UNWIND CASE WHEN size($causedBy) = 0 THEN [null] ELSE $causedBy END AS cb
FOREACH (_ IN CASE WHEN cb IS NOT NULL THEN [1] ELSE [] END |
  MERGE (src:Hyperedge {id: cb.hyperedgeId})
  MERGE (src)-[r:CAUSES_STATE]->(evt)
  SET r.group = cb.group, r.required_state = cb.required_state
)
WITH evt
UNWIND CASE WHEN size($causes) = 0 THEN [null] ELSE $causes END AS cs
FOREACH (_ IN CASE WHEN cs IS NOT NULL THEN [1] ELSE [] END |
  MERGE (dst:Hyperedge {id: cs.hyperedgeId})
  MERGE (evt)-[r2:CAUSES_STATE]->(dst)
  SET r2.triggers_state = cs.required_state
)
WITH evt
UNWIND CASE WHEN size($requiresState) = 0 THEN [null] ELSE $requiresState END AS rq
FOREACH (_ IN CASE WHEN rq IS NOT NULL THEN [1] ELSE [] END |
  MERGE (req:Hyperedge {id: rq.hyperedgeId})
  MERGE (evt)-[rel:REQUIRES_STATE]->(req)
  SET rel.required_state = rq.required_state
)
RETURN evt.id AS id
`
	params := map[string]any{
		"eventId":       id,
		"affectedId":    affectedID,
		"causedBy":      flatCaused,
		"causes":        toParamList(causesRefs),
		"requiresState": toParamList(requiresRefs),
	}

	if _, err := w.runner.Run(ctx, "state_change_write", query, params); err != nil {
		return "", fmt.Errorf("write state change event %s: %w", id, err)
	}
	return id, nil
}

type causeRefParam struct {
	HyperedgeID string
	IsState     bool
}

func toParamList(refs []causeRefParam) []map[string]any {
	out := make([]map[string]any, len(refs))
	for i, r := range refs {
		out[i] = map[string]any{"hyperedgeId": r.HyperedgeID, "required_state": r.IsState}
	}
	return out
}

// resolveCauseRef looks up a CauseRef's hyperedge id: when ref.State is
// true the ref names an affected-fact pattern pointing at another
// StateChangeEvent's outcome; otherwise it names a plain temporal fact.
// Both resolve by the same exact subject/object/relation match used for
// the top-level affected fact.
func (w *Writer) resolveCauseRef(ctx context.Context, ref facts.CauseRef) (string, error) {
	id, err := w.locateHyperedgeBySet(ctx, ref.Fact)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no hyperedge matches cause reference (relation=%q)", ref.Fact.RelationType)
	}
	return id, nil
}

// locateHyperedgeBySet finds the hyperedge whose relation_type matches and
// whose subject/object node-id sets are exactly equal (same size, mutual
// containment) to the given fact's — never a cardinality/path-shape
// proxy.
func (w *Writer) locateHyperedgeBySet(ctx context.Context, ref facts.AffectedFactRef) (string, error) {
	query := `
MATCH (h:Hyperedge {relation_type: $relation})
OPTIONAL MATCH (h)-[:CONNECTS {role: 'subject'}]->(s:Node)
WITH h, collect(DISTINCT s.id) AS subjIds
WHERE size(subjIds) = size($subjects) AND all(x IN subjIds WHERE x IN $subjects) AND all(x IN $subjects WHERE x IN subjIds)
WITH h
OPTIONAL MATCH (h)-[:CONNECTS {role: 'object'}]->(o:Node)
WITH h, collect(DISTINCT o.id) AS objIds
WHERE size(objIds) = size($objects) AND all(x IN objIds WHERE x IN $objects) AND all(x IN $objects WHERE x IN objIds)
RETURN h.id AS id ORDER BY h.id LIMIT 1
`
	rows, err := w.runner.RunRead(ctx, "state_change_write", query, map[string]any{
		"relation": ref.RelationType,
		"subjects": ref.Subjects,
		"objects":  ref.Objects,
	})
	if err != nil {
		return "", fmt.Errorf("locate hyperedge by set: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	id, _ := rows[0]["id"].(string)
	return id, nil
}

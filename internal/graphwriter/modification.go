package graphwriter

import (
	"context"
	"fmt"

	"github.com/hyperstructure/ingestor/internal/facts"
)

// WriteModification applies a retroactive edit to an already-asserted fact.
// The relation-type rename, the context change and the subject/object
// rewire each apply independently when their fields of mod are populated;
// of the context change paths exactly one fires (replace when both
// intervals and locations changed, otherwise an in-place update).
func (w *Writer) WriteModification(ctx context.Context, mod facts.Modification) error {
	hyperedgeID, err := w.locateHyperedgeBySet(ctx, mod.AffectedFact)
	if err != nil {
		return err
	}
	if hyperedgeID == "" {
		return fmt.Errorf("no hyperedge matches modification target (relation=%q)", mod.AffectedFact.RelationType)
	}

	if mod.NewRelationType != nil {
		if err := w.renameRelationType(ctx, hyperedgeID, *mod.NewRelationType); err != nil {
			return err
		}
	}

	switch {
	case len(mod.NewTemporalIntervals) > 0 && len(mod.NewSpatialContexts) > 0:
		if err := w.replaceContexts(ctx, hyperedgeID, mod.NewTemporalIntervals, mod.NewSpatialContexts); err != nil {
			return err
		}
	case len(mod.NewTemporalIntervals) > 0:
		if err := w.mutateContextsInPlace(ctx, hyperedgeID, mod.NewTemporalIntervals, nil); err != nil {
			return err
		}
	case len(mod.NewSpatialContexts) > 0:
		if err := w.mutateContextsInPlace(ctx, hyperedgeID, nil, mod.NewSpatialContexts); err != nil {
			return err
		}
	}

	if len(mod.NewSubjects) > 0 || len(mod.NewObjects) > 0 {
		if err := w.rewireEntities(ctx, hyperedgeID, mod.NewSubjects, mod.NewObjects); err != nil {
			return err
		}
	}

	return nil
}

func (w *Writer) renameRelationType(ctx context.Context, hyperedgeID, newRelation string) error {
	query := `MATCH (h:Hyperedge {id: $id}) SET h.relation_type = $relation`
	_, err := w.runner.Run(ctx, "modification_write", query, map[string]any{
		"id": hyperedgeID, "relation": newRelation,
	})
	if err != nil {
		return fmt.Errorf("rename relation type on %s: %w", hyperedgeID, err)
	}
	return nil
}

// replaceContexts handles a combined temporal+spatial change: detach every existing VALID_IN context,
// delete contexts left with no remaining hyperedge, and attach the fresh
// cartesian product of the new intervals × new locations.
func (w *Writer) replaceContexts(ctx context.Context, hyperedgeID string, intervals []facts.TemporalInterval, locations []facts.SpatialContext) error {
	newContexts := dedupeContexts(cartesianContexts(intervals, locations))

	query := `
MATCH (h:Hyperedge {id: $id})
OPTIONAL MATCH (h)-[rel:VALID_IN]->(c:Context)
DELETE rel
WITH h, collect(DISTINCT c) AS oldContexts
FOREACH (old IN [x IN oldContexts WHERE NOT EXISTS { (x)<-[:VALID_IN]-() }] | DELETE old)
WITH h
UNWIND $contexts AS ctx
MERGE (c2:Context {id: ctx.id})
ON CREATE SET c2.from_time = ctx.from_time, c2.to_time = ctx.to_time,
              c2.location_name = ctx.location_name, c2.spatial_type = ctx.spatial_type,
              c2.coordinates = ctx.coordinates, c2.certainty = ctx.certainty
MERGE (h)-[:VALID_IN]->(c2)
`
	_, err := w.runner.Run(ctx, "modification_write", query, map[string]any{
		"id":       hyperedgeID,
		"contexts": contextParams(newContexts),
	})
	if err != nil {
		return fmt.Errorf("replace contexts on %s: %w", hyperedgeID, err)
	}
	return nil
}

// mutateContextsInPlace handles the single-axis change path: when only
// the temporal bound or only the location changed, the existing Context
// nodes attached to the hyperedge are updated in place rather than
// replaced — from the hyperedge's perspective they are still the same
// contexts.
func (w *Writer) mutateContextsInPlace(ctx context.Context, hyperedgeID string, intervals []facts.TemporalInterval, locations []facts.SpatialContext) error {
	if len(intervals) > 0 {
		interval := intervals[0]
		query := `
MATCH (h:Hyperedge {id: $id})-[:VALID_IN]->(c:Context)
SET c.from_time = $fromTime, c.to_time = $toTime
`
		_, err := w.runner.Run(ctx, "modification_write", query, map[string]any{
			"id":       hyperedgeID,
			"fromTime": derefPtr(interval.StartTime),
			"toTime":   derefPtr(interval.EndTime),
		})
		if err != nil {
			return fmt.Errorf("mutate temporal context on %s: %w", hyperedgeID, err)
		}
	}

	if len(locations) > 0 {
		loc := locations[0]
		record := buildContextRecord(unknownInterval, loc)
		query := `
MATCH (h:Hyperedge {id: $id})-[:VALID_IN]->(c:Context)
SET c.location_name = $locationName, c.spatial_type = $spatialType, c.coordinates = $coordinates
`
		_, err := w.runner.Run(ctx, "modification_write", query, map[string]any{
			"id":           hyperedgeID,
			"locationName": record.LocationName,
			"spatialType":  record.SpatialType,
			"coordinates":  record.Coordinates,
		})
		if err != nil {
			return fmt.Errorf("mutate spatial context on %s: %w", hyperedgeID, err)
		}
	}

	return nil
}

// rewireEntities replaces a hyperedge's subject and/or object set: detach
// the old CONNECTS edges for whichever role changed, MERGE the new Node
// entities, CREATE the new CONNECTS edges, and recompute entity_count.
func (w *Writer) rewireEntities(ctx context.Context, hyperedgeID string, newSubjects, newObjects []string) error {
	query := `
MATCH (h:Hyperedge {id: $id})
WITH h
OPTIONAL MATCH (h)-[r:CONNECTS {role: 'subject'}]->(:Node)
WHERE size($newSubjects) > 0
DELETE r
WITH DISTINCT h
OPTIONAL MATCH (h)-[r2:CONNECTS {role: 'object'}]->(:Node)
WHERE size($newObjects) > 0
DELETE r2
WITH DISTINCT h
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
MATCH (h)-[:CONNECTS]->(n:Node)
WITH h, count(n) AS cnt
SET h.entity_count = cnt
`
	_, err := w.runner.Run(ctx, "modification_write", query, map[string]any{
		"id":          hyperedgeID,
		"newSubjects": newSubjects,
		"newObjects":  newObjects,
	})
	if err != nil {
		return fmt.Errorf("rewire entities on %s: %w", hyperedgeID, err)
	}
	return nil
}

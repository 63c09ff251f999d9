package qa

import (
	"context"

	"github.com/hyperstructure/ingestor/internal/geospatial"
	"github.com/hyperstructure/ingestor/internal/graph"
)

// executeTool dispatches a model-selected tool call against the graph.
// Every branch returns a JSON-serialisable map rather than erroring the loop, since a
// failed query is itself a valid (negative) answer to validate against.
func (l *Loop) executeTool(ctx context.Context, name string, args map[string]any) map[string]any {
	switch name {
	case "get_entities_by_relation":
		return l.getEntitiesByRelation(ctx, args)
	case "query_facts":
		return l.queryFacts(ctx, args)
	default:
		return map[string]any{"error": "Unknown tool: " + name}
	}
}

func (l *Loop) getEntitiesByRelation(ctx context.Context, args map[string]any) map[string]any {
	relation, _ := args["relation"].(string)
	if relation == "" {
		return map[string]any{"entities": []string{}, "message": "Empty relation provided"}
	}

	query := `
MATCH (h:Hyperedge)
WHERE toLower(h.relation_type) CONTAINS toLower($rel)
OPTIONAL MATCH (h)-[:CONNECTS]->(n:Node)
WITH DISTINCT n WHERE n IS NOT NULL
RETURN DISTINCT n.id AS entity_id
ORDER BY entity_id
`
	rows, err := l.graph.RunRead(ctx, "qa_tool", query, map[string]any{"rel": relation})
	if err != nil {
		return map[string]any{"entities": []string{}, "error": "Neo4j query failed: " + err.Error()}
	}

	entities := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["entity_id"].(string); ok && id != "" {
			entities = append(entities, id)
		}
	}
	return map[string]any{"entities": entities}
}

func (l *Loop) queryFacts(ctx context.Context, args map[string]any) map[string]any {
	subjects := stringListArg(args, "subjects")
	objects := stringListArg(args, "objects")
	entities := stringListArg(args, "entities")
	startTime, _ := args["start_time"].(string)
	endTime, _ := args["end_time"].(string)
	atTime, _ := args["at_time"].(string)
	locationNames := stringListArg(args, "location_names")
	includeSpatiallyUnconstrained, _ := args["include_spatially_unconstrained"].(bool)
	includeTemporallyUnconstrained, _ := args["include_temporally_unconstrained"].(bool)
	areaCoordinates := ringArg(args, "area_coordinates")
	limit := intArg(args, "limit", 100)

	// An instant query with no explicit range means "interval contains
	// this instant": at_time is used as both bounds.
	if atTime != "" && startTime == "" && endTime == "" {
		startTime, endTime = atTime, atTime
	}

	var records []graph.HyperedgeRecord
	var err error
	if len(areaCoordinates) >= 3 {
		records, err = l.graph.QueryBySpatialArea(ctx, areaCoordinates)
	} else {
		q := graph.SpatiotemporalQuery{
			StartTime:                      startTime,
			EndTime:                        endTime,
			LocationNames:                  locationNames,
			IncludeSpatiallyUnconstrained:  includeSpatiallyUnconstrained,
			IncludeTemporallyUnconstrained: includeTemporallyUnconstrained,
		}
		records, err = l.graph.QuerySpatiotemporal(ctx, q)
	}
	if err != nil {
		return map[string]any{"facts": []any{}, "error": "Query failed: " + err.Error()}
	}

	records = filterByEntities(records, subjects, objects, entities)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		var temporalIntervals []map[string]any
		var spatialContexts []map[string]any
		for _, c := range rec.Contexts {
			if c.FromTime != "" || c.ToTime != "" {
				temporalIntervals = append(temporalIntervals, map[string]any{"start_time": nilIfEmpty(c.FromTime), "end_time": nilIfEmpty(c.ToTime)})
			}
			if c.LocationName != "" {
				spatialContexts = append(spatialContexts, map[string]any{"name": c.LocationName})
			}
			if c.Coordinates != nil {
				spatialContexts = append(spatialContexts, map[string]any{"coordinates": c.Coordinates})
			}
		}
		out = append(out, map[string]any{
			"id":                 rec.ID,
			"relation_type":      rec.RelationType,
			"subjects":           rec.Subjects,
			"objects":            rec.Objects,
			"temporal_intervals": temporalIntervals,
			"spatial_contexts":   spatialContexts,
		})
	}
	return map[string]any{"facts": out}
}

// filterByEntities applies the entity-role filters
// client-side: any-match on subjects, objects, or either role.
func filterByEntities(records []graph.HyperedgeRecord, subjects, objects, entities []string) []graph.HyperedgeRecord {
	if len(subjects) == 0 && len(objects) == 0 && len(entities) == 0 {
		return records
	}

	out := make([]graph.HyperedgeRecord, 0, len(records))
	for _, rec := range records {
		if anyMatch(rec.Subjects, subjects) || anyMatch(rec.Objects, objects) ||
			anyMatch(rec.Subjects, entities) || anyMatch(rec.Objects, entities) {
			out = append(out, rec)
		}
	}
	return out
}

func anyMatch(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, h := range have {
		set[h] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

// ringArg decodes a tool argument shaped like [[lon, lat], [lon, lat], ...]
// (as the model emits it from JSON) into a geospatial.Ring.
func ringArg(args map[string]any, key string) geospatial.Ring {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	ring := make(geospatial.Ring, 0, len(raw))
	for _, point := range raw {
		pair, ok := point.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		lon, ok1 := pair[0].(float64)
		lat, ok2 := pair[1].(float64)
		if !ok1 || !ok2 {
			continue
		}
		ring = append(ring, geospatial.Point{lon, lat})
	}
	return ring
}

func stringListArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

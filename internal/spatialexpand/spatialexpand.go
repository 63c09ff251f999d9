// Package spatialexpand replaces a TemporalFact's raw location-name
// strings with geocoded SpatialContext records.
package spatialexpand

import (
	"context"

	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/geocode"
)

// Expander resolves a fact's SpatialNames against a Geocoder.
type Expander struct {
	geocoder *geocode.Geocoder
}

// New builds an Expander over the given geocoder.
func New(geocoder *geocode.Geocoder) *Expander {
	return &Expander{geocoder: geocoder}
}

// Expand resolves every name in fact.SpatialNames and sets
// fact.SpatialContexts, leaving SpatialNames untouched for audit/logging.
// Empty or already-sanitized-away names are dropped entirely; names that
// fail geocoding retain a {name, Point, nil} placeholder rather than being
// dropped.
func (x *Expander) Expand(ctx context.Context, fact facts.TemporalFact) facts.TemporalFact {
	out := make([]facts.SpatialContext, 0, len(fact.SpatialNames))
	for _, name := range fact.SpatialNames {
		if _, ok := geocode.Sanitize(name); !ok {
			continue
		}
		result := x.geocoder.Resolve(ctx, name)
		if result.Name == "" {
			continue
		}
		out = append(out, facts.SpatialContext{
			Name:        result.Name,
			Type:        facts.SpatialType(result.Type),
			Coordinates: result.Coordinates,
		})
	}
	fact.SpatialContexts = out
	return fact
}

// ExpandAll expands every fact in facts, in order.
func (x *Expander) ExpandAll(ctx context.Context, in []facts.TemporalFact) []facts.TemporalFact {
	out := make([]facts.TemporalFact, len(in))
	for i, f := range in {
		out[i] = x.Expand(ctx, f)
	}
	return out
}

// ExpandModification resolves the bare location names the Modification
// Extractor left in mod.NewSpatialContexts' Name fields, the same way
// Expand does for a TemporalFact: a spatial change on a modification
// still goes through the geocoder.
func (x *Expander) ExpandModification(ctx context.Context, mod facts.Modification) facts.Modification {
	if len(mod.NewSpatialContexts) == 0 {
		return mod
	}
	out := make([]facts.SpatialContext, 0, len(mod.NewSpatialContexts))
	for _, sc := range mod.NewSpatialContexts {
		if _, ok := geocode.Sanitize(sc.Name); !ok {
			continue
		}
		result := x.geocoder.Resolve(ctx, sc.Name)
		if result.Name == "" {
			continue
		}
		out = append(out, facts.SpatialContext{
			Name:        result.Name,
			Type:        facts.SpatialType(result.Type),
			Coordinates: result.Coordinates,
		})
	}
	mod.NewSpatialContexts = out
	return mod
}

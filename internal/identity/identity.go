// Package identity computes the content-addressed ids and Cypher-literal
// escaping used throughout the graph writer.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// nullToken is substituted for any nil/empty/"null" field before hashing,
// so that "unknown start" collapses to one identity across ingestions.
const nullToken = "__NULL__"

// EscapeCypherString doubles single quotes so a value is safe to embed
// inside a single-quoted Cypher string literal. Must be used everywhere a
// user-supplied string is interpolated rather than passed as a parameter.
func EscapeCypherString(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

// QuoteCypherString wraps an escaped value in single quotes.
func QuoteCypherString(value string) string {
	return "'" + EscapeCypherString(value) + "'"
}

// CypherStringList renders a Go string slice as a Cypher list literal of
// quoted, escaped strings.
func CypherStringList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = QuoteCypherString(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// nullNormalize maps an empty/missing bound to the null token.
func nullNormalize(s string) string {
	if s == "" || s == "null" {
		return nullToken
	}
	return s
}

// CoordinateSignature returns the identity component for a geometry.
// Point geometries map to "pt:<lon>:<lat>" rounded to 6 decimal places,
// or to "geo:NULL" when the coordinates are not a lon/lat pair; any other
// geometry (including null) hashes its minified JSON form to 16 hex
// characters.
func CoordinateSignature(spatialType string, coordinates any) string {
	if strings.EqualFold(spatialType, "point") {
		if pair, ok := coordinates.([2]float64); ok {
			lon := math.Round(pair[0]*1e6) / 1e6
			lat := math.Round(pair[1]*1e6) / 1e6
			return fmt.Sprintf("pt:%v:%v", lon, lat)
		}
		if pair, ok := coordinates.([]float64); ok && len(pair) == 2 {
			lon := math.Round(pair[0]*1e6) / 1e6
			lat := math.Round(pair[1]*1e6) / 1e6
			return fmt.Sprintf("pt:%v:%v", lon, lat)
		}
		return "geo:NULL"
	}

	minified, err := json.Marshal(coordinates)
	if err != nil || coordinates == nil {
		minified = []byte("null")
	}
	sum := sha1.Sum(minified)
	return "geo:" + hex.EncodeToString(sum[:])[:16]
}

// ContextID computes the content-addressed Context id from its temporal
// bounds, location name, spatial type, and coordinate signature.
func ContextID(startTime, endTime, locationName, spatialType string, coordinates any) string {
	startKey := nullNormalize(startTime)
	endKey := nullNormalize(endTime)
	escapedName := EscapeCypherString(locationName)
	escapedType := EscapeCypherString(spatialType)
	coordSig := CoordinateSignature(spatialType, coordinates)

	key := fmt.Sprintf("%s|%s|%s|%s|%s", startKey, endKey, escapedName, escapedType, coordSig)
	return "ctx_" + sha1Hex16(key)
}

// HyperedgeID computes the content-addressed Hyperedge id from its
// relation type, the sorted subject and object lists, and the sorted,
// deduplicated context-id set — order of mention never affects the id
// (duplicate subjects or objects are not removed and do change it).
func HyperedgeID(relationType string, subjects, objects, contextIDs []string) string {
	escapedRelation := EscapeCypherString(relationType)

	sortedSubjects := sortedEscaped(subjects)
	sortedObjects := sortedEscaped(objects)
	sortedContexts := sortedUnique(contextIDs)

	keyComponents := []string{
		escapedRelation,
		strings.Join(sortedSubjects, "|"),
		strings.Join(sortedObjects, "|"),
		strings.Join(sortedContexts, "|"),
	}
	key := strings.Join(keyComponents, "||")
	return "he_" + sha1Hex16(key)
}

func sortedEscaped(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = EscapeCypherString(v)
	}
	sort.Strings(out)
	return out
}

func sortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func sha1Hex16(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// SetsEqual reports whether two string slices contain the same elements,
// ignoring order and duplicates — the "size equality + mutual
// containment" test used throughout the append-vs-create decision.
func SetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		// still may be equal as sets if there are duplicates; normalize first
	}
	return setOf(a).equals(setOf(b))
}

type stringSet map[string]struct{}

func setOf(values []string) stringSet {
	s := make(stringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s stringSet) equals(other stringSet) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if _, ok := other[k]; !ok {
			return false
		}
	}
	return true
}

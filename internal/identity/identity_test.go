package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeCypherStringDoublesQuotes(t *testing.T) {
	assert.Equal(t, "O''Brien", EscapeCypherString("O'Brien"))
	assert.Equal(t, "", EscapeCypherString(""))
}

func TestContextIDStableAcrossCallsWithSameInputs(t *testing.T) {
	a := ContextID("2020-01-01T00:00:00", "2021-01-01T00:00:00", "Paris", "Point", [2]float64{2.3522, 48.8566})
	b := ContextID("2020-01-01T00:00:00", "2021-01-01T00:00:00", "Paris", "Point", [2]float64{2.3522, 48.8566})
	assert.Equal(t, a, b)
	assert.True(t, len(a) == len("ctx_")+16)
}

func TestContextIDCollapsesNullBounds(t *testing.T) {
	a := ContextID("", "", "unknown", "unknown", nil)
	b := ContextID("null", "null", "unknown", "unknown", nil)
	assert.Equal(t, a, b, "both empty and literal 'null' should normalize to the same identity")
}

func TestContextIDDiffersOnCoordinateRounding(t *testing.T) {
	a := ContextID("", "", "X", "Point", [2]float64{1.1234565, 2.1})
	b := ContextID("", "", "X", "Point", [2]float64{1.1234564, 2.1})
	// 1.1234565 rounds to 1.123457 and 1.1234564 to 1.123456 at 6dp.
	c := ContextID("", "", "X", "Point", [2]float64{1.2, 2.1})
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, b)
}

func TestHyperedgeIDIgnoresSubjectObjectOrder(t *testing.T) {
	ctxIDs := []string{"ctx_aaa", "ctx_bbb"}
	a := HyperedgeID("likes", []string{"John", "Mary"}, []string{"cats", "dogs"}, ctxIDs)
	b := HyperedgeID("likes", []string{"Mary", "John"}, []string{"dogs", "cats"}, ctxIDs)
	assert.Equal(t, a, b, "reordering subjects or objects must not change the hyperedge id")
}

func TestHyperedgeIDIgnoresContextIDOrderAndDuplicates(t *testing.T) {
	a := HyperedgeID("likes", []string{"John"}, nil, []string{"ctx_a", "ctx_b"})
	b := HyperedgeID("likes", []string{"John"}, nil, []string{"ctx_b", "ctx_a", "ctx_b"})
	assert.Equal(t, a, b)
}

func TestHyperedgeIDDiffersOnRelation(t *testing.T) {
	a := HyperedgeID("likes", []string{"John"}, []string{"cats"}, nil)
	b := HyperedgeID("dislikes", []string{"John"}, []string{"cats"}, nil)
	assert.NotEqual(t, a, b)
}

func TestSetsEqual(t *testing.T) {
	assert.True(t, SetsEqual([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, SetsEqual([]string{"a", "b"}, []string{"a", "c"}))
	assert.False(t, SetsEqual([]string{"a"}, []string{"a", "b"}))
	assert.True(t, SetsEqual(nil, nil))
}

func TestCypherStringList(t *testing.T) {
	assert.Equal(t, "['a', 'b''s']", CypherStringList([]string{"a", "b's"}))
}

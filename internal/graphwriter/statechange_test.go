package graphwriter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperstructure/ingestor/internal/facts"
)

func TestWriteStateChangeEvent_WiresCausesAndRequires(t *testing.T) {
	runner := &fakeRunner{
		handlers: []fakeHandler{
			{
				match: func(query string, params map[string]any) bool { return true },
				rows:  []map[string]any{{"id": "he_affected"}},
			},
		},
	}
	w := New(runner)

	event := facts.StateChangeEvent{
		AffectedFact: facts.AffectedFactRef{Subjects: []string{"Alice"}, RelationType: "is_ceo_of"},
		Causes: []facts.CauseRef{
			{Fact: facts.AffectedFactRef{Subjects: []string{"Bob"}, RelationType: "resigned"}},
		},
		RequiresState: []facts.CauseRef{
			{Fact: facts.AffectedFactRef{Subjects: []string{"Acme"}, RelationType: "is_public"}, State: true},
		},
	}

	id, err := w.WriteStateChangeEvent(context.Background(), event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var sawWrite bool
	for _, c := range runner.calls {
		if c.operation == "state_change_write" && containsAll(c.query,
			"MERGE (evt:StateChangeEvent",
			"r.required_state = cb.required_state",
			"r2.triggers_state = cs.required_state",
			"rel.required_state = rq.required_state",
		) {
			sawWrite = true
		}
	}
	assert.True(t, sawWrite)
}

func TestWriteStateChangeEvent_ErrorsWhenAffectedFactNotFound(t *testing.T) {
	runner := &fakeRunner{} // no handlers -> every probe returns no rows
	w := New(runner)

	event := facts.StateChangeEvent{
		AffectedFact: facts.AffectedFactRef{Subjects: []string{"Nobody"}, RelationType: "does_not_exist"},
	}
	_, err := w.WriteStateChangeEvent(context.Background(), event)
	assert.Error(t, err)
}

func TestWriteModification_RenamesRelationType(t *testing.T) {
	runner := &fakeRunner{
		handlers: []fakeHandler{
			{
				match: func(query string, params map[string]any) bool { return true },
				rows:  []map[string]any{{"id": "he_target"}},
			},
		},
	}
	w := New(runner)

	newRelation := "renamed_to"
	err := w.WriteModification(context.Background(), facts.Modification{
		AffectedFact:    facts.AffectedFactRef{Subjects: []string{"Alice"}, RelationType: "old_name"},
		NewRelationType: &newRelation,
	})
	require.NoError(t, err)

	var sawRename bool
	for _, c := range runner.calls {
		if c.operation == "modification_write" && containsAll(c.query, "SET h.relation_type") {
			sawRename = true
		}
	}
	assert.True(t, sawRename)
}

func TestWriteModification_ErrorsWhenTargetNotFound(t *testing.T) {
	runner := &fakeRunner{}
	w := New(runner)

	err := w.WriteModification(context.Background(), facts.Modification{
		AffectedFact: facts.AffectedFactRef{Subjects: []string{"Ghost"}, RelationType: "nope"},
	})
	assert.Error(t, err)
}

// Package prompts holds the fixed system prompts and JSON-schema bodies
// for every LLM-constrained stage of the ingestion pipeline: canonical
// normalisation, structured extraction, modification detection/extraction,
// and post-hoc causal inference.
package prompts

import (
	"fmt"

	"github.com/hyperstructure/ingestor/internal/llmclient"
)

// CanonicaliserSystem is the system prompt for per-sentence canonical
// normalisation. The model receives this once, then the
// target sentence, the surrounding text, and the current UTC wall clock
// as separate user messages.
const CanonicaliserSystem = `You rewrite one sentence from a larger passage into one or more canonical
sentences using a strict colon-delimited form:

[Subjects] : [relation] : [Objects] (from <t1_start> to <t1_end>)* ( at <loc>)* (and from ... to ... at ...)*.

FORMATTING RULES:
- The relation is a present-tense singular verb phrase ("is", "wins",
  "likes"). Preserve modal auxiliaries ("can win", "must attend").
- Entities that belong to the SAME logical subject or object are joined
  with "&". Distinct top-level subjects or objects are joined with "and".
  Never use "&" at the top level and never use "and" inside one entity.
- If the same surface form names two distinct referents elsewhere in the
  passage, disambiguate with a category suffix: "Washington (state)" vs
  "Washington (person)".
- Missing temporal or spatial bounds are written as the literal word
  "unknown", never omitted and never invented.

RESOLUTION RULES:
- Resolve every pronoun and possessive against the surrounding passage.
  Rewrite possessives to the explicit owner form ("his book" -> "John : owns : the book").
- Canonicalise synonymous references to one entity: pick the single most
  descriptive variant seen anywhere in the passage as the surface form
  used everywhere. Do not emit a fact that only restates one name as a
  synonym of itself. If the discarded phrase carried a type ("the
  engineer, Maria, ..."), emit a separate "Maria : is : engineer" fact
  for it instead of folding the type into the main fact.
- Only the following inferences are allowed, and only these: a birth
  implies "is : alive" from the birth date; a death implies "is : dead"
  from the death date (and closes any open "is alive" interval);
  acquiring something implies ownership; losing or selling something
  implies the end of ownership; symmetric relations (sibling, spouse,
  neighbor, colleague) imply the mirrored fact with subject and object
  swapped. Never infer anything else.

TEMPORAL AND SPATIAL GROUPING:
- Adjacent "from X to Y" phrases not separated by "and" combine with all
  adjacent "at Z" phrases as a cartesian product: every interval applies
  at every location.
- Blocks of (interval, location) separated by the word "and" are paired
  one-to-one in order and must never combine across the "and" boundary.
- All ISO-8601 timestamps are naive UTC (no offset, no "Z"). Convert
  local references ("3pm Tuesday in Paris") to UTC per the passage's
  implied date, honoring DST for that date.
- Resolve relative time words ("now", "today", "last year") against the
  supplied current UTC wall clock.

DEDUPLICATION:
- If two clauses in the source sentence would canonicalise to the exact
  same (subjects, relation, objects, times, locations), emit that fact
  once.
- If two clauses differ only in their temporal interval or location,
  combine them into one canonical sentence carrying multiple "from/to"
  and "at" groups rather than emitting two sentences.

Output ONLY the canonical sentence(s), one per line, nothing else.`

// CanonicaliserUser builds the per-call user turn: the sentence under
// normalisation, the surrounding passage for pronoun/disambiguation
// resolution, and the wall clock for relative-time resolution.
func CanonicaliserUser(sentence, surroundingText, nowUTC string) string {
	return fmt.Sprintf(
		"Current UTC time: %s\n\nFull passage (for pronoun and entity resolution):\n%s\n\nSentence to canonicalise:\n%s",
		nowUTC, surroundingText, sentence,
	)
}

// StructuredExtractorSystem is the system prompt for the JSON-schema
// constrained structured-extraction call.
const StructuredExtractorSystem = `You parse already-canonicalised sentences of the form

Subjects : relation : Objects (from T1_start to T1_end)* (at L1)* ...

into temporal_fact records. Apply these parsing rules exactly:

- Subjects is everything before the first colon. relation_type is
  everything between the first and second colon. Objects is everything
  after the second colon up to the first " from ", the first " at ", or
  end of sentence.
- Split a subjects or objects segment into a list on the whitespace-
  bounded word "and". NEVER split on "&" — "&" joins parts of one entity.
- A "from ... to ..." phrase or an "at ..." phrase is never part of the
  objects list, even if it appears before the first such keyword due to
  unusual phrasing.
- Consecutive "from...to..." phrases with no intervening "and" produce
  multiple temporal_intervals entries; each combines with every "at"
  location that follows in the same (non-"and"-separated) group.
- Groups separated by the word "and" pair one interval with one location
  in order and must not be cross-combined with another group's entries.
- A bound written as the literal word "unknown" becomes a JSON null, not
  the string "unknown".
- Any field with no information is null (scalars) or [] (lists). Never
  emit a placeholder string like "?" or "N/A".

Return a JSON object matching the declared schema exactly.`

// TemporalFactSchema is the JSON schema a structured-extraction response
// must satisfy.
var TemporalFactSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"facts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"fact_type":     map[string]any{"type": "string", "const": "temporal_fact"},
					"subjects":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
					"objects":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"relation_type": map[string]any{"type": "string"},
					"temporal_intervals": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"start_time": map[string]any{"type": []string{"string", "null"}},
								"end_time":   map[string]any{"type": []string{"string", "null"}},
							},
						},
					},
					"spatial_contexts": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": []string{"string", "null"}},
					},
				},
				"required": []string{"fact_type", "subjects", "relation_type"},
			},
		},
	},
	"required": []string{"facts"},
}

// ClassifierRefinementSystem is the system prompt for the optional LLM
// refinement pass over the keyword-tagged sentence split.
const ClassifierRefinementSystem = `You are given a numbered list of sentences, each already tentatively
tagged "modification" or "regular" by a keyword pass over words like
"actually", "in fact", "oops", "my mistake", "update", "correction",
"modification". Confirm or correct each tag based on whether the
sentence is genuinely correcting or retracting a previously stated fact,
as opposed to merely containing one of those words incidentally (e.g.
"In fact, the whole team attended" used for emphasis, not correction).

Return a JSON object: {"labels": ["modification"|"regular", ...]} with
one label per input sentence, in the same order.`

// ClassifierLabelsSchema constrains the classifier refinement response.
var ClassifierLabelsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"labels": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "enum": []string{"modification", "regular"}},
		},
	},
	"required": []string{"labels"},
}

// ModificationExtractorSystem is the system prompt for extracting the
// structured fields of a retroactive correction.
const ModificationExtractorSystem = `You parse a sentence that corrects a previously stated fact (e.g. "Actually,
John likes magazines, not books.") into a modification record that
identifies the original fact and the field(s) being changed.

- affected_fact identifies the fact being corrected by its ORIGINAL
  subjects, objects, and relation_type, exactly as they appeared before
  the correction.
- Populate ONLY the fields that changed. Leave every other field absent
  (null or omitted), never guess unchanged values.
- new_subjects / new_objects replace the full subject or object list when
  the correction adds or removes a participant.
- new_relation_type replaces the relation verb when the correction
  changes what kind of fact this is.
- new_temporal_intervals / new_spatial_contexts replace the full
  interval/location list when the correction changes when or where the
  fact holds.

Return a JSON object matching the declared schema exactly.`

// ModificationSchema is the JSON schema a modification-extraction
// response must satisfy.
var ModificationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"modifications": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"affected_fact": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"subjects":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"objects":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"relation_type": map[string]any{"type": "string"},
						},
						"required": []string{"subjects", "relation_type"},
					},
					"new_relation_type":     map[string]any{"type": []string{"string", "null"}},
					"new_subjects":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"new_objects":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"new_temporal_intervals": map[string]any{"type": "array"},
					"new_spatial_contexts":   map[string]any{"type": "array"},
				},
				"required": []string{"affected_fact"},
			},
		},
	},
	"required": []string{"modifications"},
}

// CausalInfererSystem is the system prompt for the post-hoc causal-
// inference pass. It is invoked once per input text,
// after every temporal fact for that text has committed.
const CausalInfererSystem = `You are given the original passage and a list of skeleton
state_change_event records, one per committed temporal fact, each
carrying only its affected_fact (subjects, objects, relation_type) and
empty caused_by / causes / requires_state lists.

For each event, decide whether the passage establishes that this fact's
truth was CAUSED BY one or more of the other facts, or that it CAUSES
one or more of the other facts to become true or false.

- caused_by is a list of OR-groups: each group is a list of
  {affected_fact, state} entries that must ALL hold (AND) for that group
  to satisfy the causation; any one satisfied group is sufficient (OR
  across groups).
- causes is a flat list of {affected_fact, state} entries this fact's
  occurrence triggers.
- requires_state is a flat list of {affected_fact, state} entries that
  must independently hold as a conjunctive precondition, separate from
  causation.
- state is true when the referenced fact becomes/must-be true, false
  when it becomes/must-be false.
- Reference facts ONLY by their exact (subjects, objects, relation_type)
  as given in the skeleton list. Never invent a fact that is not in the
  skeleton list.
- If a fact has no causal relationships in the passage, leave its lists
  empty. Do not speculate.

Return a JSON object matching the declared schema exactly, preserving
every event's affected_fact unchanged.`

// StateChangeEventSchema is the JSON schema a causal-inference response
// must satisfy.
var StateChangeEventSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"events": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"affected_fact": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"subjects":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"objects":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"relation_type": map[string]any{"type": "string"},
						},
						"required": []string{"subjects", "relation_type"},
					},
					"caused_by": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":  "array",
							"items": causeRefSchema,
						},
					},
					"causes":         map[string]any{"type": "array", "items": causeRefSchema},
					"requires_state": map[string]any{"type": "array", "items": causeRefSchema},
				},
				"required": []string{"affected_fact"},
			},
		},
	},
	"required": []string{"events"},
}

var causeRefSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"affected_fact": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subjects":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"objects":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"relation_type": map[string]any{"type": "string"},
			},
			"required": []string{"subjects", "relation_type"},
		},
		"state": map[string]any{"type": "boolean"},
	},
	"required": []string{"affected_fact", "state"},
}

// QASystem is the system prompt for the function-calling question-
// answering loop.
const QASystem = `You are a function-calling assistant that can call tools to answer
questions about a graph. Choose a single tool and provide arguments as
needed.`

// QAValidatorSystem is the system prompt for the strict
// {"valid": bool, "descriptor": str} validation call made after each tool
// result.
const QAValidatorSystem = `You validate whether the latest tool result answers the original user
question. Respond strictly as JSON with keys: valid (boolean) and
descriptor (string).`

// QAValidationSchema constrains the validator call's JSON-object
// response.
var QAValidationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"valid":      map[string]any{"type": "boolean"},
		"descriptor": map[string]any{"type": "string"},
	},
	"required": []string{"valid", "descriptor"},
}

// QATools is the fixed tool-definition set the QA loop offers the model:
// a relation lookup and a general hyperedge query over
// entities/time/space.
var QATools = []llmclient.Tool{
	{
		Name:        "get_entities_by_relation",
		Description: "Return distinct entity IDs that participate in hyperedges whose relation_type matches the provided relation phrase (case-insensitive, substring allowed).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"relation": map[string]any{
					"type":        "string",
					"description": "The relation keyword or phrase to search for, e.g. 'study' or 'studies'.",
				},
			},
			"required":             []string{"relation"},
			"additionalProperties": false,
		},
	},
	{
		Name:        "query_facts",
		Description: "Query hyperedges (facts) with optional filters for entities (subjects/objects/any), temporal validity, and spatial context by name or polygon area.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subjects":                         map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Subject entity IDs to include (any match)."},
				"objects":                          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Object entity IDs to include (any match)."},
				"entities":                         map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Entity IDs appearing in either role (any match)."},
				"start_time":                       map[string]any{"type": []string{"string", "null"}, "description": "Start of validity interval (ISO-8601)."},
				"end_time":                         map[string]any{"type": []string{"string", "null"}, "description": "End of validity interval (ISO-8601)."},
				"at_time":                          map[string]any{"type": []string{"string", "null"}, "description": "Instant that must lie within the fact's interval (ISO-8601)."},
				"location_names":                   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Location names for contexts (any match)."},
				"area_coordinates":                 map[string]any{"type": "array", "items": map[string]any{"type": "array", "items": map[string]any{"type": "number"}, "minItems": 2, "maxItems": 2}, "description": "Polygon as list of [lon, lat] pairs (>=3)."},
				"include_spatially_unconstrained":  map[string]any{"type": "boolean", "description": "When spatial filters are provided, include facts without spatial context."},
				"include_temporally_unconstrained": map[string]any{"type": "boolean", "description": "When temporal filters are provided, include facts without temporal context. Treated as a single option regardless of which filter triggered it."},
				"limit":                            map[string]any{"type": "integer", "description": "Max number of facts to return (default 100)."},
			},
			"additionalProperties": false,
		},
	},
}

// Package ingestion coordinates the per-sentence pipeline — Classifier,
// Canonicaliser, Structured Extractor, Spatial Expander, Graph Writer,
// Modification Extractor, Causal Inferer — and emits an ordered progress
// event stream an SSE endpoint can consume.
package ingestion

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/hyperstructure/ingestor/internal/canon"
	"github.com/hyperstructure/ingestor/internal/causal"
	"github.com/hyperstructure/ingestor/internal/classify"
	"github.com/hyperstructure/ingestor/internal/extract"
	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/graphwriter"
	"github.com/hyperstructure/ingestor/internal/spatialexpand"
)

// eventBufferSize bounds the progress channel so a slow SSE consumer
// applies back-pressure to the producer instead of the orchestrator
// buffering an unbounded backlog in memory.
const eventBufferSize = 64

// Orchestrator wires one instance of every pipeline stage together.
type Orchestrator struct {
	classifier    *classify.Classifier
	canonicaliser *canon.Canonicaliser
	extractor     *extract.Extractor
	modExtractor  *extract.ModificationExtractor
	expander      *spatialexpand.Expander
	writer        *graphwriter.Writer
	causalInfer   *causal.Inferer

	logger        *logrus.Logger
	maxConcurrent int
}

// New builds an Orchestrator. maxConcurrent bounds how many sentences run
// their canonicalise→extract→expand→write chain at once; the LLM client's
// rate limiter is the real throttle, this is a cap on top of it.
func New(
	classifier *classify.Classifier,
	canonicaliser *canon.Canonicaliser,
	extractor *extract.Extractor,
	modExtractor *extract.ModificationExtractor,
	expander *spatialexpand.Expander,
	writer *graphwriter.Writer,
	causalInfer *causal.Inferer,
	logger *logrus.Logger,
	maxConcurrent int,
) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &Orchestrator{
		classifier:    classifier,
		canonicaliser: canonicaliser,
		extractor:     extractor,
		modExtractor:  modExtractor,
		expander:      expander,
		writer:        writer,
		causalInfer:   causalInfer,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// ProcessText runs the full pipeline over text and returns a channel of
// progress events. The channel is closed after the terminal `complete`
// event. Cancelling ctx (e.g. on SSE client disconnect) stops in-flight
// work; partial graph writes already committed are not rolled back —
// the graph is an append log for this system.
func (o *Orchestrator) ProcessText(ctx context.Context, text string) <-chan Event {
	events := make(chan Event, eventBufferSize)

	go func() {
		defer close(events)
		o.run(ctx, text, events)
	}()

	return events
}

func (o *Orchestrator) run(ctx context.Context, text string, events chan<- Event) {
	sentences, err := o.classifier.Classify(ctx, text)
	if err != nil {
		o.logger.WithFields(logrus.Fields{"stage": "classify"}).WithError(err).Error("classification failed")
		emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageComplete, Err: err})
		return
	}

	regular := make([]classify.Sentence, 0, len(sentences))
	for _, s := range sentences {
		if s.Label == classify.LabelRegular {
			regular = append(regular, s)
		}
	}

	var (
		mu        sync.Mutex
		committed []facts.TemporalFact
		failures  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for _, sentence := range regular {
		sentence := sentence
		g.Go(func() error {
			written, ok := o.processSentence(gctx, sentence, text, events)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				failures++
				return nil // one sentence's failure never cancels its siblings
			}
			committed = append(committed, written...)
			return nil
		})
	}
	// errgroup's error is never set: every goroutine returns nil
	// (processSentence reports failure via its bool), so Wait only blocks
	// until all sentences finish and always returns nil.
	_ = g.Wait()

	o.applyModifications(ctx, sentences, events)

	allSucceeded := failures == 0 && len(regular) > 0
	if allSucceeded {
		o.runCausalInference(ctx, text, committed, events)
	} else {
		emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageCausalSkipped,
			Message: "skipped: not every temporal fact committed successfully"})
	}

	emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageComplete})
}

// processSentence runs one regular sentence through
// canonicalise→extract→spatially-expand→write, strictly in that order,
// emitting one progress event per state-machine transition.
// It returns the fact list it wrote and whether every step and every
// write succeeded.
func (o *Orchestrator) processSentence(ctx context.Context, sentence classify.Sentence, surroundingText string, events chan<- Event) ([]facts.TemporalFact, bool) {
	log := o.logger.WithFields(logrus.Fields{"sentence_index": sentence.Index, "stage": "canonicalise"})

	emit(ctx, events, Event{SentenceIndex: sentence.Index, Sentence: sentence.Text, Stage: StageQueued})
	emit(ctx, events, Event{SentenceIndex: sentence.Index, Sentence: sentence.Text, Stage: StageTemporalStart})

	canonical, err := o.canonicaliser.Canonicalise(ctx, sentence.Text, surroundingText)
	if err != nil {
		log.WithError(err).Warn("canonicalisation failed")
		emit(ctx, events, Event{SentenceIndex: sentence.Index, Stage: StageGraphFailed, Err: err, Message: "canonicalise"})
		return nil, false
	}
	emit(ctx, events, Event{SentenceIndex: sentence.Index, Stage: StageTemporalDone})

	var extracted []facts.TemporalFact
	for _, c := range canonical {
		fs, err := o.extractor.Extract(ctx, c)
		if err != nil {
			log.WithFields(logrus.Fields{"stage": "extract"}).WithError(err).Warn("structured extraction failed")
			emit(ctx, events, Event{SentenceIndex: sentence.Index, Stage: StageGraphFailed, Err: err, Message: "extract"})
			return nil, false
		}
		extracted = append(extracted, fs...)
	}
	emit(ctx, events, Event{SentenceIndex: sentence.Index, Stage: StageStructureDone})

	expanded := o.expander.ExpandAll(ctx, extracted)
	emit(ctx, events, Event{SentenceIndex: sentence.Index, Stage: StageSpatialDone})

	var written []facts.TemporalFact
	for _, fact := range expanded {
		result, err := o.writer.WriteTemporalFact(ctx, fact)
		if err != nil {
			log.WithFields(logrus.Fields{"stage": "graph_write"}).WithError(err).Warn("graph write failed")
			emit(ctx, events, Event{SentenceIndex: sentence.Index, Stage: StageGraphFailed, Err: err, Message: "graph_write"})
			return written, false
		}
		emit(ctx, events, Event{
			SentenceIndex: sentence.Index,
			Stage:         StageGraphDone,
			HyperedgeID:   result.HyperedgeID,
			Criterion:     result.Criterion,
		})
		written = append(written, fact)
	}

	return written, true
}

// applyModifications runs the Modification Extractor once over every
// sentence the Classifier tagged as a correction, then applies each
// parsed Modification directly through the Graph Writer, after temporal
// writes for the same input.
func (o *Orchestrator) applyModifications(ctx context.Context, sentences []classify.Sentence, events chan<- Event) {
	modificationText := classify.JoinByLabel(sentences, classify.LabelModification)
	if modificationText == "" {
		return
	}

	mods, err := o.modExtractor.Extract(ctx, modificationText)
	if err != nil {
		o.logger.WithFields(logrus.Fields{"stage": "modification_extract"}).WithError(err).Warn("modification extraction failed")
		emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageModificationFailed, Err: err})
		return
	}

	for _, mod := range mods {
		mod = o.expander.ExpandModification(ctx, mod)
		if err := o.writer.WriteModification(ctx, mod); err != nil {
			o.logger.WithFields(logrus.Fields{"stage": "modification_write"}).WithError(err).Warn("modification write failed")
			emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageModificationFailed, Err: err})
			continue
		}
		emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageModificationApplied})
	}
}

// runCausalInference is only called after every temporal fact for this
// input committed successfully: a missing target fact would make the
// exact-match cause resolution silently misfire.
func (o *Orchestrator) runCausalInference(ctx context.Context, text string, committed []facts.TemporalFact, events chan<- Event) {
	stateEvents, err := o.causalInfer.Infer(ctx, text, committed)
	if err != nil {
		o.logger.WithFields(logrus.Fields{"stage": "causal_infer"}).WithError(err).Warn("causal inference failed")
		emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageCausalSkipped, Err: err})
		return
	}

	for _, se := range stateEvents {
		if _, err := o.writer.WriteStateChangeEvent(ctx, se); err != nil {
			o.logger.WithFields(logrus.Fields{"stage": "causal_write"}).WithError(err).Warn("state change event write failed")
			continue
		}
	}

	emit(ctx, events, Event{SentenceIndex: NonSentenceStage, Stage: StageCausalDone})
}

// emit sends ev on events unless ctx is already done, so a cancelled
// pipeline doesn't leak a goroutine blocked on a full, abandoned channel.
func emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

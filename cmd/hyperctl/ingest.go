package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hyperstructure/ingestor/internal/ingestion"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest [text]",
	Short: "Run the pipeline over a block of text (stdin, --file, or an argument)",
	Long: `ingest feeds natural-language text through the classifier, canonicaliser,
structured extractor, spatial expander, graph writer, and causal inferer,
writing every asserted fact into the Neo4j hyperstructure.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "read text from a file instead of stdin/argument")
}

func runIngest(cmd *cobra.Command, args []string) error {
	text, err := readIngestInput(args)
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("no input text provided")
	}

	ctx := cmd.Context()
	svc, err := buildServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.graphClient.Close(ctx)

	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	count := 0
	for ev := range svc.orchestrator.ProcessText(ctx, text) {
		if ev.Stage == ingestion.StageGraphDone {
			count++
		}
		reportEvent(ev, interactive)
	}

	fmt.Fprintf(os.Stdout, "facts_processed=%d\n", count)
	return nil
}

func readIngestInput(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if ingestFile != "" {
		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", ingestFile, err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// reportEvent prints one progress event: a human-readable line on a TTY,
// a JSON line otherwise (so `hyperctl ingest | jq` works in scripts).
func reportEvent(ev ingestion.Event, interactive bool) {
	if !interactive {
		line := map[string]any{
			"sentence_index": ev.SentenceIndex,
			"sentence":       ev.Sentence,
			"stage":          ev.Stage,
			"hyperedge_id":   ev.HyperedgeID,
			"criterion":      ev.Criterion,
			"message":        ev.Message,
		}
		if ev.Err != nil {
			line["error"] = ev.Err.Error()
		}
		payload, err := json.Marshal(line)
		if err == nil {
			fmt.Fprintln(os.Stdout, string(payload))
		}
		return
	}

	switch ev.Stage {
	case ingestion.StageGraphDone:
		fmt.Fprintf(os.Stdout, "[%d] %s -> %s (criterion %d)\n", ev.SentenceIndex, truncate(ev.Sentence, 60), ev.HyperedgeID, ev.Criterion)
	case ingestion.StageGraphFailed:
		fmt.Fprintf(os.Stderr, "[%d] FAILED: %v\n", ev.SentenceIndex, ev.Err)
	case ingestion.StageComplete:
		fmt.Fprintln(os.Stdout, "done")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

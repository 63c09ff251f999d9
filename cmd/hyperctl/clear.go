package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperstructure/ingestor/internal/graph"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every node and edge in the graph",
	Long:  `clear runs MATCH (n) DETACH DELETE n against the configured database. Irreversible.`,
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "skip the confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes && !confirmClear() {
		fmt.Fprintln(os.Stdout, "aborted")
		return nil
	}

	ctx := cmd.Context()
	graphClient, err := graph.NewClient(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return fmt.Errorf("connect to neo4j: %w", err)
	}
	defer graphClient.Close(ctx)

	if err := graphClient.Clear(ctx); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	fmt.Fprintln(os.Stdout, "graph cleared")
	return nil
}

func confirmClear() bool {
	fmt.Fprintf(os.Stdout, "This deletes every node and edge in database %q. Continue? [y/N] ", cfg.Neo4j.Database)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(line)) == "y"
}

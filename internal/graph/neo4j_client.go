// Package graph wraps the Neo4j driver with the connection, schema, and
// query-execution conventions the rest of the ingestion pipeline builds
// on: a process-wide pooled driver, parameterized Cypher helpers, and
// per-operation timeout/metadata.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client wraps the Neo4j driver with error handling and query helpers.
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// NewClient creates a Neo4j client and verifies connectivity up front so
// a misconfigured URI or bad credentials fail fast at startup rather than
// on the first write.
func NewClient(ctx context.Context, uri, user, password, database string) (*Client, error) {
	if uri == "" || user == "" || password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%q user=%q", uri, user)
	}
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri,
		neo4j.BasicAuth(user, password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = 50
			config.ConnectionAcquisitionTimeout = 60 * time.Second
			config.MaxConnectionLifetime = 3600 * time.Second
			config.ConnectionLivenessCheckTimeout = 5 * time.Second
			config.SocketConnectTimeout = 5 * time.Second
			config.SocketKeepalive = true
		})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	logger := slog.Default().With("component", "neo4j")
	logger.Info("neo4j client connected", "uri", uri, "user", user, "database", database)

	return &Client{driver: driver, logger: logger, database: database}, nil
}

// Close closes the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return fmt.Errorf("failed to close neo4j driver: %w", err)
	}
	c.logger.Info("neo4j client closed")
	return nil
}

// HealthCheck verifies Neo4j connectivity for a liveness probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	cfg := GetConfigForOperation("health_check")
	queryCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := c.driver.VerifyConnectivity(queryCtx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

// Run executes a single Cypher statement with parameters under the named
// operation's timeout, returning all result records as maps. Writes and
// reads alike go through ExecuteQuery's modern API (driver-level routing).
func (c *Client) Run(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error) {
	cfg := GetConfigForOperation(operation)
	queryCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	result, err := neo4j.ExecuteQuery(queryCtx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database))
	if err != nil {
		return nil, fmt.Errorf("query execution failed (%s): %w", operation, err)
	}

	records := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		records = append(records, record.AsMap())
	}
	return records, nil
}

// RunRead executes a read-only statement with reader routing, for the
// spatiotemporal query endpoints which never mutate the graph.
func (c *Client) RunRead(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error) {
	cfg := GetConfigForOperation(operation)
	queryCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	result, err := neo4j.ExecuteQuery(queryCtx, c.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("read query execution failed (%s): %w", operation, err)
	}

	records := make([]map[string]any, 0, len(result.Records))
	for _, record := range result.Records {
		records = append(records, record.AsMap())
	}
	return records, nil
}

// InitSchema creates the uniqueness constraints and secondary indexes:
// uniqueness on Node.id, Hyperedge.id, Context.id,
// and indexes on Node.type, Hyperedge.relation_type, Context.location_name
// and Context.certainty, Context.coordinates.
func (c *Client) InitSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE",
		"CREATE CONSTRAINT hyperedge_id_unique IF NOT EXISTS FOR (h:Hyperedge) REQUIRE h.id IS UNIQUE",
		"CREATE CONSTRAINT context_id_unique IF NOT EXISTS FOR (c:Context) REQUIRE c.id IS UNIQUE",
		"CREATE INDEX node_type_idx IF NOT EXISTS FOR (n:Node) ON (n.type)",
		"CREATE INDEX hyperedge_relation_idx IF NOT EXISTS FOR (h:Hyperedge) ON (h.relation_type)",
		"CREATE INDEX context_location_idx IF NOT EXISTS FOR (c:Context) ON (c.location_name)",
		"CREATE INDEX context_certainty_idx IF NOT EXISTS FOR (c:Context) ON (c.certainty)",
		"CREATE INDEX context_coordinates_idx IF NOT EXISTS FOR (c:Context) ON (c.coordinates)",
	}

	for _, stmt := range statements {
		if _, err := c.Run(ctx, "schema_init", stmt, nil); err != nil {
			return fmt.Errorf("schema init statement failed: %w", err)
		}
	}

	c.logger.Info("schema initialized")
	return nil
}

// Clear deletes every node and edge, backing POST /api/hyperstructure/clear.
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.Run(ctx, "clear", "MATCH (n) DETACH DELETE n", nil)
	if err != nil {
		return fmt.Errorf("failed to clear graph: %w", err)
	}
	return nil
}

// Driver returns the underlying driver for advanced use such as manual
// session management.
func (c *Client) Driver() neo4j.DriverWithContext {
	return c.driver
}

// Database returns the configured database name.
func (c *Client) Database() string {
	return c.database
}

package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TransactionConfig defines timeout and metadata for a transaction.
// Metadata is logged by Neo4j and visible in query.log, useful for
// categorizing operations by pipeline stage when debugging slow queries.
// Client.Run and Client.RunRead apply only Timeout, as a context deadline;
// Metadata reaches Neo4j only through AsNeo4jConfig, which nothing in this
// module calls.
type TransactionConfig struct {
	Timeout  time.Duration
	Metadata map[string]any
}

// DefaultTransactionConfigs returns the per-operation timeout/metadata:
// most operations get 60s, schema_init and clear get 5 minutes, and
// health_check gets 5s.
func DefaultTransactionConfigs() map[string]TransactionConfig {
	return map[string]TransactionConfig{
		"fact_write": {
			Timeout: 60 * time.Second,
			Metadata: map[string]any{"operation": "fact_write", "type": "write"},
		},
		"append_probe": {
			Timeout: 60 * time.Second,
			Metadata: map[string]any{"operation": "append_probe", "type": "read"},
		},
		"state_change_write": {
			Timeout: 60 * time.Second,
			Metadata: map[string]any{"operation": "state_change_write", "type": "write"},
		},
		"modification_write": {
			Timeout: 60 * time.Second,
			Metadata: map[string]any{"operation": "modification_write", "type": "write"},
		},
		"spatiotemporal_query": {
			Timeout: 60 * time.Second,
			Metadata: map[string]any{"operation": "spatiotemporal_query", "type": "read"},
		},
		"schema_init": {
			Timeout: 5 * time.Minute,
			Metadata: map[string]any{"operation": "schema_init", "type": "schema"},
		},
		"health_check": {
			Timeout: 5 * time.Second,
			Metadata: map[string]any{"operation": "health_check", "type": "read"},
		},
		"clear": {
			Timeout: 5 * time.Minute,
			Metadata: map[string]any{"operation": "clear", "type": "write"},
		},
	}
}

// AsNeo4jConfig converts to Neo4j transaction config functions, for use
// with a session's Run/ExecuteRead/ExecuteWrite calls.
func (tc TransactionConfig) AsNeo4jConfig() []func(*neo4j.TransactionConfig) {
	configs := []func(*neo4j.TransactionConfig){}

	if tc.Timeout > 0 {
		configs = append(configs, neo4j.WithTxTimeout(tc.Timeout))
	}
	if len(tc.Metadata) > 0 {
		configs = append(configs, neo4j.WithTxMetadata(tc.Metadata))
	}

	return configs
}

// GetConfigForOperation retrieves the config for a named operation,
// falling back to the universal 60s timeout if unrecognized.
func GetConfigForOperation(operation string) TransactionConfig {
	configs := DefaultTransactionConfigs()
	if config, ok := configs[operation]; ok {
		return config
	}

	return TransactionConfig{
		Timeout:  60 * time.Second,
		Metadata: map[string]any{"operation": operation, "type": "unknown"},
	}
}

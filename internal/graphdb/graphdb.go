// Package graphdb is the optional Neo4j sink of SPEC_FULL §4.14: it
// loads the Writer's final node and edge set so a team can run ad-hoc
// Cypher queries over the call graph. Disabled by default; additive to,
// never a replacement for, the YAML/DOT artifacts. Grounded on
// rohankatakam-coderisk's internal/graph/neo4j_client.go.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/arvidnilsson/depscan/internal/writer"
)

// Client wraps a Neo4j driver scoped to loading one graph per run.
type Client struct {
	driver   neo4j.DriverWithContext
	logger   *slog.Logger
	database string
}

// NewClient creates a Neo4j client from explicit credentials, matching
// the corpus's NewClientWithDatabase shape. database defaults to
// "neo4j" when empty.
func NewClient(ctx context.Context, uri, user, password, database string) (*Client, error) {
	if uri == "" || user == "" || password == "" {
		return nil, fmt.Errorf("neo4j credentials missing: uri=%s, user=%s", uri, user)
	}
	if database == "" {
		database = "neo4j"
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(config *neo4j.Config) {
		config.MaxConnectionPoolSize = 20
		config.ConnectionAcquisitionTimeout = 30 * time.Second
		config.MaxConnectionLifetime = time.Hour
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	return &Client{
		driver:   driver,
		logger:   slog.Default().With("component", "graphdb"),
		database: database,
	}, nil
}

// Close closes the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// LoadGraph merges doc's nodes and edges into Neo4j as (:Script)
// nodes and CALLS/SOURCES relationships, keyed on path so repeated
// loads of the same bundle converge rather than duplicate.
func (c *Client) LoadGraph(ctx context.Context, doc writer.GraphDoc) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range doc.Nodes {
			if _, err := tx.Run(ctx, `MERGE (:Script {path: $path})`, map[string]any{"path": n}); err != nil {
				return nil, fmt.Errorf("failed to merge node %s: %w", n, err)
			}
		}
		for _, e := range doc.Edges {
			rel := "CALLS"
			if e.Kind == "source" {
				rel = "SOURCES"
			}
			query := fmt.Sprintf(`
				MATCH (src:Script {path: $src})
				MATCH (dst:Script {path: $dst})
				MERGE (src)-[r:%s {dynamic: $dynamic, resolved: $resolved}]->(dst)
				SET r.command = $command, r.confidence = $confidence, r.reason = $reason
			`, rel)
			params := map[string]any{
				"src": e.Src, "dst": e.Dst, "dynamic": e.Dynamic, "resolved": e.Resolved,
				"command": e.Command, "confidence": e.Confidence, "reason": e.Reason,
			}
			if _, err := tx.Run(ctx, query, params); err != nil {
				return nil, fmt.Errorf("failed to merge edge %s->%s: %w", e.Src, e.Dst, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	c.logger.Info("graph loaded into neo4j", "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	return nil
}

// HealthCheck verifies Neo4j connectivity.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j health check failed: %w", err)
	}
	return nil
}

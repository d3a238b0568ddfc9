// Package executor adapts a Neo4j connection to the gateway's execution
// interface. Accepted queries run in read transactions; write enforcement
// happens upstream in the pipeline, not here.
package executor

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"

	gerrors "github.com/cyphergate/cyphergate/pkg/errors"
)

// Config holds Neo4j connection settings.
type Config struct {
	URI               string        `yaml:"uri" json:"uri"`
	Username          string        `yaml:"username" json:"username"`
	Password          string        `yaml:"password" json:"-"`
	Database          string        `yaml:"database" json:"database"`
	MaxPoolSize       int           `yaml:"max_pool_size" json:"max_pool_size"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"`
}

// DefaultConfig returns the default Neo4j configuration.
func DefaultConfig() Config {
	return Config{
		URI:               "bolt://localhost:7687",
		Username:          "neo4j",
		Database:          "neo4j",
		MaxPoolSize:       50,
		ConnectionTimeout: 30 * time.Second,
	}
}

// Neo4jExecutor runs accepted queries against a Neo4j database. Sessions
// are created per call; the driver pools connections underneath.
type Neo4jExecutor struct {
	cfg    Config
	driver neo4j.DriverWithContext
}

// NewNeo4jExecutor creates an executor and verifies connectivity.
func NewNeo4jExecutor(ctx context.Context, cfg Config) (*Neo4jExecutor, error) {
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 50
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = cfg.MaxPoolSize
			c.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		},
	)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeInternal, "creating neo4j driver")
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, gerrors.Wrap(err, gerrors.CodeInternal, "verifying neo4j connectivity")
	}

	log.Info().Str("uri", cfg.URI).Str("database", cfg.Database).Msg("Connected to Neo4j")
	return &Neo4jExecutor{cfg: cfg, driver: driver}, nil
}

// Execute runs the query in a read transaction and returns each record as a
// field-name-to-value map.
func (e *Neo4jExecutor) Execute(ctx context.Context, query string, parameters map[string]any) ([]map[string]any, error) {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: e.cfg.Database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, parameters)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		rows := make([]map[string]any, 0, len(records))
		for _, record := range records {
			rows = append(rows, record.AsMap())
		}
		return rows, nil
	})
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CodeExecutionFailed, "query execution failed")
	}

	return result.([]map[string]any), nil
}

// Ping verifies the connection is still healthy.
func (e *Neo4jExecutor) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.driver.VerifyConnectivity(pingCtx); err != nil {
		return gerrors.Wrap(err, gerrors.CodeInternal, "neo4j connectivity check failed")
	}
	return nil
}

// Close releases the driver and its connection pool.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

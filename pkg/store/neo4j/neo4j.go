// Package neo4j implements store.Store on a Neo4j database. Every query runs
// in a read transaction of a READ access mode session.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore runs store templates as Cypher against Neo4j.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewGraphStoreParams configures NewGraphStore. User should be an account
// with read-only privileges on Database.
type NewGraphStoreParams struct {
	URI      string
	User     string
	Password string
	Database string

	MaxConnectionPoolSize int
	ConnectionTimeout     time.Duration
}

type GraphStoreOption func(*GraphStore)

// WithDriver uses an existing driver instead of dialing a new one. The caller
// keeps ownership of it.
func WithDriver(driver neo4j.DriverWithContext) GraphStoreOption {
	return func(s *GraphStore) {
		s.driver = driver
	}
}

// NewGraphStore connects to Neo4j and verifies connectivity.
func NewGraphStore(ctx context.Context, params NewGraphStoreParams, opts ...GraphStoreOption) (*GraphStore, error) {
	s := &GraphStore{database: params.Database}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}

	if s.driver == nil {
		driver, err := neo4j.NewDriverWithContext(
			params.URI,
			neo4j.BasicAuth(params.User, params.Password, ""),
			func(c *neo4j.Config) {
				if params.MaxConnectionPoolSize > 0 {
					c.MaxConnectionPoolSize = params.MaxConnectionPoolSize
				}
				if params.ConnectionTimeout > 0 {
					c.SocketConnectTimeout = params.ConnectionTimeout
				}
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
		}
		s.driver = driver
	}

	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	return s, nil
}

// Close releases the driver.
func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping checks the database is reachable.
func (s *GraphStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// RunReadQuery executes tmpl in a read transaction.
func (s *GraphStore) RunReadQuery(
	ctx context.Context,
	tmpl store.QueryTemplate,
	params store.Params,
) ([]store.Record, error) {
	cypher, args, err := buildCypher(tmpl, params)
	if err != nil {
		return nil, err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, args)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, classifyError(tmpl, err)
	}

	rows, _ := result.([]*neo4j.Record)
	out := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := parseRecord(row, tmpl.ScoreField)
		if err != nil {
			logger.Warn("[Neo4j][RunReadQuery] Skipping record", "template", tmpl.Name, "err", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func classifyError(tmpl store.QueryTemplate, err error) error {
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		code := neoErr.Code
		if strings.HasPrefix(code, "Neo.ClientError.Security.") ||
			code == "Neo.ClientError.Statement.AccessMode" {
			return fmt.Errorf("%w: %s: %s", store.ErrSecurityBlock, tmpl.Name, neoErr.Msg)
		}
	}
	if strings.Contains(err.Error(), "Forbidden") {
		return fmt.Errorf("%w: %s: %v", store.ErrSecurityBlock, tmpl.Name, err)
	}
	return fmt.Errorf("neo4j query %s failed: %w", tmpl.Name, err)
}

type recordGetter interface {
	Get(key string) (any, bool)
}

func parseRecord(row recordGetter, scoreField string) (store.Record, error) {
	nameVal, ok := row.Get("name")
	if !ok {
		return store.Record{}, fmt.Errorf("%w: missing name", store.ErrUnparseableRecord)
	}
	name, ok := nameVal.(string)
	if !ok || name == "" {
		return store.Record{}, fmt.Errorf("%w: name is %T", store.ErrUnparseableRecord, nameVal)
	}

	nodeType := ""
	if v, ok := row.Get("node_type"); ok {
		nodeType, _ = v.(string)
	}

	scoreVal, ok := row.Get(scoreField)
	if !ok {
		return store.Record{}, fmt.Errorf("%w: missing %s", store.ErrUnparseableRecord, scoreField)
	}
	var score float64
	switch v := scoreVal.(type) {
	case float64:
		score = v
	case int64:
		score = float64(v)
	default:
		return store.Record{}, fmt.Errorf("%w: %s is %T", store.ErrUnparseableRecord, scoreField, scoreVal)
	}

	return store.Record{Name: name, NodeType: nodeType, Score: score}, nil
}

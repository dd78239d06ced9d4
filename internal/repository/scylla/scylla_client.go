package scylla

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/config"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// ScyllaClient holds the session archive cluster connection.
type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

// SessionsTableDDL is the archive schema, applied by operators or
// migrations.
const SessionsTableDDL = `
CREATE TABLE IF NOT EXISTS decoy_sessions (
    session_id       text PRIMARY KEY,
    identity_label   text,
    source_identity  text,
    started_at       timestamp,
    last_activity_at timestamp,
    ended_at         timestamp,
    status           text
)`

// NewScyllaClient connects to the cluster.
func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Hosts...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("hosts", scyllaConfig.Hosts),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &ScyllaClient{Session: session, config: &scyllaConfig}, nil
}

// HealthCheck runs a trivial query against the system tables.
func (s *ScyllaClient) HealthCheck() error {
	return s.Session.Query(`SELECT now() FROM system.local`).Exec()
}

// Close tears the cluster session down.
func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB session closed")
	}
}

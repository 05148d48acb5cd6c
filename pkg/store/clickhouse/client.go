// Package clickhouse implements the persistence ports on ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/polyvisor/pulse/pkg/retry"
	"github.com/polyvisor/pulse/pkg/utils"
)

// Client wraps a ClickHouse connection pool targeting a single database.
type Client struct {
	Logger         *zap.Logger
	Db             driver.Conn
	TargetDatabase string
}

// PoolConfig defines connection pool settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Component       string
}

// DefaultPoolConfig reads pool sizing from the environment.
func DefaultPoolConfig(component string) PoolConfig {
	return PoolConfig{
		MaxOpenConns:    utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: utils.EnvDuration("CLICKHOUSE_CONN_MAX_LIFETIME", time.Hour),
		Component:       component,
	}
}

// New connects to ClickHouse using CLICKHOUSE_ADDR and returns a client
// bound to dbName. The database itself is created by InitializeDB, so the
// initial connection targets the default database.
func New(ctx context.Context, logger *zap.Logger, dbName string, pool PoolConfig) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dsn := utils.Env("CLICKHOUSE_ADDR", "clickhouse://localhost:9000?sslmode=disable")
	username, password, addrs, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	client := &Client{
		Logger:         logger,
		TargetDatabase: dbName,
	}

	options := &clickhouse.Options{
		Addr: addrs,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: username,
			Password: password,
		},
		DialTimeout:     30 * time.Second,
		MaxOpenConns:    pool.MaxOpenConns,
		MaxIdleConns:    pool.MaxIdleConns,
		ConnMaxLifetime: pool.ConnMaxLifetime,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"prefer_column_name_to_alias": 1,
		},
	}

	err = retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "clickhouse_connection", func() error {
		conn, openErr := clickhouse.Open(options)
		if openErr != nil {
			return fmt.Errorf("failed to open clickhouse connection: %w", openErr)
		}
		if pingErr := conn.Ping(connCtx); pingErr != nil {
			return fmt.Errorf("failed to ping clickhouse: %w", pingErr)
		}
		client.Db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("ClickHouse connection pool configured",
		zap.String("database", dbName),
		zap.String("component", pool.Component),
		zap.Strings("addrs", addrs),
		zap.Int("max_open_conns", pool.MaxOpenConns))
	return client, nil
}

// parseDSN extracts credentials and host list from a clickhouse:// DSN.
// Multiple comma-separated hosts are supported for failover.
func parseDSN(dsn string) (username, password string, addrs []string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", nil, fmt.Errorf("invalid clickhouse dsn: %w", err)
	}
	if u.User != nil {
		username = u.User.Username()
		password, _ = u.User.Password()
	}
	if username == "" {
		username = "default"
	}
	for _, host := range strings.Split(u.Host, ",") {
		host = strings.TrimSpace(host)
		if host != "" {
			addrs = append(addrs, host)
		}
	}
	if len(addrs) == 0 {
		addrs = []string{"localhost:9000"}
	}
	return username, password, addrs, nil
}

// SanitizeName makes an identifier safe to use as a database name.
func SanitizeName(id string) string {
	s := strings.ToLower(id)
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}

// CreateDbIfNotExists ensures the target database exists.
func (c *Client) CreateDbIfNotExists(ctx context.Context, dbName string) error {
	return c.Db.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", SanitizeName(dbName)))
}

// Exec runs a statement against the target database.
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.Db.Exec(ctx, query, args...)
}

// QueryRow runs a single-row query.
func (c *Client) QueryRow(ctx context.Context, query string, args ...interface{}) driver.Row {
	return c.Db.QueryRow(ctx, query, args...)
}

// Query runs a multi-row query.
func (c *Client) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	return c.Db.Query(ctx, query, args...)
}

// PrepareBatch starts a batched insert.
func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Db.PrepareBatch(ctx, query)
}

// Close terminates the connection pool.
func (c *Client) Close() error {
	return c.Db.Close()
}

package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// ConnectDB opens and pings a pgx pool.
func ConnectDB(ctx context.Context, c DBConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to database",
		zap.String("host", c.Host),
		zap.String("port", c.Port),
		zap.String("db", c.Name),
		zap.String("user", c.User),
		zap.Bool("url_override", c.URL != ""),
	)

	poolConfig, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolConfig.MaxConns = int32(c.MaxConns)
	poolConfig.MinConns = int32(c.MinConns)
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	st := pool.Stat()
	logger.Info("database connected",
		zap.Int32("idle", st.IdleConns()),
		zap.Int32("total", st.TotalConns()),
		zap.Int32("max", st.MaxConns()),
	)
	return pool, nil
}

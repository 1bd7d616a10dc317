package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const applicationName = "bbsfolio-api"

// Pool sizes the database/sql connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
	// PingAttempts bounds the startup wait for a database that is still coming up.
	PingAttempts int
}

var DefaultPool = Pool{
	MaxOpen:      20,
	MaxIdle:      10,
	MaxIdleTime:  5 * time.Minute,
	MaxLifetime:  30 * time.Minute,
	PingAttempts: 5,
}

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	return OpenPool(ctx, databaseURL, DefaultPool)
}

// OpenPool connects through pgx and waits for the server to answer, backing off
// between pings until the attempts run out or ctx ends.
func OpenPool(ctx context.Context, databaseURL string, pool Pool) (*sql.DB, error) {
	connConfig, err := parseConnConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*connConfig)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetMaxOpenConns(pool.MaxOpen)

	if err := waitForPing(ctx, db, max(pool.PingAttempts, 1)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// parseConnConfig tags sessions with the application name unless the URL sets one.
func parseConnConfig(databaseURL string) (*pgx.ConnConfig, error) {
	connConfig, err := pgx.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if connConfig.RuntimeParams == nil {
		connConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := connConfig.RuntimeParams["application_name"]; !ok {
		connConfig.RuntimeParams["application_name"] = applicationName
	}
	return connConfig, nil
}

func waitForPing(ctx context.Context, db *sql.DB, attempts int) error {
	delay := 250 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return fmt.Errorf("ping db after %d attempts: %w", attempt, err)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ping db: %w", err)
		case <-timer.C:
		}
		delay *= 2
	}
}

// Package kv provides the string key/value stores that back the content cache: Redis
// for the API service, a SQLite file for the terminal client and memory for tests and
// single-process runs.
package kv

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("kv: key not found")

// Store is a string key/value store. A zero ttl keeps the value until overwritten.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

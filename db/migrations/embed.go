// Package migrations carries the schema files compiled into the API binary.
package migrations

import "embed"

// Files holds the numbered .up.sql/.down.sql pairs.
//
//go:embed *.sql
var Files embed.FS

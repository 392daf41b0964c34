// Package migrations embeds the SQL schema for the Postgres metadata store.
package migrations

import "embed"

// FS holds every .sql file in this directory (e.g. 001_initial.sql).
//
//go:embed *.sql
var FS embed.FS

// Package db provides the embedded migration files for each SQL dialect.
package db

import "embed"

// Migrations holds migrations/mysql and migrations/postgres in the
// golang-migrate file naming scheme.
//
//go:embed migrations
var Migrations embed.FS

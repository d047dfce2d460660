// Package db provides embedded database migration files.
package db

import "embed"

// Migrations holds the versioned golang-migrate SQL files.
//
//go:embed migrations/*.sql
var Migrations embed.FS

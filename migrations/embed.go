// Package migrations embeds the history database schema into the binary,
// so the relay needs no SQL files on the device.
package migrations

import "embed"

// FS holds the *.up.sql files at its root, for database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS

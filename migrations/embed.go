// Package migrations embeds the SQL migration files so the bot can apply
// its own schema at startup and tests can run them via the goose provider.
package migrations

import "embed"

// FS holds all *.sql migration files embedded at compile time.
// Pass this to goose.NewProvider instead of relying on a filesystem path
// at runtime.
//
//go:embed *.sql
var FS embed.FS

package migrations

import "embed"

// FS exposes the SQL migration files for the iofs migrate source.
//
//go:embed *.sql
var FS embed.FS

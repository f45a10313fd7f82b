// Package migrations embeds the recordings schema into the binary.
package migrations

import "embed"

// Dir is the directory within FS holding the migration files.
const Dir = "."

// FS holds the *.sql migration files.
//
//go:embed *.sql
var FS embed.FS

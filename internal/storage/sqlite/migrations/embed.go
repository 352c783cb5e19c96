package migrations

import "embed"

// FS contains the embedded migrations of the round store.
//
//go:embed *.sql
var FS embed.FS

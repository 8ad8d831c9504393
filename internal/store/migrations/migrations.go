// Package migrations embeds the SQL schema applied by store.Init.
package migrations

import "embed"

// FS holds the numbered golang-migrate files.
//
//go:embed *.sql
var FS embed.FS

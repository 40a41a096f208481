// Package migrations embeds the SQL schema for the lead ledger.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

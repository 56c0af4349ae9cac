// Package migrations embeds the order service schema migrations.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS

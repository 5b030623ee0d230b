// Package migrations embeds the credentials.db schema migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

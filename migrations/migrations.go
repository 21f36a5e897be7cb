// Package migrations embeds the SQL schema applied at startup when DB_AUTO_MIGRATE is set.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS

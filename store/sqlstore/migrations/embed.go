// Package migrations embeds the goose schema migrations for each supported
// SQL dialect. Each dialect lives in its own directory.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var FS embed.FS

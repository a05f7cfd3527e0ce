// Package migrations embeds the goose SQL migrations for the boleto-service
// schema so they can be applied at bootstrap without shipping loose files.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

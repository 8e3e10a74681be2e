// Package migrations embeds the SQL schema files into the binary so the
// service can migrate its state store without files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory, at the root of the filesystem.
//
//go:embed *.sql
var FS embed.FS

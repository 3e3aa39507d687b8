// Package migrations embeds the SQL schema of the MySQL-backed stores.
package migrations

import (
	"embed"
	"fmt"
	"strings"
)

// TaskTable creates the background task table.
const TaskTable = "0001_stellar_tasks.sql"

// Files holds every migration.
//
//go:embed *.sql
var Files embed.FS

// MustRead returns the statement in name, trimmed. It panics when the file
// is not embedded.
func MustRead(name string) string {
	raw, err := Files.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("migration %s: %v", name, err))
	}
	return strings.TrimSpace(string(raw))
}

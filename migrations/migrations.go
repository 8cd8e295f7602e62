// Package migrations embeds the ordered SQL schema files so the migrate
// command and the integration tests apply the same schema.
package migrations

import (
	"embed"
	"sort"
)

//go:embed *.sql
var FS embed.FS

// Names returns the embedded migration file names in apply order.
func Names() ([]string, error) {
	entries, err := FS.ReadDir(".")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}

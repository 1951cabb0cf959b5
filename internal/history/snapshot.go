package history

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"ipwatch/internal/geo"
)

// DefaultSnapshotFile is where the raw record goes when no name is given.
const DefaultSnapshotFile = "ip_info.json"

// snapshotJSON writes provider text verbatim (no HTML escaping) with keys
// in a stable order.
var snapshotJSON = jsoniter.Config{
	EscapeHTML:    false,
	SortMapKeys:   true,
	IndentionStep: 4,
}.Froze()

// WriteSnapshot stores raw as indented JSON at path, replacing any
// previous content.
func WriteSnapshot(path string, raw geo.RawRecord) error {
	if path == "" {
		path = DefaultSnapshotFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
	}

	data, err := snapshotJSON.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

package core

import (
	"encoding/json"
	"os"

	"statemesh/internal/logging"
)

// DataSeeder loads an initial snapshot of entries for an engine to start
// from, e.g. so a freshly started instance isn't empty until its first
// successful pull.
type DataSeeder interface {
	Load() (map[string]Entry, error)
}

// FileSeeder reads a JSON object of key -> Entry from a local file. A
// missing or unreadable file is not fatal: the engine simply starts empty
// and logs the reason, matching a cold boot with no seed data configured.
type FileSeeder struct {
	Filename string `yaml:"filename" json:"filename"`
}

var _ DataSeeder = (*FileSeeder)(nil)

func (f *FileSeeder) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(f.Filename)
	if err != nil {
		logging.For("data-seeder").Warnf("seed file %q unreadable, starting empty: %v", f.Filename, err)
		return nil, nil
	}

	var out map[string]Entry
	if err := json.Unmarshal(data, &out); err != nil {
		logging.For("data-seeder").Warnf("seed file %q not valid, starting empty: %v", f.Filename, err)
		return nil, nil
	}
	return out, nil
}

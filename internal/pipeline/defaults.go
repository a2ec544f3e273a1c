package pipeline

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sparkify/pipeline.yaml sparkify/sql/*.sql
var sparkifyFS embed.FS

// DefaultSource names the embedded definition in errors and logs
const DefaultSource = "builtin:sparkify"

// Default returns the built-in Sparkify definition: stage events and songs,
// load the songplays fact, load four dimensions, then check every table.
func Default() (*Definition, error) {
	files, err := fs.Sub(sparkifyFS, "sparkify")
	if err != nil {
		return nil, fmt.Errorf("open embedded definition: %w", err)
	}
	data, err := fs.ReadFile(files, "pipeline.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded definition: %w", err)
	}
	return Parse(DefaultSource, data, files)
}

// LoadOrDefault loads path, or the built-in definition when path is empty
func LoadOrDefault(path string) (*Definition, error) {
	if path == "" {
		return Default()
	}
	return Load(path)
}

package v1

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OCAP2/brakesim/pkg/core"
)

// FileName names the export of a session, e.g.
// "freight_20260212_213836_1f0c9a2e.json.gz".
func FileName(s core.Session, compress bool) string {
	consistName := strings.ReplaceAll(s.Consist, " ", "_")
	consistName = strings.ReplaceAll(consistName, ":", "_")
	timestamp := s.StartedAt.UTC().Format("20060102_150405")

	id := s.ID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("%s_%s_%s.json", consistName, timestamp, id)
	if compress {
		name += ".gz"
	}
	return name
}

// WriteFile encodes data into dir under FileName and returns the path.
func WriteFile(dir string, data *SessionData, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, FileName(data.Session, compress))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := Encode(f, Build(data), compress); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close export: %w", err)
	}
	return path, nil
}

// ReadFile decodes an export file written by WriteFile.
func ReadFile(path string) (*SessionData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	export, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return ToCore(export)
}

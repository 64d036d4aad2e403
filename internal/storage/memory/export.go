package memory

import (
	v1 "github.com/OCAP2/brakesim/internal/storage/export/v1"
)

// exportJSON writes the session data to a JSON file, gzipped when
// configured
func (b *Backend) exportJSON(rec *SessionRecord) error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	path, err := v1.WriteFile(b.cfg.OutputDir, &v1.SessionData{
		Session:   rec.Session,
		Snapshots: rec.Snapshots,
		Events:    rec.Events,
	}, b.cfg.CompressOutput)
	if err != nil {
		return err
	}
	b.lastExportPath = path
	return nil
}

func loadExport(path string) (*SessionRecord, error) {
	data, err := v1.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &SessionRecord{
		Session:   data.Session,
		Snapshots: data.Snapshots,
		Events:    data.Events,
	}, nil
}

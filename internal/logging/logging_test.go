package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	runStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name        string
		logsDir     string
		consistName string
		want        string
	}{
		{
			name:        "basic path",
			logsDir:     "brakelogs",
			consistName: "freight",
			want:        filepath.Join("brakelogs", "freight.20260212_213836.log"),
		},
		{
			name:        "relative path with dot",
			logsDir:     "./brakelogs",
			consistName: "freight",
			want:        filepath.Join(".", "brakelogs", "freight.20260212_213836.log"),
		},
		{
			name:        "unnamed consist",
			logsDir:     filepath.Join("/var", "log", "brakes"),
			consistName: "",
			want:        filepath.Join("/var", "log", "brakes", "brakesim.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.consistName, runStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

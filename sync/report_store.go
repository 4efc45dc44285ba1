package sync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// ReportStore writes reports under Dir. Reports are never read back during
// a sync; Load exists for tooling and tests.
type ReportStore struct {
	FS  billy.Filesystem
	Dir string
}

// ReportBaseName returns the timestamped base name for a report of kind.
func ReportBaseName(kind string, at time.Time) string {
	return fmt.Sprintf("%s-report-%s", kind, at.Format("20060102-150405"))
}

// Save writes report as <Dir>/sync-report-YYYYMMDD-HHMMSS.json plus a .txt
// rendering next to it and returns both paths.
func (s ReportStore) Save(report Report, at time.Time) (jsonPath string, textPath string, err error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode report: %w", err)
	}
	base := ReportBaseName("sync", at)
	jsonPath, err = s.Write(base+".json", data)
	if err != nil {
		return "", "", err
	}
	textPath, err = s.Write(base+".txt", []byte(report.Render()))
	if err != nil {
		return "", "", err
	}
	return jsonPath, textPath, nil
}

// Load reads a report written by Save.
func (s ReportStore) Load(name string) (Report, error) {
	var result Report
	data, err := util.ReadFile(s.FS, name)
	if err != nil {
		return result, fmt.Errorf("failed to read report %s: %w", name, err)
	}
	err = json.Unmarshal(data, &result)
	return result, err
}

// Write stores data as <Dir>/name, creating Dir when needed.
func (s ReportStore) Write(name string, data []byte) (string, error) {
	if err := s.FS.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory %s: %w", s.Dir, err)
	}
	p := s.FS.Join(s.Dir, name)
	if err := util.WriteFile(s.FS, p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	return p, nil
}

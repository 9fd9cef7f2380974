// Package export writes RL replay buffers to disk for offline analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alejandrodnm/betpool/internal/domain"
)

var header = []string{"step", "state", "action", "reward", "next_state", "done"}

// CSVExporter implements ports.ReplayExporter: one file per agent and episode.
type CSVExporter struct {
	dir string
}

// NewCSVExporter writes under dir, creating it on first export.
func NewCSVExporter(dir string) *CSVExporter {
	return &CSVExporter{dir: dir}
}

// Path is where the replay of agentID for episode is written.
func (e *CSVExporter) Path(agentID, episode int) string {
	return filepath.Join(e.dir, fmt.Sprintf("agent_%d", agentID), fmt.Sprintf("episode_%05d.csv", episode))
}

// ExportReplay writes rows, replacing any previous file for the same episode.
// Vectors are encoded as space-separated floats.
func (e *CSVExporter) ExportReplay(agentID, episode int, rows []domain.Transition) error {
	path := e.Path(agentID, episode)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export.ExportReplay: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export.ExportReplay: create %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("export.ExportReplay: header: %w", err)
	}
	for i, tr := range rows {
		rec := []string{
			strconv.Itoa(i),
			joinFloats(tr.State),
			strconv.Itoa(tr.Action),
			strconv.FormatFloat(tr.Reward, 'g', -1, 64),
			joinFloats(tr.NextState),
			strconv.FormatBool(tr.Done),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("export.ExportReplay: row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export.ExportReplay: flush: %w", err)
	}
	return f.Close()
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

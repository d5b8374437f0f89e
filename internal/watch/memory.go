package watch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	maxRecords     = 10
	summaryRecords = 5 // how many recent records Summary includes
)

// CycleRecord captures what happened in a single watch cycle.
type CycleRecord struct {
	Tick     uint64   `json:"tick"`
	RunID    string   `json:"run_id"`
	Level    string   `json:"level"`
	Action   string   `json:"action"`
	Findings []string `json:"findings,omitempty"`
}

// CycleMemory manages a ring of recent watch cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`
	path    string
}

// LoadMemory reads the memory file from disk. Returns empty memory if not
// found. An empty path keeps memory in-process only.
func LoadMemory(path string) *CycleMemory {
	if path == "" {
		return &CycleMemory{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("watch memory corrupted, starting fresh", "error", err)
		return &CycleMemory{path: path}
	}
	mem.path = path
	return &mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to marshal watch memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		slog.Error("failed to write watch memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Summary returns a one-line-per-cycle digest of the last few cycles.
func (m *CycleMemory) Summary() string {
	if len(m.Records) == 0 {
		return ""
	}

	var b strings.Builder
	start := 0
	if len(m.Records) > summaryRecords {
		start = len(m.Records) - summaryRecords
	}
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "tick %d: level=%s action=%s", r.Tick, r.Level, r.Action)
		if len(r.Findings) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(r.Findings, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CalmedRecently reports whether any of the last n cycles calmed the wind.
func (m *CycleMemory) CalmedRecently(n int) bool {
	start := len(m.Records) - n
	if start < 0 {
		start = 0
	}
	for _, r := range m.Records[start:] {
		if r.Action == "calm_wind" {
			return true
		}
	}
	return false
}

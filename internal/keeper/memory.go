package keeper

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	maxRecords     = 20
	summaryRecords = 5 // how many recent records Summary prints
)

// CycleRecord captures what happened in a single keeper cycle.
type CycleRecord struct {
	Tick        uint64   `json:"tick"`
	Generation  string   `json:"generation"`
	Action      string   `json:"action"`
	CrisisLevel string   `json:"crisis_level"`
	FillRatio   float64  `json:"fill_ratio"`
	Drained     []string `json:"drained,omitempty"`
}

// CycleMemory manages a ring of recent keeper cycle records.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`
	path    string
}

// LoadMemory reads the memory file at path. Returns empty memory if not found.
func LoadMemory(path string) *CycleMemory {
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("keeper memory corrupted, starting fresh", "error", err)
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
		slog.Error("failed to marshal keeper memory", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		slog.Error("failed to write keeper memory", "error", err)
	}
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// RecentlyDrained reports whether id was drained in one of the last n
// cycles of the same generation. Ids from older generations never match.
func (m *CycleMemory) RecentlyDrained(id, generation string, n int) bool {
	start := max(0, len(m.Records)-n)
	for _, r := range m.Records[start:] {
		if r.Generation != generation {
			continue
		}
		for _, d := range r.Drained {
			if d == id {
				return true
			}
		}
	}
	return false
}

// Summary returns the last few cycles, one per line.
func (m *CycleMemory) Summary() string {
	if len(m.Records) == 0 {
		return ""
	}

	var b strings.Builder
	start := max(0, len(m.Records)-summaryRecords)
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "- Tick %d: action=%s, crisis=%s, fill=%.2f",
			r.Tick, r.Action, r.CrisisLevel, r.FillRatio)
		if len(r.Drained) > 0 {
			fmt.Fprintf(&b, ", drained=%s", strings.Join(r.Drained, ","))
		}
		b.WriteString("\n")
	}
	return b.String()
}

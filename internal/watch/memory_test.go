package watch

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryRing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.json")
	mem := LoadMemory(path)
	for i := 0; i < 15; i++ {
		action := "none"
		if i == 13 {
			action = "calm_wind"
		}
		mem.Record(CycleRecord{Tick: uint64(i), Level: LevelHealthy, Action: action})
	}
	if len(mem.Records) != maxRecords || mem.Records[0].Tick != 5 {
		t.Fatalf("records = %d, first tick %d", len(mem.Records), mem.Records[0].Tick)
	}
	if !mem.CalmedRecently(2) || mem.CalmedRecently(1) {
		t.Error("CalmedRecently window wrong")
	}
	mem.Save()

	loaded := LoadMemory(path)
	if len(loaded.Records) != maxRecords || loaded.Records[9].Tick != 14 {
		t.Errorf("loaded %+v", loaded.Records)
	}
	if lines := strings.Count(loaded.Summary(), "\n"); lines != summaryRecords {
		t.Errorf("summary lines = %d", lines)
	}
}

func TestMemoryWithoutPath(t *testing.T) {
	mem := LoadMemory("")
	mem.Record(CycleRecord{Tick: 1, Action: "none"})
	mem.Save()
	if mem.Summary() == "" {
		t.Error("empty summary")
	}
}

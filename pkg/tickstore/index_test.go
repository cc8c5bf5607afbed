package tickstore

import (
	"os"
	"testing"
	"time"

	"github.com/finiex/testingide/pkg/timeframe"
)

func TestLoadMissingSidecarReturnsEmptyIndex(t *testing.T) {
	idx, err := Load("/nonexistent/path/to/sidecar.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Ticks == nil || idx.Bars == nil {
		t.Error("expected initialized empty maps")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/index.json"

	idx := &Index{GeneratedAt: time.Now().UTC()}
	idx.AddTickFile("EURUSD", TickFileEntry{Path: "ticks/eurusd_1.csv", StartTime: time.Unix(0, 0), EndTime: time.Unix(1000, 0)})
	idx.AddBarFile("EURUSD", timeframe.M5, BarFileEntry{Path: "bars/eurusd_m5.csv"})

	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Ticks["EURUSD"]) != 1 {
		t.Errorf("expected 1 tick file entry after round trip, got %d", len(loaded.Ticks["EURUSD"]))
	}
	entry, ok := loaded.BarFile("EURUSD", timeframe.M5)
	if !ok {
		t.Fatal("expected bar file entry to survive round trip")
	}
	if entry.Path != "bars/eurusd_m5.csv" {
		t.Errorf("unexpected bar file path: %s", entry.Path)
	}
}

func TestFilesForRangeFiltersOverlap(t *testing.T) {
	idx := &Index{}
	idx.AddTickFile("EURUSD", TickFileEntry{Path: "a", StartTime: time.Unix(0, 0), EndTime: time.Unix(100, 0)})
	idx.AddTickFile("EURUSD", TickFileEntry{Path: "b", StartTime: time.Unix(200, 0), EndTime: time.Unix(300, 0)})

	out := idx.FilesForRange("EURUSD", time.Unix(50, 0), time.Unix(90, 0))
	if len(out) != 1 || out[0].Path != "a" {
		t.Errorf("expected only file 'a' to overlap the range, got %v", out)
	}
}

func TestFilesForRangeSortedByStartTime(t *testing.T) {
	idx := &Index{}
	idx.AddTickFile("EURUSD", TickFileEntry{Path: "later", StartTime: time.Unix(500, 0), EndTime: time.Unix(600, 0)})
	idx.AddTickFile("EURUSD", TickFileEntry{Path: "earlier", StartTime: time.Unix(0, 0), EndTime: time.Unix(100, 0)})

	out := idx.FilesForRange("EURUSD", time.Unix(0, 0), time.Unix(1000, 0))
	if len(out) != 2 || out[0].Path != "earlier" {
		t.Errorf("expected files sorted by start time, got %v", out)
	}
}

type fakeStat struct {
	times map[string]time.Time
}

func (f fakeStat) Stat(path string) (os.FileInfo, error) {
	if _, ok := f.times[path]; !ok {
		return nil, os.ErrNotExist
	}
	return fakeFileInfo{modTime: f.times[path]}, nil
}

type fakeFileInfo struct {
	modTime time.Time
}

func (f fakeFileInfo) Name() string       { return "" }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() os.FileMode  { return 0 }
func (f fakeFileInfo) ModTime() time.Time { return f.modTime }
func (f fakeFileInfo) IsDir() bool        { return false }
func (f fakeFileInfo) Sys() any           { return nil }

func TestNeedsRebuildWhenSidecarMissing(t *testing.T) {
	stat := fakeStat{times: map[string]time.Time{}}
	need, err := NeedsRebuild("sidecar.json", nil, stat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !need {
		t.Error("expected rebuild to be needed when the sidecar is missing")
	}
}

func TestNeedsRebuildWhenFileIsNewer(t *testing.T) {
	now := time.Now()
	stat := fakeStat{times: map[string]time.Time{
		"sidecar.json": now,
		"ticks/a.csv":  now.Add(time.Hour),
	}}
	need, err := NeedsRebuild("sidecar.json", []string{"ticks/a.csv"}, stat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !need {
		t.Error("expected rebuild to be needed when an indexed file is newer than the sidecar")
	}
}

func TestNeedsRebuildFalseWhenUpToDate(t *testing.T) {
	now := time.Now()
	stat := fakeStat{times: map[string]time.Time{
		"sidecar.json": now,
		"ticks/a.csv":  now.Add(-time.Hour),
	}}
	need, err := NeedsRebuild("sidecar.json", []string{"ticks/a.csv"}, stat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if need {
		t.Error("expected no rebuild when every indexed file predates the sidecar")
	}
}

func TestTickAndBarFilesDirConventions(t *testing.T) {
	if got := TickFilesDir("/data", "EURUSD"); got != "/data/ticks/EURUSD" {
		t.Errorf("TickFilesDir = %s", got)
	}
	if got := BarFilesDir("/data", "EURUSD"); got != "/data/bars/EURUSD" {
		t.Errorf("BarFilesDir = %s", got)
	}
}

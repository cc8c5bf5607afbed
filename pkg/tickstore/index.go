// Package tickstore indexes the columnar tick/bar store (§4.2, §6). The
// store itself — the columnar files — is an external, consumed format;
// this package only tracks which file covers which symbol/timeframe/time
// range, persisting that index as a JSON sidecar so it need not be
// rebuilt on every run.
package tickstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/finiex/testingide/pkg/timeframe"
)

// TickFileEntry describes one tick file's coverage.
type TickFileEntry struct {
	Path      string    `json:"path"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	RowCount  int       `json:"row_count"`
	ModTime   time.Time `json:"mod_time"`
}

// BarFileEntry describes one bar file's coverage for a single timeframe.
type BarFileEntry struct {
	Path      string    `json:"path"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	RowCount  int       `json:"row_count"`
	ModTime   time.Time `json:"mod_time"`
}

// Index is the in-memory (and JSON-serializable) tick/bar file map.
type Index struct {
	GeneratedAt time.Time                                    `json:"generated_at"`
	Ticks       map[string][]TickFileEntry                   `json:"ticks"`
	Bars        map[string]map[timeframe.Name]BarFileEntry    `json:"bars"`
}

// FileStat abstracts the filesystem detail the index needs, so tests can
// substitute an in-memory store without touching disk.
type FileStat interface {
	Stat(path string) (os.FileInfo, error)
}

// osFileStat is the default FileStat backed by the real filesystem.
type osFileStat struct{}

func (osFileStat) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

// Load reads a previously persisted index from sidecarPath, or returns an
// empty index if absent.
func Load(sidecarPath string) (*Index, error) {
	data, err := os.ReadFile(sidecarPath)
	if os.IsNotExist(err) {
		return &Index{Ticks: map[string][]TickFileEntry{}, Bars: map[string]map[timeframe.Name]BarFileEntry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tickstore: reading index %s: %w", sidecarPath, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("tickstore: parsing index %s: %w", sidecarPath, err)
	}
	if idx.Ticks == nil {
		idx.Ticks = map[string][]TickFileEntry{}
	}
	if idx.Bars == nil {
		idx.Bars = map[string]map[timeframe.Name]BarFileEntry{}
	}
	return &idx, nil
}

// Save persists the index as a JSON sidecar. Rebuild is idempotent modulo
// GeneratedAt.
func (idx *Index) Save(sidecarPath string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("tickstore: marshaling index: %w", err)
	}
	if err := os.WriteFile(sidecarPath, data, 0644); err != nil {
		return fmt.Errorf("tickstore: writing index %s: %w", sidecarPath, err)
	}
	return nil
}

// NeedsRebuild reports whether sidecarPath is missing, or any file under
// indexedFiles has an mtime newer than the sidecar itself (§4.2).
func NeedsRebuild(sidecarPath string, indexedFiles []string, stat FileStat) (bool, error) {
	if stat == nil {
		stat = osFileStat{}
	}
	sidecarInfo, err := stat.Stat(sidecarPath)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("tickstore: stat %s: %w", sidecarPath, err)
	}
	for _, f := range indexedFiles {
		fi, err := stat.Stat(f)
		if err != nil {
			return true, nil // missing/unreadable file forces a rebuild
		}
		if fi.ModTime().After(sidecarInfo.ModTime()) {
			return true, nil
		}
	}
	return false, nil
}

// FilesForRange returns every tick file entry for symbol whose [start,end]
// overlaps [t0,t1], sorted by StartTime.
func (idx *Index) FilesForRange(symbol string, t0, t1 time.Time) []TickFileEntry {
	var out []TickFileEntry
	for _, f := range idx.Ticks[symbol] {
		if f.EndTime.Before(t0) || f.StartTime.After(t1) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// BarFile returns the single bar file entry for symbol/tf, or false if
// none is indexed.
func (idx *Index) BarFile(symbol string, tf timeframe.Name) (BarFileEntry, bool) {
	m, ok := idx.Bars[symbol]
	if !ok {
		return BarFileEntry{}, false
	}
	e, ok := m[tf]
	return e, ok
}

// AddTickFile registers one tick file's coverage under symbol.
func (idx *Index) AddTickFile(symbol string, entry TickFileEntry) {
	if idx.Ticks == nil {
		idx.Ticks = map[string][]TickFileEntry{}
	}
	idx.Ticks[symbol] = append(idx.Ticks[symbol], entry)
}

// AddBarFile registers one bar file's coverage under symbol/timeframe.
func (idx *Index) AddBarFile(symbol string, tf timeframe.Name, entry BarFileEntry) {
	if idx.Bars == nil {
		idx.Bars = map[string]map[timeframe.Name]BarFileEntry{}
	}
	if idx.Bars[symbol] == nil {
		idx.Bars[symbol] = map[timeframe.Name]BarFileEntry{}
	}
	idx.Bars[symbol][tf] = entry
}

// TickFilesDir returns the conventional directory for a symbol's tick
// files under a collector root (§6).
func TickFilesDir(collectorRoot, symbol string) string {
	return filepath.Join(collectorRoot, "ticks", symbol)
}

// BarFilesDir returns the conventional directory for a symbol's bar files
// under a collector root (§6).
func BarFilesDir(collectorRoot, symbol string) string {
	return filepath.Join(collectorRoot, "bars", symbol)
}

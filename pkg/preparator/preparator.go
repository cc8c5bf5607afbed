// Package preparator implements the shared data preparator (§4.4): for
// each scenario it loads only the tick files the scenario actually needs,
// normalizes and deduplicates them, slices the warmup bars each worker
// asked for, and emits a scenario.ProcessDataPackage. Nothing here is
// shared across scenarios — each package is independently owned so a
// parallel batch run can process scenarios without any cross-scenario
// locking.
package preparator

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/brokersim"
	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/scenario"
	"github.com/finiex/testingide/pkg/tickstore"
	"github.com/finiex/testingide/pkg/timeframe"
)

// TickReader loads every tick row out of one tick file. Swappable in
// tests; the production implementation reads the collector's CSV tick
// format (time_msc,bid,ask,volume).
type TickReader interface {
	ReadTicks(path, symbol string) ([]market.Tick, error)
}

// BarReader loads every bar row out of one bar file.
type BarReader interface {
	ReadBars(path, symbol string, tf timeframe.Name) ([]market.Bar, error)
}

// Preparator assembles ProcessDataPackages from an on-disk tick/bar store
// indexed by tickstore.Index.
type Preparator struct {
	idx        *tickstore.Index
	tickReader TickReader
	barReader  BarReader
}

// New constructs a preparator over an already-loaded index.
func New(idx *tickstore.Index, tickReader TickReader, barReader BarReader) *Preparator {
	return &Preparator{idx: idx, tickReader: tickReader, barReader: barReader}
}

// Prepare builds one ProcessDataPackage for a scenario, given the
// per-timeframe warmup counts requirements.Collector.AddScenario already
// computed and the broker spec it should run against.
func (p *Preparator) Prepare(scenarioIndex int, s scenario.Scenario, warmupByTF map[timeframe.Name]int, spec brokersim.BrokerSpec) (scenario.ProcessDataPackage, error) {
	ticks, err := p.loadTicks(s)
	if err != nil {
		return scenario.ProcessDataPackage{}, fmt.Errorf("preparator: loading ticks for %q: %w", s.Name, err)
	}

	warmup := map[timeframe.Name][]market.Bar{}
	var warnings []string
	for tf, need := range warmupByTF {
		bars, warn, err := p.loadWarmupBars(s, tf, need)
		if err != nil {
			return scenario.ProcessDataPackage{}, fmt.Errorf("preparator: loading %s warmup bars for %q: %w", tf, s.Name, err)
		}
		warmup[tf] = bars
		if warn != "" {
			warnings = append(warnings, warn)
		}
	}

	return scenario.ProcessDataPackage{
		ScenarioIndex:  scenarioIndex,
		Scenario:       s,
		Ticks:          ticks,
		WarmupBars:     warmup,
		BrokerSpec:     spec,
		WarmupWarnings: warnings,
	}, nil
}

// loadTicks loads only the tick files overlapping the scenario's range (or,
// in tick-count-bounded mode, every file from the start time forward, with
// the result truncated to MaxTicks after sorting and deduplication),
// normalizes timestamps to UTC, concatenates, sorts stably by timestamp, and
// deduplicates by (timestamp, bid, ask) keeping the LAST occurrence —
// matching a re-collected overlapping file winning over a stale one.
func (p *Preparator) loadTicks(s scenario.Scenario) ([]market.Tick, error) {
	rangeEnd := s.EndTime
	if s.UsesMaxTicks() {
		rangeEnd = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	files := p.idx.FilesForRange(s.Symbol, s.StartTime, rangeEnd)

	var all []market.Tick
	for _, f := range files {
		ticks, err := p.tickReader.ReadTicks(f.Path, s.Symbol)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Path, err)
		}
		for _, t := range ticks {
			t.Timestamp = t.Timestamp.UTC()
			if t.Timestamp.Before(s.StartTime) {
				continue
			}
			if !s.UsesMaxTicks() && !s.EndTime.IsZero() && t.Timestamp.After(s.EndTime) {
				continue
			}
			all = append(all, t)
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	all = dedupTicks(all)

	if s.UsesMaxTicks() && len(all) > s.MaxTicks {
		all = all[:s.MaxTicks]
	}
	return all, nil
}

// dedupTicks drops duplicate (timestamp, bid, ask) rows, keeping the
// last-seen occurrence for each key while preserving overall order.
func dedupTicks(ticks []market.Tick) []market.Tick {
	type key struct {
		t   int64
		bid string
		ask string
	}
	keyOf := func(t market.Tick) key {
		return key{t: t.Timestamp.UnixNano(), bid: t.Bid.String(), ask: t.Ask.String()}
	}

	lastIdx := map[key]int{}
	for i, t := range ticks {
		lastIdx[keyOf(t)] = i
	}
	out := make([]market.Tick, 0, len(ticks))
	seen := map[key]bool{}
	for i, t := range ticks {
		k := keyOf(t)
		if lastIdx[k] != i {
			continue // a later duplicate wins
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// loadWarmupBars loads the single bar file for symbol/tf and selects the
// last `need` bars strictly before the scenario's start time. If fewer
// than `need` are available, it returns all that exist plus a non-fatal
// "insufficient warmup" warning rather than failing the scenario outright.
func (p *Preparator) loadWarmupBars(s scenario.Scenario, tf timeframe.Name, need int) ([]market.Bar, string, error) {
	entry, ok := p.idx.BarFile(s.Symbol, tf)
	if !ok {
		return nil, fmt.Sprintf("no bar file indexed for %s/%s: 0/%d warmup bars available", s.Symbol, tf, need), nil
	}
	bars, err := p.barReader.ReadBars(entry.Path, s.Symbol, tf)
	if err != nil {
		return nil, "", err
	}

	var before []market.Bar
	for _, b := range bars {
		if b.Timestamp.Before(s.StartTime) {
			before = append(before, b)
		}
	}
	sort.SliceStable(before, func(i, j int) bool { return before[i].Timestamp.Before(before[j].Timestamp) })

	if len(before) > need {
		before = before[len(before)-need:]
	}
	var warning string
	if len(before) < need {
		warning = fmt.Sprintf("insufficient warmup for %s/%s: needed %d bars, found %d before %s",
			s.Symbol, tf, need, len(before), s.StartTime.Format(time.RFC3339))
	}
	return before, warning, nil
}

// CSVTickReader is the default TickReader: one tick file is a CSV with
// header time_msc,bid,ask,volume.
type CSVTickReader struct{}

func (CSVTickReader) ReadTicks(path, symbol string) ([]market.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]market.Tick, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 4 {
			continue
		}
		msc, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing time_msc %q: %w", row[0], err)
		}
		bid, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("parsing bid %q: %w", row[1], err)
		}
		ask, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("parsing ask %q: %w", row[2], err)
		}
		vol, err := decimal.NewFromString(row[3])
		if err != nil {
			return nil, fmt.Errorf("parsing volume %q: %w", row[3], err)
		}
		out = append(out, market.Tick{
			Timestamp: time.UnixMilli(msc).UTC(),
			Symbol:    symbol,
			Bid:       bid,
			Ask:       ask,
			Volume:    vol,
		})
	}
	return out, nil
}

// CSVBarReader is the default BarReader: one bar file is a CSV with header
// time_msc,open,high,low,close,volume,tick_count,type.
type CSVBarReader struct{}

func (CSVBarReader) ReadBars(path, symbol string, tf timeframe.Name) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]market.Bar, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 8 {
			continue
		}
		msc, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing time_msc %q: %w", row[0], err)
		}
		open, _ := decimal.NewFromString(row[1])
		high, _ := decimal.NewFromString(row[2])
		low, _ := decimal.NewFromString(row[3])
		closeP, _ := decimal.NewFromString(row[4])
		vol, _ := decimal.NewFromString(row[5])
		tickCount, _ := strconv.Atoi(row[6])

		out = append(out, market.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			Timestamp: time.UnixMilli(msc).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    vol,
			TickCount: tickCount,
			Complete:  true,
			Type:      market.BarType(row[7]),
		})
	}
	return out, nil
}

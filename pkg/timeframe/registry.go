// Package timeframe holds the static bar-interval registry and the
// UTC-stable bar-open alignment used by the bar rendering controller.
package timeframe

import (
	"fmt"
	"sync"
	"time"
)

// Name identifies a registered timeframe, e.g. M1, H4, D1.
type Name string

const (
	M1  Name = "M1"
	M5  Name = "M5"
	M15 Name = "M15"
	M30 Name = "M30"
	H1  Name = "H1"
	H4  Name = "H4"
	D1  Name = "D1"
)

type entry struct {
	minutes    int
	sortIndex  int
	resampleRule string
}

var registry = map[Name]entry{
	M1:  {minutes: 1, sortIndex: 0, resampleRule: "1min"},
	M5:  {minutes: 5, sortIndex: 1, resampleRule: "5min"},
	M15: {minutes: 15, sortIndex: 2, resampleRule: "15min"},
	M30: {minutes: 30, sortIndex: 3, resampleRule: "30min"},
	H1:  {minutes: 60, sortIndex: 4, resampleRule: "1h"},
	H4:  {minutes: 240, sortIndex: 5, resampleRule: "4h"},
	D1:  {minutes: 1440, sortIndex: 6, resampleRule: "1d"},
}

// All returns every registered timeframe, sorted ascending by duration.
func All() []Name {
	out := make([]Name, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && registry[out[j-1]].sortIndex > registry[out[j]].sortIndex; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Minutes returns the bar duration in minutes for tf, or an error for an
// unregistered name.
func Minutes(tf Name) (int, error) {
	e, ok := registry[tf]
	if !ok {
		return 0, fmt.Errorf("timeframe: unknown timeframe %q", tf)
	}
	return e.minutes, nil
}

// Duration is Minutes expressed as a time.Duration.
func Duration(tf Name) (time.Duration, error) {
	m, err := Minutes(tf)
	if err != nil {
		return 0, err
	}
	return time.Duration(m) * time.Minute, nil
}

// ResampleRule returns the descriptive resample-rule string for tf (kept
// for external reporting compatibility; carries no behavior here).
func ResampleRule(tf Name) (string, error) {
	e, ok := registry[tf]
	if !ok {
		return "", fmt.Errorf("timeframe: unknown timeframe %q", tf)
	}
	return e.resampleRule, nil
}

type cacheKey struct {
	year, month, day, hour, minuteBucket int
	tf                                   Name
}

// barOpenCache mirrors the bounded per-minute cache of the reference
// implementation: same (minute, timeframe) always resolves to the same
// bar open, and the cache is trimmed rather than left unbounded.
type barOpenCache struct {
	mu      sync.Mutex
	entries map[cacheKey]time.Time
	order   []cacheKey
}

const (
	cacheHighWater = 10000
	cacheEvictTo   = 5000
)

var cache = &barOpenCache{entries: make(map[cacheKey]time.Time)}

// AlignBarOpen floors t to the start of its tf-interval on the UTC wall
// clock. t must already be in UTC; callers must not pass local times.
func AlignBarOpen(t time.Time, tf Name) (time.Time, error) {
	minutes, err := Minutes(tf)
	if err != nil {
		return time.Time{}, err
	}
	t = t.UTC()
	totalMinutes := t.Hour()*60 + t.Minute()
	barOpenMinute := (totalMinutes / minutes) * minutes

	key := cacheKey{
		year: t.Year(), month: int(t.Month()), day: t.Day(),
		hour: t.Hour(), minuteBucket: t.Minute(), tf: tf,
	}

	cache.mu.Lock()
	if v, ok := cache.entries[key]; ok {
		cache.mu.Unlock()
		return v, nil
	}
	cache.mu.Unlock()

	barOpen := time.Date(t.Year(), t.Month(), t.Day(),
		barOpenMinute/60, barOpenMinute%60, 0, 0, time.UTC)

	cache.mu.Lock()
	cache.entries[key] = barOpen
	cache.order = append(cache.order, key)
	if len(cache.entries) > cacheHighWater {
		evict := cache.order[:cacheEvictTo]
		for _, k := range evict {
			delete(cache.entries, k)
		}
		cache.order = cache.order[cacheEvictTo:]
	}
	cache.mu.Unlock()

	return barOpen, nil
}

// IsBarComplete reports whether a bar opened at barOpen has fully elapsed
// as of currentTime, for the given timeframe.
func IsBarComplete(barOpen, currentTime time.Time, tf Name) (bool, error) {
	d, err := Duration(tf)
	if err != nil {
		return false, err
	}
	return !currentTime.Before(barOpen.Add(d)), nil
}

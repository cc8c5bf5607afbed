// Package logger provides the per-scenario buffered logger described in
// §4.12: output is accumulated in memory and flushed as one block on
// scenario completion or error, so parallel scenarios never interleave
// console output. This follows this module's existing habit of plain
// stdlib log.Logger values rather than a structured logging library (see
// DESIGN.md — no complete example repo in this codebase's dependency
// lineage pulls one in).
package logger

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"
)

// ScenarioLogger buffers one scenario's log lines, timestamped as elapsed
// time since the scenario started (not wall-clock), matching the
// original's per-scenario log header convention.
type ScenarioLogger struct {
	mu          sync.Mutex
	buf         *bytes.Buffer
	std         *log.Logger
	started     time.Time
	scenarioSet string
	scenario    string
	runTimestamp time.Time

	tickLoopStarted bool
	currentTickIdx  int
}

// New constructs a scenario logger. runTimestamp is shared across every
// scenario in a batch so file logging (if enabled downstream) groups by
// run.
func New(scenarioSetName, scenarioName string, runTimestamp time.Time) *ScenarioLogger {
	buf := &bytes.Buffer{}
	prefix := fmt.Sprintf("[%s/%s] ", scenarioSetName, scenarioName)
	l := &ScenarioLogger{
		buf:          buf,
		std:          log.New(buf, prefix, 0),
		started:      time.Now(),
		scenarioSet:  scenarioSetName,
		scenario:     scenarioName,
		runTimestamp: runTimestamp,
	}
	fmt.Fprintf(buf, "%s=== run %s started %s ===\n", prefix, runTimestamp.Format(time.RFC3339), l.started.Format(time.RFC3339))
	return l
}

func (l *ScenarioLogger) elapsed() time.Duration { return time.Since(l.started) }

func (l *ScenarioLogger) log(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if l.tickLoopStarted {
		l.std.Printf("[%s +%s tick=%d] %s", level, l.elapsed().Round(time.Millisecond), l.currentTickIdx, msg)
		return
	}
	l.std.Printf("[%s +%s] %s", level, l.elapsed().Round(time.Millisecond), msg)
}

func (l *ScenarioLogger) Info(format string, args ...any)  { l.log("INFO", format, args...) }
func (l *ScenarioLogger) Debug(format string, args ...any) { l.log("DEBUG", format, args...) }
func (l *ScenarioLogger) Error(format string, args ...any) { l.log("ERROR", format, args...) }
func (l *ScenarioLogger) Warn(format string, args ...any)  { l.log("WARN", format, args...) }

// SetTickLoopStarted toggles whether subsequent log lines report a current
// tick index (true for the duration of the tick loop).
func (l *ScenarioLogger) SetTickLoopStarted(started bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tickLoopStarted = started
}

// SetCurrentTick records the tick index for subsequent log lines.
func (l *ScenarioLogger) SetCurrentTick(idx int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentTickIdx = idx
}

// Buffer returns the accumulated log text. Safe to call once the scenario
// has finished (or at any time, for best-effort partial capture).
func (l *ScenarioLogger) Buffer() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

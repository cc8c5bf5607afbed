package logger

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewWritesHeaderLine(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New("set1", "s1", ts)
	buf := l.Buffer()
	if !strings.Contains(buf, "[set1/s1]") {
		t.Errorf("expected the scenario-set/name prefix in the header, got %q", buf)
	}
	if !strings.Contains(buf, "=== run") {
		t.Errorf("expected a run-started header line, got %q", buf)
	}
}

func TestInfoLineBeforeTickLoopHasNoTickIndex(t *testing.T) {
	l := New("set1", "s1", time.Now())
	l.Info("hello %s", "world")
	buf := l.Buffer()
	if !strings.Contains(buf, "[INFO") {
		t.Errorf("expected an INFO level marker, got %q", buf)
	}
	if strings.Contains(buf, "tick=") {
		t.Errorf("expected no tick index before the tick loop starts, got %q", buf)
	}
	if !strings.Contains(buf, "hello world") {
		t.Errorf("expected the formatted message in the buffer, got %q", buf)
	}
}

func TestTickLoopStartedAddsTickIndex(t *testing.T) {
	l := New("set1", "s1", time.Now())
	l.SetTickLoopStarted(true)
	l.SetCurrentTick(42)
	l.Error("boom")
	buf := l.Buffer()
	if !strings.Contains(buf, "tick=42") {
		t.Errorf("expected the current tick index in the log line, got %q", buf)
	}
	if !strings.Contains(buf, "[ERROR") {
		t.Errorf("expected an ERROR level marker, got %q", buf)
	}
}

func TestSetTickLoopStartedFalseDropsTickIndexAgain(t *testing.T) {
	l := New("set1", "s1", time.Now())
	l.SetTickLoopStarted(true)
	l.SetCurrentTick(5)
	l.SetTickLoopStarted(false)
	l.Warn("done")
	buf := l.Buffer()
	if strings.Contains(buf, "tick=5") {
		t.Errorf("expected no tick index once the tick loop has been marked finished, got %q", buf)
	}
}

func TestConcurrentLoggingIsSafe(t *testing.T) {
	l := New("set1", "s1", time.Now())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Info("line %d", n)
		}(i)
	}
	wg.Wait()
	buf := l.Buffer()
	if strings.Count(buf, "[INFO") != 50 {
		t.Errorf("expected 50 INFO lines from concurrent writers, got %d", strings.Count(buf, "[INFO"))
	}
}

// Package livestats implements the bounded, non-blocking multi-producer,
// single-consumer telemetry queue of §4.11. Producers are scenario tick
// loops; the consumer is a display or, via Hub, a websocket dashboard.
// The non-blocking enqueue discipline (select/default, drop silently on a
// full channel) is the same pattern this module's websocket broadcast hub
// already uses for per-client fan-out, generalized here to a single shared
// queue instead of per-client channels.
package livestats

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/finiex/testingide/pkg/brokersim"
)

// Status is a scenario lifecycle marker (§4.11).
type Status string

const (
	StatusInitialized      Status = "INITIALIZED"
	StatusWarmupCoverage   Status = "WARMUP_COVERAGE"
	StatusWarmupDataTicks  Status = "WARMUP_DATA_TICKS"
	StatusWarmupDataBars   Status = "WARMUP_DATA_BARS"
	StatusWarmupTrader     Status = "WARMUP_TRADER"
	StatusInitProcess      Status = "INIT_PROCESS"
	StatusRunning          Status = "RUNNING"
	StatusCompleted        Status = "COMPLETED"
	StatusFinishedWithErr  Status = "FINISHED_WITH_ERROR"
)

// MessageType discriminates the two live message shapes.
type MessageType string

const (
	MessageStatus   MessageType = "status"
	MessageProgress MessageType = "progress"
)

// Message is one telemetry frame. Only the fields relevant to its Type are
// populated.
type Message struct {
	Type          MessageType
	ScenarioIndex int
	ScenarioName  string

	// status fields
	Status Status

	// progress fields
	TicksProcessed    int
	TotalTicks        int
	ProgressPercent   float64
	CurrentTickTime   time.Time
	PortfolioSnapshot *brokersim.Portfolio // optional
}

// Queue is a bounded non-blocking channel of Message. TryPut never blocks:
// on a full queue the message is dropped (§4.11, §7 Telemetry).
type Queue struct {
	ch chan Message
}

// NewQueue constructs a bounded queue of the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// TryPut attempts a non-blocking enqueue, reporting whether the message was
// accepted (false means it was dropped because the queue was full).
func (q *Queue) TryPut(msg Message) bool {
	select {
	case q.ch <- msg:
		return true
	default:
		return false
	}
}

// Messages exposes the receive side for the consumer.
func (q *Queue) Messages() <-chan Message { return q.ch }

// Coordinator tracks per-scenario status and throttles progress snapshots
// to at most once per update interval, matching §4.11's rules exactly:
// enqueue is try-put, a full queue silently drops the message, and a final
// update is always attempted regardless of the throttle.
type Coordinator struct {
	enabled        bool
	queue          *Queue
	updateInterval time.Duration
	limitersMu     sync.Mutex
	limiters       map[int]*rate.Limiter
}

// NewCoordinator builds a live-stats coordinator over an existing queue.
// Each scenario gets its own token-bucket limiter (burst 1, refilled once
// per updateInterval) so a scenario with very tight ticks doesn't spam the
// queue between throttled sends.
func NewCoordinator(enabled bool, queue *Queue, updateInterval time.Duration) *Coordinator {
	return &Coordinator{
		enabled:        enabled,
		queue:          queue,
		updateInterval: updateInterval,
		limiters:       make(map[int]*rate.Limiter),
	}
}

func (c *Coordinator) limiterFor(scenarioIndex int) *rate.Limiter {
	c.limitersMu.Lock()
	defer c.limitersMu.Unlock()
	l, ok := c.limiters[scenarioIndex]
	if !ok {
		every := c.updateInterval
		if every <= 0 {
			every = time.Millisecond
		}
		l = rate.NewLimiter(rate.Every(every), 1)
		c.limiters[scenarioIndex] = l
	}
	return l
}

// BroadcastStatus enqueues a status transition for one scenario. A full
// queue silently drops the update; status broadcasts are not throttled by
// interval, only by the queue's capacity.
func (c *Coordinator) BroadcastStatus(scenarioIndex int, scenarioName string, status Status) {
	if !c.enabled {
		return
	}
	c.queue.TryPut(Message{
		Type:          MessageStatus,
		ScenarioIndex: scenarioIndex,
		ScenarioName:  scenarioName,
		Status:        status,
	})
}

// MaybeBroadcastProgress enqueues a progress snapshot for a scenario if at
// least updateInterval has elapsed since the last one sent for that
// scenario. Returns true when the throttle allowed an enqueue attempt, even
// if the message was then dropped because the queue was full.
func (c *Coordinator) MaybeBroadcastProgress(scenarioIndex int, scenarioName string, ticksProcessed, totalTicks int, tickTime time.Time, snapshot *brokersim.Portfolio, now time.Time) bool {
	if !c.enabled {
		return false
	}
	if !c.limiterFor(scenarioIndex).AllowN(now, 1) {
		return false
	}
	percent := 0.0
	if totalTicks > 0 {
		percent = float64(ticksProcessed) / float64(totalTicks) * 100.0
	}
	c.queue.TryPut(Message{
		Type:              MessageProgress,
		ScenarioIndex:     scenarioIndex,
		ScenarioName:      scenarioName,
		TicksProcessed:    ticksProcessed,
		TotalTicks:        totalTicks,
		ProgressPercent:   percent,
		CurrentTickTime:   tickTime,
		PortfolioSnapshot: snapshot,
	})
	return true
}

// FinalUpdate always attempts one last status broadcast before a
// scenario's process exits, bypassing the interval throttle (but still
// subject to the queue's non-blocking capacity limit).
func (c *Coordinator) FinalUpdate(scenarioIndex int, scenarioName string, status Status) {
	c.BroadcastStatus(scenarioIndex, scenarioName, status)
}

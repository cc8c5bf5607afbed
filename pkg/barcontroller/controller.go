// Package barcontroller incrementally aggregates ticks into multi-timeframe
// OHLC bars and maintains each timeframe's rolling history, synthesizing
// gap-fill bars across weekends/holidays so the history is deterministic
// regardless of data gaps.
package barcontroller

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finiex/testingide/pkg/market"
	"github.com/finiex/testingide/pkg/timeframe"
)

// Controller renders bars for one symbol across a fixed set of required
// timeframes. It is owned exclusively by one scenario's tick loop.
type Controller struct {
	symbol      string
	timeframes  []timeframe.Name
	current     map[timeframe.Name]*market.Bar
	history     map[timeframe.Name][]market.Bar
	historyCap  int // 0 means unbounded
}

// New builds a controller for symbol over the given timeframes. historyCap
// bounds each timeframe's retained history (ring-buffered); 0 keeps every
// bar for the run.
func New(symbol string, tfs []timeframe.Name, historyCap int) *Controller {
	return &Controller{
		symbol:     symbol,
		timeframes: tfs,
		current:    make(map[timeframe.Name]*market.Bar),
		history:    make(map[timeframe.Name][]market.Bar),
		historyCap: historyCap,
	}
}

// SeedWarmup injects pre-rendered historical bars (already marked
// complete) ahead of the first tick. Bars must be sorted ascending by
// timestamp and belong to tf.
func (c *Controller) SeedWarmup(tf timeframe.Name, bars []market.Bar) {
	for i := range bars {
		bars[i].Complete = true
	}
	c.history[tf] = append(c.history[tf], bars...)
	c.trim(tf)
}

// ProcessTick folds one tick into every required timeframe's current bar,
// returning a snapshot of each timeframe's in-progress bar (§4.5).
func (c *Controller) ProcessTick(tick market.Tick) (map[timeframe.Name]market.Bar, error) {
	if tick.Symbol != c.symbol {
		return nil, fmt.Errorf("barcontroller: tick symbol %q does not match controller symbol %q", tick.Symbol, c.symbol)
	}
	mid := tick.Mid()
	snapshot := make(map[timeframe.Name]market.Bar, len(c.timeframes))

	for _, tf := range c.timeframes {
		barOpen, err := timeframe.AlignBarOpen(tick.Timestamp, tf)
		if err != nil {
			return nil, err
		}

		cur := c.current[tf]
		if cur == nil || barOpen.After(cur.Timestamp) {
			if cur != nil {
				prevOpen, lastClose := cur.Timestamp, cur.Close
				cur.Complete = true
				c.appendHistory(tf, *cur)
				if err := c.synthesizeGap(tf, prevOpen, barOpen, lastClose); err != nil {
					return nil, err
				}
			}
			next := &market.Bar{
				Symbol:    c.symbol,
				Timeframe: tf,
				Timestamp: barOpen,
				Open:      mid,
				High:      mid,
				Low:       mid,
				Close:     mid,
				Volume:    tick.Volume,
				TickCount: 1,
				Type:      market.BarReal,
			}
			c.current[tf] = next
			snapshot[tf] = *next
			continue
		}

		cur.UpdateWithTick(mid, tick.Volume)
		snapshot[tf] = *cur
	}
	return snapshot, nil
}

// synthesizeGap fills every full bar interval strictly between prevOpen and
// nextOpen (exclusive) with a flat synthetic bar at lastClose. This is what
// carries bar history deterministically across weekend/holiday gaps (§4.5).
func (c *Controller) synthesizeGap(tf timeframe.Name, prevOpen, nextOpen time.Time, lastClose decimal.Decimal) error {
	d, err := timeframe.Duration(tf)
	if err != nil {
		return err
	}
	for open := prevOpen.Add(d); open.Before(nextOpen); open = open.Add(d) {
		c.appendHistory(tf, market.Bar{
			Symbol:    c.symbol,
			Timeframe: tf,
			Timestamp: open,
			Open:      lastClose,
			High:      lastClose,
			Low:       lastClose,
			Close:     lastClose,
			Volume:    decimal.Zero,
			TickCount: 0,
			Complete:  true,
			Type:      market.BarSynthetic,
		})
	}
	return nil
}

// History returns the full rolling bar history for tf, oldest first. The
// returned slice is a copy; callers must not mutate it.
func (c *Controller) History(tf timeframe.Name) []market.Bar {
	src := c.history[tf]
	out := make([]market.Bar, len(src))
	copy(out, src)
	return out
}

func (c *Controller) appendHistory(tf timeframe.Name, bar market.Bar) {
	c.history[tf] = append(c.history[tf], bar)
	c.trim(tf)
}

func (c *Controller) trim(tf timeframe.Name) {
	if c.historyCap <= 0 {
		return
	}
	h := c.history[tf]
	if len(h) > c.historyCap {
		c.history[tf] = h[len(h)-c.historyCap:]
	}
}

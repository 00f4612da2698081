// Package dispatch drains decoded payloads once per tick, classifies each one
// as a direction or a caption and routes it to the presenters.
package dispatch

import (
	"context"
	"time"

	"github.com/1ureka/soundsight/internal/metrics"
	"github.com/1ureka/soundsight/internal/util"
)

// Source yields every payload queued since the previous call, oldest first,
// without blocking.
type Source interface {
	Drain() []string
}

// Dispatcher is single-threaded: Tick (or Run) must be driven from one
// goroutine. It is the only writer of its Gate.
type Dispatcher struct {
	src       Source
	presenter Presenter
	gate      *Gate
}

func New(src Source, p Presenter) *Dispatcher {
	if p == nil {
		p = PresenterFuncs{}
	}
	return &Dispatcher{
		src:       src,
		presenter: p,
		gate:      newGate(),
	}
}

// Gate returns the read accessor for the current direction.
func (d *Dispatcher) Gate() *Gate { return d.gate }

// Tick drains the source once and dispatches what it got, in order. Payloads
// arriving during the tick wait for the next one. Returns the number of
// payloads handled.
func (d *Dispatcher) Tick() int {
	payloads := d.src.Drain()
	for _, p := range payloads {
		d.handle(p)
	}
	if len(payloads) > 0 {
		metrics.RecordBatch(len(payloads))
	}
	return len(payloads)
}

func (d *Dispatcher) handle(payload string) {
	if dir, ok := ParseDirection(payload); ok {
		d.gate.set(dir)
		metrics.RecordDirection(dir.String())
		util.LogDebug("direction set to %s", dir)
		d.presenter.OnDirectionChanged(dir)
		return
	}

	if !d.gate.Open() {
		metrics.RecordCaption(false)
		util.LogDebug("caption skipped, direction is %s: %q", d.gate.Current(), payload)
		return
	}
	metrics.RecordCaption(true)
	d.presenter.OnCaption(payload)
}

// Run ticks every interval until ctx is cancelled, then runs one last tick so
// payloads already queued are not left behind.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Tick()
		case <-ctx.Done():
			d.Tick()
			return
		}
	}
}

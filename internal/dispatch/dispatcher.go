// Package dispatch coalesces bursts of light commands into a bounded rate of
// outbound sends.
//
// Producers call Enqueue from any goroutine. Each call replaces the pending
// command for its kind, so only the latest intent per kind survives until the
// next cycle. A cycle runs at most once per interval: it stops its own timer,
// swaps out the pending map under the lock, hands every command to the Sender
// on its own goroutine and then re-arms the timer. Slow cycles push the next
// one back instead of overlapping it.
//
// Sends are fire-and-forget. Their errors are dropped here; the Sender owns
// timeouts and logs its own failures.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hue-controller/internal/core"
	"hue-controller/internal/log"
)

// DefaultInterval is the minimum spacing between two cycles.
const DefaultInterval = 500 * time.Millisecond

// ErrInvalidKind is returned by Enqueue for a kind outside core.Kinds.
var ErrInvalidKind = errors.New("invalid command kind")

// Sender delivers a command to a set of lights.
type Sender interface {
	Send(ctx context.Context, cmd core.LightCommand, targets []string) error
}

// SenderFunc adapts an ordinary function to the Sender interface.
type SenderFunc func(ctx context.Context, cmd core.LightCommand, targets []string) error

// Send calls f(ctx, cmd, targets).
func (f SenderFunc) Send(ctx context.Context, cmd core.LightCommand, targets []string) error {
	return f(ctx, cmd, targets)
}

// Dispatcher holds at most one pending command per kind and flushes them
// periodically while running.
type Dispatcher struct {
	sender   Sender
	targets  []string
	interval time.Duration

	mu      sync.Mutex
	pending map[core.Kind]core.LightCommand
	running bool
	gen     uint64 // bumped on every Start so a stale cycle cannot re-arm
	timer   *time.Timer
}

// New creates a stopped dispatcher. A non-positive interval selects DefaultInterval.
func New(sender Sender, targets []string, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dispatcher{
		sender:   sender,
		targets:  append([]string(nil), targets...),
		interval: interval,
		pending:  make(map[core.Kind]core.LightCommand),
	}
}

// Start begins the periodic cycle. Calling it while running does nothing.
// Commands enqueued while stopped go out with the first cycle.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	d.gen++
	d.arm(d.gen)
	log.WithComponent("dispatch").Debugf("Started with interval %s", d.interval)
}

// Stop cancels future cycles and discards anything still pending. Sends that
// were already handed to the Sender are not cancelled. Safe in any state.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	dropped := len(d.pending)
	d.pending = make(map[core.Kind]core.LightCommand)

	if d.running {
		d.running = false
		log.WithComponent("dispatch").Debugf("Stopped, discarded %d pending command(s)", dropped)
	}
}

// Enqueue replaces the pending command for kind with cmd. It never blocks on
// the Sender and only fails for an unknown kind.
func (d *Dispatcher) Enqueue(kind core.Kind, cmd core.LightCommand) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	d.mu.Lock()
	d.pending[kind] = cmd
	d.mu.Unlock()
	return nil
}

// Running reports whether the cycle is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Pending returns the number of kinds waiting for the next cycle.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// arm schedules the next cycle. d.mu must be held.
func (d *Dispatcher) arm(gen uint64) {
	d.timer = time.AfterFunc(d.interval, func() { d.cycle(gen) })
}

// cycle is one drain-and-send pass.
func (d *Dispatcher) cycle(gen uint64) {
	batch, ok := d.take(gen)
	if !ok {
		return
	}

	if len(batch) > 0 {
		log.WithComponent("dispatch").Debugf("Dispatching %d command(s)", len(batch))
	}
	for kind, cmd := range batch {
		go d.send(kind, cmd)
	}

	d.mu.Lock()
	if d.running && d.gen == gen {
		d.arm(gen)
	}
	d.mu.Unlock()
}

// take suspends the timer and atomically swaps out the pending map. It
// reports false when the dispatcher was stopped or restarted since gen.
func (d *Dispatcher) take(gen uint64) (map[core.Kind]core.LightCommand, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || d.gen != gen {
		return nil, false
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	batch := d.pending
	d.pending = make(map[core.Kind]core.LightCommand, len(batch))
	return batch, true
}

func (d *Dispatcher) send(kind core.Kind, cmd core.LightCommand) {
	log.WithComponent("dispatch").Debugf("Send %s %s -> %v", kind, cmd, d.targets)
	// Result dropped: the sender logs its own failures and nothing is retried.
	_ = d.sender.Send(context.Background(), cmd, d.targets)
}

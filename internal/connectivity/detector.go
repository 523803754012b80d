// Package connectivity tracks whether the attendance server looks reachable.
//
// The state is a hint for choosing between submitting and exporting. It
// never blocks a submission attempt.
package connectivity

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// State is the reachability as last observed.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Signal is the read side handed to consumers.
type Signal interface {
	Online() bool
}

// Detector holds the process-wide state. Set has a single writer (the
// prober or a test); any number of goroutines may read or subscribe.
type Detector struct {
	online atomic.Bool

	mu   sync.Mutex
	subs []chan State
}

// NewDetector starts in the given state.
func NewDetector(initial State) *Detector {
	d := &Detector{}
	d.online.Store(initial == Online)
	return d
}

// Online reports the current state.
func (d *Detector) Online() bool { return d.online.Load() }

// State returns the current state.
func (d *Detector) State() State {
	if d.Online() {
		return Online
	}
	return Offline
}

// Set records an observation and notifies subscribers on a transition.
func (d *Detector) Set(s State) {
	if d.online.Swap(s == Online) == (s == Online) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		// drop the stale value so the latest transition is always delivered
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Subscribe returns a channel that receives the newest state after each
// transition. Slow readers only see the latest one.
func (d *Detector) Subscribe() <-chan State {
	ch := make(chan State, 1)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

// Checker probes the server.
type Checker interface {
	Health(ctx context.Context) error
}

// Prober feeds a Detector from periodic health checks.
type Prober struct {
	detector *Detector
	check    Checker
	interval time.Duration
	timeout  time.Duration
}

// NewProber probes every interval, each check bounded by timeout.
func NewProber(d *Detector, check Checker, interval, timeout time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Prober{detector: d, check: check, interval: interval, timeout: timeout}
}

// Probe runs one check and records the result.
func (p *Prober) Probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	state := Online
	if err := p.check.Health(ctx); err != nil {
		state = Offline
	}
	if prev := p.detector.State(); prev != state {
		log.Printf("connectivity: %s -> %s", prev, state)
	}
	p.detector.Set(state)
	return state
}

// Run probes immediately, then on every tick until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	p.Probe(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}

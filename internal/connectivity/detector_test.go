package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorTransitions(t *testing.T) {
	d := NewDetector(Offline)
	assert.False(t, d.Online())
	sub := d.Subscribe()

	d.Set(Offline)
	select {
	case s := <-sub:
		t.Fatalf("no transition expected, got %s", s)
	default:
	}

	d.Set(Online)
	assert.True(t, d.Online())
	assert.Equal(t, Online, <-sub)

	// a slow reader only sees the newest state
	d.Set(Offline)
	d.Set(Online)
	d.Set(Offline)
	assert.Equal(t, Offline, <-sub)
	assert.Equal(t, Offline, d.State())
}

type fakeChecker struct {
	healthy atomic.Bool
}

func (f *fakeChecker) Health(ctx context.Context) error {
	if f.healthy.Load() {
		return nil
	}
	return errors.New("unreachable")
}

func TestProberDrivesDetector(t *testing.T) {
	d := NewDetector(Offline)
	check := &fakeChecker{}
	p := NewProber(d, check, 10*time.Millisecond, time.Second)

	assert.Equal(t, Offline, p.Probe(context.Background()))
	check.healthy.Store(true)
	assert.Equal(t, Online, p.Probe(context.Background()))
	assert.True(t, d.Online())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	check.healthy.Store(false)
	require.Eventually(t, func() bool { return !d.Online() }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

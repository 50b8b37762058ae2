package chatclient

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func counter() (*atomic.Int32, PollFunc) {
	var n atomic.Int32
	return &n, func(context.Context) error {
		n.Add(1)
		return nil
	}
}

func TestPoller_StartReplacesExistingTimer(t *testing.T) {
	p := NewPoller(10*time.Millisecond, zap.NewNop())
	defer p.StopAll()

	first, fnFirst := counter()
	second, fnSecond := counter()
	p.Start("conv", fnFirst)
	assert.Eventually(t, func() bool { return first.Load() > 0 }, time.Second, 5*time.Millisecond)

	p.Start("conv", fnSecond)
	stopped := first.Load()
	assert.Eventually(t, func() bool { return second.Load() > 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, stopped, first.Load())
}

func TestPoller_HiddenSuspendsAndVisibleForces(t *testing.T) {
	p := NewPoller(time.Hour, zap.NewNop())
	defer p.StopAll()

	n, fn := counter()
	p.Start("conv", fn)
	p.SetVisible(false)
	assert.False(t, p.Visible())

	// A hidden client only polls when explicitly triggered.
	p.SetVisible(false)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())

	p.SetVisible(true)
	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Already visible: no extra trigger.
	p.SetVisible(true)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

func TestPoller_TicksSkippedWhileHidden(t *testing.T) {
	p := NewPoller(5*time.Millisecond, zap.NewNop())
	defer p.StopAll()

	p.SetVisible(false)
	n, fn := counter()
	p.Start("conv", fn)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())
}

func TestPoller_ErrorsAreSilentAndPollingContinues(t *testing.T) {
	p := NewPoller(5*time.Millisecond, zap.NewNop())
	defer p.StopAll()

	var n atomic.Int32
	p.Start("conv", func(context.Context) error {
		n.Add(1)
		return errOffline
	})
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestPoller_StopAndTrigger(t *testing.T) {
	p := NewPoller(time.Hour, zap.NewNop())
	n, fn := counter()
	p.Start("conv", fn)
	assert.True(t, p.Active("conv"))

	p.Trigger("conv")
	assert.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)

	p.Stop("conv")
	assert.False(t, p.Active("conv"))
	p.Trigger("conv")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), n.Load())
}

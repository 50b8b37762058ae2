package chatclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// PollFunc fetches fresh server state for one resource.
type PollFunc func(ctx context.Context) error

type pollTask struct {
	cancel context.CancelFunc
	force  chan struct{}
	done   chan struct{}
}

// Poller runs at most one reconciliation timer per resource key. Polls are skipped while
// the client is hidden and fire immediately when it becomes visible again. Poll errors
// are logged at debug level and otherwise ignored.
type Poller struct {
	interval time.Duration
	log      *zap.Logger
	visible  atomic.Bool

	mu    sync.Mutex
	tasks map[string]*pollTask
}

func NewPoller(interval time.Duration, log *zap.Logger) *Poller {
	p := &Poller{interval: interval, log: log, tasks: make(map[string]*pollTask)}
	p.visible.Store(true)
	return p
}

// Start cancels any timer already running for key and starts a new one.
func (p *Poller) Start(key string, fn PollFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &pollTask{cancel: cancel, force: make(chan struct{}, 1), done: make(chan struct{})}

	p.mu.Lock()
	previous := p.tasks[key]
	p.tasks[key] = task
	p.mu.Unlock()

	if previous != nil {
		previous.cancel()
		<-previous.done
	}
	go p.loop(ctx, key, fn, task)
}

func (p *Poller) loop(ctx context.Context, key string, fn PollFunc, task *pollTask) {
	defer close(task.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	run := func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			p.log.Debug("poll failed", zap.String("resource", key), zap.Error(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.visible.Load() {
				run()
			}
		case <-task.force:
			run()
		}
	}
}

// Stop cancels the timer for key and waits for an in-flight poll to return.
func (p *Poller) Stop(key string) {
	p.mu.Lock()
	task := p.tasks[key]
	delete(p.tasks, key)
	p.mu.Unlock()
	if task != nil {
		task.cancel()
		<-task.done
	}
}

func (p *Poller) StopAll() {
	p.mu.Lock()
	tasks := p.tasks
	p.tasks = make(map[string]*pollTask)
	p.mu.Unlock()
	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}

// Trigger runs the poll for key as soon as possible. Repeated triggers coalesce.
func (p *Poller) Trigger(key string) {
	p.mu.Lock()
	task := p.tasks[key]
	p.mu.Unlock()
	if task == nil {
		return
	}
	select {
	case task.force <- struct{}{}:
	default:
	}
}

// SetVisible suspends polling when false. Becoming visible triggers every resource.
func (p *Poller) SetVisible(visible bool) {
	was := p.visible.Swap(visible)
	if !visible || was {
		return
	}
	p.mu.Lock()
	keys := make([]string, 0, len(p.tasks))
	for key := range p.tasks {
		keys = append(keys, key)
	}
	p.mu.Unlock()
	for _, key := range keys {
		p.Trigger(key)
	}
}

func (p *Poller) Visible() bool {
	return p.visible.Load()
}

// Active reports whether a timer is running for key.
func (p *Poller) Active(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[key]
	return ok
}

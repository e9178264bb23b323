package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mikey/image-mod-relay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ErrShutdown is returned when work is added after Shutdown
var ErrShutdown = errors.New("scheduler is shut down")

// Scheduler runs work on a fixed number of workers. Work items sharing a
// key run one at a time in the order they were added; different keys run
// in parallel.
type Scheduler struct {
	maxConcurrency int

	feeder chan *task
	out    chan struct{}

	lk     sync.Mutex
	active map[string][]*task
	closed bool

	ident string

	// metrics
	itemsAdded     prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsFailed    prometheus.Counter
	workersActive  prometheus.Gauge

	logger *zap.Logger
}

type task struct {
	key     string
	do      func(context.Context) error
	control string
}

// New starts a scheduler with maxC workers
func New(maxC int, ident string, logger *zap.Logger) *Scheduler {
	if maxC < 1 {
		maxC = 1
	}
	p := &Scheduler{
		maxConcurrency: maxC,

		feeder: make(chan *task),
		active: make(map[string][]*task),
		out:    make(chan struct{}),

		ident: ident,

		itemsAdded:     metrics.WorkItemsAdded.WithLabelValues(ident),
		itemsProcessed: metrics.WorkItemsProcessed.WithLabelValues(ident),
		itemsFailed:    metrics.WorkItemsFailed.WithLabelValues(ident),
		workersActive:  metrics.WorkersActive.WithLabelValues(ident),

		logger: logger.With(zap.String("system", "scheduler"), zap.String("pool", ident)),
	}

	for i := 0; i < maxC; i++ {
		go p.worker()
	}

	p.workersActive.Set(float64(maxC))

	return p
}

// AddWork queues do under key. It only blocks while every worker is busy
// and no earlier item with the same key is pending.
func (p *Scheduler) AddWork(ctx context.Context, key string, do func(context.Context) error) error {
	t := &task{
		key: key,
		do:  do,
	}
	p.lk.Lock()
	if p.closed {
		p.lk.Unlock()
		return ErrShutdown
	}
	p.itemsAdded.Inc()

	a, ok := p.active[key]
	if ok {
		p.active[key] = append(a, t)
		p.lk.Unlock()
		return nil
	}

	p.active[key] = []*task{}
	p.lk.Unlock()

	select {
	case p.feeder <- t:
		return nil
	case <-ctx.Done():
		p.lk.Lock()
		// items queued behind this one are dropped with it
		delete(p.active, key)
		p.lk.Unlock()
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for queued work to finish.
// Producers must be stopped first.
func (p *Scheduler) Shutdown() {
	p.logger.Info("Shutting down scheduler")

	p.lk.Lock()
	if p.closed {
		p.lk.Unlock()
		return
	}
	p.closed = true
	p.lk.Unlock()

	for i := 0; i < p.maxConcurrency; i++ {
		p.feeder <- &task{
			control: "stop",
		}
	}

	close(p.feeder)

	for i := 0; i < p.maxConcurrency; i++ {
		<-p.out
	}
	p.workersActive.Set(0)

	p.logger.Info("Scheduler shutdown complete")
}

func (p *Scheduler) worker() {
	for work := range p.feeder {
		for work != nil {
			if work.control == "stop" {
				p.out <- struct{}{}
				return
			}

			if err := p.run(work); err != nil {
				p.itemsFailed.Inc()
				p.logger.Error("Work item failed", zap.String("key", work.key), zap.Error(err))
			}
			p.itemsProcessed.Inc()

			p.lk.Lock()
			rem, ok := p.active[work.key]
			if !ok {
				p.logger.Error("Missing active entry for a key being processed", zap.String("key", work.key))
			}

			if len(rem) == 0 {
				delete(p.active, work.key)
				work = nil
			} else {
				work = rem[0]
				p.active[work.key] = rem[1:]
			}
			p.lk.Unlock()
		}
	}
}

func (p *Scheduler) run(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in work item: %v", r)
		}
	}()
	return t.do(context.Background())
}

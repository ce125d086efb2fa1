// Package dispatch is the non-blocking boundary between the ingestion edge
// and the signal bus. Handlers enqueue and return; a background drain task
// publishes. When the queue is full the signal is dropped and counted, so
// loss is observable instead of implicit.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type PublishFunc func(ctx context.Context, key string, payload any) error

type item struct {
	key     string
	payload any
}

type Queue struct {
	ch      chan item
	publish PublishFunc
	log     *zap.Logger

	dropped   atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewQueue(size int, publish PublishFunc, log *zap.Logger) *Queue {
	return &Queue{
		ch:      make(chan item, size),
		publish: publish,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Start runs the drain loop until ctx is cancelled and the queue is closed
// and empty.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for it := range q.ch {
			if err := q.publish(ctx, it.key, it.payload); err != nil {
				q.failed.Add(1)
				q.log.Warn("dispatch publish failed", zap.String("key", it.key), zap.Error(err))
				continue
			}
			q.published.Add(1)
		}
	}()
}

// Enqueue never blocks. It reports false when the signal was dropped,
// either because the queue is full or intake has been closed.
func (q *Queue) Enqueue(key string, payload any) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return false
	}
	select {
	case q.ch <- item{key: key, payload: payload}:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Close stops intake and waits for the drain loop to flush what is queued.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}

type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
}

func (q *Queue) Stats() Stats {
	return Stats{
		Published: q.published.Load(),
		Dropped:   q.dropped.Load(),
		Failed:    q.failed.Load(),
		Queued:    len(q.ch),
	}
}

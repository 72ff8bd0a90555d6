package mqtt

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/sweeney/range-sensor/internal/logic"
)

// DefaultQueue is the Async queue depth.
const DefaultQueue = 64

// Async decouples the display loop from the broker. Observe never blocks:
// when the queue is full the new reading is dropped, the same policy as the
// sample channel.
type Async struct {
	pub     Publisher
	queue   chan logic.Reading
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewAsync wraps pub with a queue of the given depth (DefaultQueue if <= 0).
func NewAsync(pub Publisher, depth int) *Async {
	if depth <= 0 {
		depth = DefaultQueue
	}
	return &Async{pub: pub, queue: make(chan logic.Reading, depth)}
}

// Observe queues r for publishing. It is a pipeline observer.
func (a *Async) Observe(r logic.Reading) {
	select {
	case a.queue <- r:
	default:
		if a.dropped.Add(1) == 1 {
			log.Printf("mqtt: publish queue full, dropping readings")
		}
	}
}

// Run publishes queued readings until ctx is cancelled. Whatever is still
// queued at that point is flushed before returning.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case r := <-a.queue:
			a.send(r)
		case <-ctx.Done():
			for {
				select {
				case r := <-a.queue:
					a.send(r)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Async) send(r logic.Reading) {
	if err := a.pub.Publish(r); err != nil {
		// Log the first failure of a streak only.
		if a.failed.Add(1) == 1 {
			log.Printf("mqtt: publish failed: %v", err)
		}
		return
	}
	if a.failed.Swap(0) > 0 {
		log.Printf("mqtt: publishing again")
	}
}

// Dropped returns how many readings were discarded on a full queue.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

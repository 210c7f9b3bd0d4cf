package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-settlement/internal/domain"
	"auction-settlement/internal/events"
	"auction-settlement/internal/metrics"
	"auction-settlement/pkg/logger"

	"github.com/viney-shih/goroutines"
)

// EventHandler processes one decoded inbound event.
type EventHandler interface {
	Handle(ctx context.Context, event domain.Event)
}

// Dispatcher decodes bus messages on the receiving goroutine and runs the
// handler on a bounded worker pool, so events are processed concurrently.
type Dispatcher struct {
	decoder *events.Decoder
	handler EventHandler
	pool    *goroutines.Pool
	metrics metrics.Service
	log     logger.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(decoder *events.Decoder, handler EventHandler, workers, queueLength int, m metrics.Service, log logger.Logger) *Dispatcher {
	// The pool only grows past its pre-allocated workers once the queue is
	// full, so every worker is started up front.
	return &Dispatcher{
		decoder: decoder,
		handler: handler,
		pool:    goroutines.NewPool(workers, goroutines.WithTaskQueueLength(queueLength), goroutines.WithPreAllocWorkers(workers)),
		metrics: m,
		log:     log,
	}
}

// HandleMessage satisfies domain.MessageHandler.
func (d *Dispatcher) HandleMessage(ctx context.Context, channel string, payload []byte) {
	event, err := d.decoder.Decode(payload)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, events.ErrUnknownEventType) {
			reason = "unknown_type"
		}
		d.metrics.BumpSum("events.dropped", 1, "reason", reason, "channel", channel)
		d.log.Warn("Dropping inbound message", "channel", channel, "reason", reason, "error", err)
		return
	}

	// Queued events outlive the subscription: Close drains them after the
	// consumer's context is cancelled, and their notifications must still go out.
	handleCtx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	err = d.pool.Schedule(func() {
		defer d.wg.Done()
		d.handler.Handle(handleCtx, event)
	})
	if err != nil {
		d.wg.Done()
		d.metrics.BumpSum("events.dropped", 1, "reason", "pool", "channel", channel)
		d.log.Error("Failed to schedule event", "channel", channel, "type", string(event.Type()), "error", err)
	}
}

// Close waits for scheduled events to finish, at most timeout, and releases the pool.
func (d *Dispatcher) Close(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		d.log.Warn("Timed out waiting for in-flight events")
	}
	d.pool.Release()
}

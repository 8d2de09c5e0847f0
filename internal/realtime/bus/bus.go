package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventCrawlStarted  EventType = "crawl.started"
	EventCrawlFinished EventType = "crawl.finished"
	EventCrawlFailed   EventType = "crawl.failed"
	EventCrawlSkipped  EventType = "crawl.skipped"
)

// Event describes a crawl run transition.
type Event struct {
	Type    EventType      `json:"type"`
	RunID   string         `json:"run_id"`
	Trigger string         `json:"trigger"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	// StartForwarder delivers every published event to onEvent until ctx ends.
	StartForwarder(ctx context.Context, onEvent func(ev Event)) error
	Close() error
}

// memoryBus fans events out in-process. Slow subscribers drop events.
type memoryBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewMemoryBus() Bus {
	return &memoryBus{subs: map[int]chan Event{}}
}

func (b *memoryBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onEvent func(ev Event)) error {
	ch := make(chan Event, 64)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				onEvent(ev)
			}
		}
	}()
	return nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

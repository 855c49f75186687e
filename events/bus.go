// Package events carries typed intents between the voice layer and the UI.
// The voice layer publishes (navigation intents, click animation requests);
// the UI owns every real side effect.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Perceptus-Labs/voicenav-go-sdk/models"
)

// Bus is an in-process observer list for one message type.
type Bus[T any] struct {
	name      string
	mu        sync.RWMutex
	nextID    int
	listeners map[int]func(T)
	order     []int
	logger    *zap.Logger
}

func NewBus[T any](name string, logger *zap.Logger) *Bus[T] {
	if logger == nil {
		logger = zap.L()
	}
	return &Bus[T]{
		name:      name,
		listeners: make(map[int]func(T)),
		logger:    logger.With(zap.String("bus", name)),
	}
}

// Subscribe registers fn and returns a function removing it. The returned
// function is safe to call more than once.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish delivers msg to every listener in subscription order. A panicking
// listener is logged and skipped; Publish itself never fails.
func (b *Bus[T]) Publish(msg T) {
	b.mu.RLock()
	targets := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		b.deliver(fn, msg)
	}
}

func (b *Bus[T]) deliver(fn func(T), msg T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Listener panicked", zap.Any("panic", r))
		}
	}()
	fn(msg)
}

// Len returns the number of active listeners.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Hub groups the buses a voice session needs.
type Hub struct {
	Navigation *Bus[models.NavigationIntent]
	Clicks     *Bus[models.ClickAnimationRequest]
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		Navigation: NewBus[models.NavigationIntent]("agent-navigate", logger),
		Clicks:     NewBus[models.ClickAnimationRequest]("agent-click-animation", logger),
	}
}

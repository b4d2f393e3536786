package event

import (
	"sync"
)

// Publisher is the outbound notification sink handed to the ledger services.
type Publisher interface {
	Publish(evt Event)
}

type Bus struct {
	handlers sync.Map
	mu       sync.Mutex
	wg       sync.WaitGroup
}

func NewBus() *Bus {
	return &Bus{}
}

var _ Publisher = (*Bus)(nil)

// Subscribe registers handler for one event type. An empty type subscribes to every event.
func (b *Bus) Subscribe(eventType Type, handler func(evt Event)) {
	if b == nil || handler == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := make([]func(evt Event), 0, 1)
	if current, ok := b.handlers.Load(eventType); ok {
		if casted, valid := current.([]func(evt Event)); valid {
			handlers = append(handlers, casted...)
		}
	}
	handlers = append(handlers, handler)
	b.handlers.Store(eventType, handlers)
}

// Publish fans evt out to its subscribers on separate goroutines.
func (b *Bus) Publish(evt Event) {
	if b == nil || evt == nil {
		return
	}

	for _, key := range []Type{evt.EventType(), ""} {
		current, ok := b.handlers.Load(key)
		if !ok {
			continue
		}
		handlers, ok := current.([]func(evt Event))
		if !ok {
			continue
		}
		for _, handler := range handlers {
			if handler == nil {
				continue
			}
			b.wg.Add(1)
			go func(h func(evt Event)) {
				defer b.wg.Done()
				h(evt)
			}(handler)
		}
	}
}

// Wait blocks until every handler started so far has returned.
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

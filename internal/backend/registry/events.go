package registry

import "sync"

type EventKind string

const (
	EventImagesChanged     EventKind = "images_changed"
	EventCategoriesChanged EventKind = "categories_changed"
	EventWorkspacesChanged EventKind = "workspaces_changed"
)

type Event struct {
	Kind EventKind
	IDs  []string
}

// Broker is a minimal in-process pub/sub link between registries. Publishing
// is synchronous; subscribers must not block. Subscribe returns the matching
// unsubscribe so teardown is explicit.
type Broker struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(Event)
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int]func(Event))}
}

func (b *Broker) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

func (b *Broker) Publish(event Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

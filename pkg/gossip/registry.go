package gossip

import (
	"sync"

	"go.uber.org/zap"

	"github.com/swarmnet/swarm/pkg/log"
)

// Handler receives messages accepted for local delivery.
//
// Handlers are invoked synchronously from Publish and Receive so must not
// block. A panicking handler is recovered at the delivery site and does not
// prevent delivery to later handlers.
type Handler func(m *Message)

type subscription struct {
	id      uint64
	handler Handler
}

// registry is the type-keyed subscription table for local delivery.
//
// Handlers subscribe to a message type, or to Wildcard to receive every
// type. Delivery makes two passes, exact type then wildcard, each in
// subscription order.
type registry struct {
	nextID   uint64
	handlers map[string][]subscription

	// mu protects the above fields.
	mu sync.Mutex

	logger log.Logger
}

func newRegistry(logger log.Logger) *registry {
	return &registry{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for the given message type (or Wildcard)
// and returns a function that removes the subscription.
func (r *registry) Subscribe(msgType string, handler Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.handlers[msgType] = append(r.handlers[msgType], subscription{
		id:      id,
		handler: handler,
	})

	return func() {
		r.unsubscribe(msgType, id)
	}
}

func (r *registry) unsubscribe(msgType string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[msgType]
	for i, sub := range subs {
		if sub.id == id {
			r.handlers[msgType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Deliver invokes the handlers matching the message type, then the wildcard
// handlers.
func (r *registry) Deliver(m *Message) {
	r.mu.Lock()
	matched := make([]subscription, 0, len(r.handlers[m.Type])+len(r.handlers[Wildcard]))
	matched = append(matched, r.handlers[m.Type]...)
	if m.Type != Wildcard {
		matched = append(matched, r.handlers[Wildcard]...)
	}
	r.mu.Unlock()

	for _, sub := range matched {
		r.deliver(sub, m)
	}
}

func (r *registry) deliver(sub subscription, m *Message) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn(
				"subscriber panic",
				zap.String("message-id", m.ID),
				zap.String("type", m.Type),
				zap.Any("panic", p),
			)
		}
	}()
	sub.handler(m)
}

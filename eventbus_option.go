package concrete

import "github.com/ZanzyTHEbar/concrete-go/internal/eventbus"

// WithEventBus sets the event bus lifecycle events are published on.
// The runtime does not close a bus it did not create.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(r *Runtime) {
		r.eventBus = bus
		r.config.EnableEventBus = bus != nil
	}
}

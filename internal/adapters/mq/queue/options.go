package queue

// Option applies a configuration option to an InMemoryQueue.
type Option func(*options)

type options struct {
	capacity int
	name     string
}

// WithCapacity sets the maximum number of queued items.
func WithCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

// WithName labels rejections in metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

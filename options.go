package jobq

import "time"

type options struct {
	id         string
	delay      time.Duration
	maxRetries int

	// internal flags for logic
	maxRetriesSet bool
}

// Option is a function that configures job behavior during Enqueue.
type Option func(*options)

// JobID sets a custom ID for the job. If not provided, a random UUID will be generated.
func JobID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// Delay makes the job eligible only after the specified duration.
func Delay(d time.Duration) Option {
	return func(o *options) {
		o.delay = d
	}
}

// MaxRetries sets the number of attempts allowed before the job is dead-lettered.
// Zero is a valid value; without this option the client default applies.
func MaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = n
		o.maxRetriesSet = true
	}
}

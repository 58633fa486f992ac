package api

import (
	"time"

	"github.com/okian/moodblocks/pkg/logger"
)

type options struct {
	submitRate     float64
	submitBurst    int
	streamInterval time.Duration
	log            logger.Logger
}

func defaultOptions() options {
	return options{
		submitRate:     2,
		submitBurst:    5,
		streamInterval: 250 * time.Millisecond,
		log:            logger.Nop(),
	}
}

// Option configures the Server.
type Option func(*options)

// WithSubmitLimit sets the POST /moods token bucket.
func WithSubmitLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond > 0 && burst > 0 {
			o.submitRate = perSecond
			o.submitBurst = burst
		}
	}
}

// WithStreamInterval sets how often /stream looks for a new snapshot.
func WithStreamInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.streamInterval = d
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

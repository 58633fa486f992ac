package simulate

import (
	"fmt"
	"time"
)

// Defaults for a simulation run.
const (
	DefaultEvents         = 200
	DefaultActors         = 25
	DefaultWorkers        = 8
	DefaultEventsPerBlock = 3
	DefaultTimeout        = 30 * time.Second
)

// Config describes one simulation run.
type Config struct {
	Events  int // number of mood events to emit
	Actors  int // size of the actor pool
	Workers int // concurrent emitters

	// Rate caps emissions per second across all workers. Zero means unlimited.
	Rate float64

	// StartPosition is the first position assigned to generated events.
	// EventsPerBlock events share each position.
	StartPosition  uint64
	EventsPerBlock int

	// Seed makes the generated symbols and actor order reproducible.
	Seed int64

	Timeout time.Duration
}

// DefaultConfig returns a config with every field at its default.
func DefaultConfig() Config {
	return Config{
		Events:         DefaultEvents,
		Actors:         DefaultActors,
		Workers:        DefaultWorkers,
		StartPosition:  1,
		EventsPerBlock: DefaultEventsPerBlock,
		Seed:           time.Now().UnixNano(),
		Timeout:        DefaultTimeout,
	}
}

// Validate reports the first impossible setting.
func (c Config) Validate() error {
	switch {
	case c.Events <= 0:
		return fmt.Errorf("%w: events must be positive", ErrInvalidConfig)
	case c.Actors <= 0:
		return fmt.Errorf("%w: actors must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Rate < 0:
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidConfig)
	case c.EventsPerBlock <= 0:
		return fmt.Errorf("%w: events per block must be positive", ErrInvalidConfig)
	case c.StartPosition == 0:
		return fmt.Errorf("%w: start position must be positive", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

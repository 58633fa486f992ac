package natsfeed

import "github.com/okian/moodblocks/pkg/logger"

// Option applies a configuration option to the Feed.
type Option func(*Feed)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(f *Feed) {
		if prefix != "" {
			f.prefix = prefix
		}
	}
}

// WithLogger sets the feed logger.
func WithLogger(l logger.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.log = l
		}
	}
}

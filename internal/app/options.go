package service

import (
	"time"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/voice"
	"github.com/okian/moodblocks/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIdentity sets the actor used for submissions and the identity history view.
func WithIdentity(actor string) Option {
	return func(s *Service) {
		s.identity = actor
	}
}

// WithRefreshInterval sets the snapshot period.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithFetchTimeout bounds every ledger read started by the service.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithShutdownTimeout bounds how long Stop waits for the worker to drain.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithSnapshotMaxEntries sets the snapshot truncation window.
func WithSnapshotMaxEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithInboxSize sets the capacity of the merge inbox.
func WithInboxSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.inboxSize = n
		}
	}
}

// WithDedupeSize sets how many record identities are remembered. Zero or
// less keeps every identity.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		s.dedupeSize = n
	}
}

// WithEvent sets the live event name.
func WithEvent(event string) Option {
	return func(s *Service) {
		if event != "" {
			s.event = event
		}
	}
}

// WithKeywords replaces the voice keyword table.
func WithKeywords(keywords ...voice.Keyword) Option {
	return func(s *Service) {
		if len(keywords) > 0 {
			s.keywords = keywords
		}
	}
}

func defaultOptions(s *Service) {
	s.refreshInterval = 30 * time.Second
	s.fetchTimeout = 10 * time.Second
	s.shutdownTimeout = 5 * time.Second
	s.maxEntries = 500
	s.inboxSize = 1024
	s.dedupeSize = 50000
	s.event = ledger.DefaultEvent
	s.keywords = voice.DefaultKeywords()
}

package repository

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithSeed sets the seed mixed into node priorities.
func WithSeed(seed uint64) Option {
	return func(s *TreapStore) {
		s.seed = seed
	}
}

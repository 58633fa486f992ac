package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/moodblocks/internal/domain/model"
	"github.com/okian/moodblocks/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: position DESC, so an in-order traversal yields the newest blocks
// first. Priorities are a hash of the position, which keeps the tree balanced
// even though positions mostly arrive in sorted runs.

type node struct {
	pos   uint64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// before reports whether position a is listed ahead of b.
func before(a, b uint64) bool {
	return a > b
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// priority mixes the position with splitmix64.
func priority(pos, seed uint64) uint64 {
	z := pos + seed + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func insert(n *node, pos, prio uint64) *node {
	if n == nil {
		return &node{pos: pos, prio: prio, size: 1}
	}
	if before(pos, n.pos) {
		n.left = insert(n.left, pos, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, pos, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// collectLatest appends up to limit entries in position desc order.
func collectLatest(n *node, limit int, byPos map[uint64]Entry, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectLatest(n.left, limit, byPos, out)
	if len(*out) < limit {
		if e, ok := byPos[n.pos]; ok {
			*out = append(*out, e)
		}
	}
	if len(*out) < limit {
		collectLatest(n.right, limit, byPos, out)
	}
}

// TreapStore is a first-seen Position→Symbol store.
type TreapStore struct {
	mu    sync.RWMutex
	root  *node
	byPos map[uint64]Entry
	seed  uint64
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byPos: make(map[uint64]Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Claim implements Store.Claim in O(log n) expected time.
func (s *TreapStore) Claim(_ context.Context, rec model.Record) (bool, error) {
	if !rec.Symbol.Valid() {
		metrics.RecordError("repository", "invalid_symbol")
		return false, fmt.Errorf("%w: %q", ErrInvalidSymbol, string(rec.Symbol))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.byPos[rec.Position]; held {
		return false, nil
	}
	s.byPos[rec.Position] = Entry{Position: rec.Position, Symbol: rec.Symbol, Actor: rec.Actor}
	s.root = insert(s.root, rec.Position, priority(rec.Position, s.seed))
	return true, nil
}

// Mood returns the symbol held for position.
func (s *TreapStore) Mood(_ context.Context, position uint64) (model.Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byPos[position]
	if !ok {
		return "", ErrNotFound
	}
	return e.Symbol, nil
}

// Latest returns up to n entries, newest position first.
func (s *TreapStore) Latest(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordError("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byPos)))
	collectLatest(s.root, n, s.byPos, &out)
	return out, nil
}

// Count returns the number of positions tracked.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPos)
}

// Height returns the depth of the tree. Used to check balance.
func (s *TreapStore) Height() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return height(s.root)
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return 1 + max(height(n.left), height(n.right))
}

// Package memledger is an in-process ledger used for local runs and tests.
package memledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
)

// Ledger keeps an append-only history and fans new records out to subscribers.
// Every accepted submission mines a new position.
type Ledger struct {
	mu       sync.RWMutex
	history  []model.RawRecord
	position uint64
	subs     map[string]map[uint64]ledger.Handler
	nextSub  uint64
	event    string
	now      func() time.Time

	// injected failures
	readErr   error
	submitErr error
	subErr    error
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		subs:  make(map[string]map[uint64]ledger.Handler),
		event: ledger.DefaultEvent,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FetchHistory returns a copy of the full history.
func (l *Ledger) FetchHistory(ctx context.Context) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	return append([]model.RawRecord(nil), l.history...), nil
}

// FetchUserHistory returns the records of one actor in ledger order.
func (l *Ledger) FetchUserHistory(ctx context.Context, actor string) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.readErr != nil {
		return nil, l.readErr
	}
	var out []model.RawRecord
	for _, r := range l.history {
		if r.Actor == actor {
			out = append(out, r)
		}
	}
	return out, nil
}

// CurrentPosition returns the latest mined position.
func (l *Ledger) CurrentPosition(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.readErr != nil {
		return 0, l.readErr
	}
	return l.position, nil
}

// TopSymbol returns the most frequent valid symbol, ties in alphabet order.
func (l *Ledger) TopSymbol(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.readErr != nil {
		return "", l.readErr
	}
	counts := map[model.Symbol]int{}
	for _, r := range l.history {
		if s, err := model.ParseSymbol(r.Symbol); err == nil {
			counts[s]++
		}
	}
	alphabet := model.Alphabet()
	sort.SliceStable(alphabet, func(i, j int) bool { return counts[alphabet[i]] > counts[alphabet[j]] })
	if counts[alphabet[0]] == 0 {
		return "", nil
	}
	return string(alphabet[0]), nil
}

// Submit mines a new position holding the actor's symbol and pushes it to
// the subscribers of the configured event.
func (l *Ledger) Submit(ctx context.Context, actor, symbol string) (ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}
	sym, err := model.ParseSymbol(symbol)
	if err != nil {
		return ledger.Receipt{}, fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}
	if actor == "" {
		return ledger.Receipt{}, fmt.Errorf("%w: empty actor", ledger.ErrRejected)
	}

	l.mu.Lock()
	if l.submitErr != nil {
		err := l.submitErr
		l.mu.Unlock()
		return ledger.Receipt{}, err
	}
	l.position++
	rec := model.RawRecord{Actor: actor, Position: strconv.FormatUint(l.position, 10), Symbol: string(sym)}
	l.history = append(l.history, rec)
	receipt := ledger.Receipt{
		TxID:        "0x" + uuid.NewString(),
		Actor:       actor,
		Symbol:      string(sym),
		Position:    l.position,
		SubmittedAt: l.now(),
	}
	handlers := l.handlersLocked(l.event)
	l.mu.Unlock()

	for _, h := range handlers {
		h(rec)
	}
	return receipt, nil
}

// Append adds records to the history without notifying subscribers.
// The current position advances to the highest numeric position appended.
func (l *Ledger) Append(records ...model.RawRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range records {
		l.history = append(l.history, r)
		if p, err := strconv.ParseUint(r.Position, 10, 64); err == nil && p > l.position {
			l.position = p
		}
	}
}

// Publish appends a record and pushes it to subscribers of event.
func (l *Ledger) Publish(event string, r model.RawRecord) {
	l.Append(r)
	l.mu.RLock()
	handlers := l.handlersLocked(event)
	l.mu.RUnlock()
	for _, h := range handlers {
		h(r)
	}
}

// Push delivers a record to subscribers without touching the history.
func (l *Ledger) Push(event string, r model.RawRecord) {
	l.mu.RLock()
	handlers := l.handlersLocked(event)
	l.mu.RUnlock()
	for _, h := range handlers {
		h(r)
	}
}

// Advance mines n empty positions.
func (l *Ledger) Advance(n uint64) {
	l.mu.Lock()
	l.position += n
	l.mu.Unlock()
}

// Subscribe registers h for event until the subscription is released.
func (l *Ledger) Subscribe(ctx context.Context, event string, h ledger.Handler) (ledger.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: nil handler", ledger.ErrUnavailable)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.subErr != nil {
		return nil, l.subErr
	}
	if l.subs[event] == nil {
		l.subs[event] = make(map[uint64]ledger.Handler)
	}
	l.nextSub++
	id := l.nextSub
	l.subs[event][id] = h
	return ledger.NewSubscription(func() {
		l.mu.Lock()
		delete(l.subs[event], id)
		l.mu.Unlock()
	}), nil
}

// Subscribers returns the number of active handlers for event.
func (l *Ledger) Subscribers(event string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[event])
}

// FailReads makes every read return err until called with nil.
func (l *Ledger) FailReads(err error) {
	l.mu.Lock()
	l.readErr = err
	l.mu.Unlock()
}

// FailSubmits makes Submit return err until called with nil.
func (l *Ledger) FailSubmits(err error) {
	l.mu.Lock()
	l.submitErr = err
	l.mu.Unlock()
}

// FailSubscribe makes Subscribe return err until called with nil.
func (l *Ledger) FailSubscribe(err error) {
	l.mu.Lock()
	l.subErr = err
	l.mu.Unlock()
}

func (l *Ledger) handlersLocked(event string) []ledger.Handler {
	out := make([]ledger.Handler, 0, len(l.subs[event]))
	ids := make([]uint64, 0, len(l.subs[event]))
	for id := range l.subs[event] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, l.subs[event][id])
	}
	return out
}

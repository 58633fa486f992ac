package simulate

import (
	"context"

	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/domain/model"
)

// Emitter delivers one generated event somewhere.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, e Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// WriterEmitter submits events as ledger writes. The ledger assigns the
// position, so Event.Position is ignored.
type WriterEmitter struct {
	W ledger.Writer
}

// Emit submits e as its actor.
func (w WriterEmitter) Emit(ctx context.Context, e Event) error {
	_, err := w.W.Submit(ctx, e.Actor, string(e.Symbol))
	return err
}

// Publisher pushes raw records onto a live event channel.
type Publisher interface {
	Publish(event string, r model.RawRecord) error
}

// FeedEmitter publishes events straight onto the live feed, bypassing the ledger.
type FeedEmitter struct {
	P     Publisher
	Event string
}

// Emit publishes e under the configured event name.
func (f FeedEmitter) Emit(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := f.Event
	if event == "" {
		event = ledger.DefaultEvent
	}
	return f.P.Publish(event, e.Raw())
}

// ServerEmitter posts events to a running mood server. The server submits
// under its own identity, so Event.Actor is ignored.
type ServerEmitter struct {
	C *Client
}

// Emit posts e's symbol.
func (s ServerEmitter) Emit(ctx context.Context, e Event) error {
	_, err := s.C.Submit(ctx, string(e.Symbol))
	return err
}

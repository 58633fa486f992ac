package simulate

import (
	"math/rand"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/moodblocks/internal/domain/model"
)

// Event is one generated mood record.
type Event struct {
	Actor    string
	Symbol   model.Symbol
	Position uint64
}

// Raw returns the event as a ledger record.
func (e Event) Raw() model.RawRecord {
	return model.RawRecord{
		Actor:    e.Actor,
		Position: strconv.FormatUint(e.Position, 10),
		Symbol:   string(e.Symbol),
	}
}

// Generate builds cfg.Events events over a pool of random actors. Positions
// increase every cfg.EventsPerBlock events, starting at cfg.StartPosition.
func Generate(cfg Config) []Event {
	rnd := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // load generation, not security
	alphabet := model.Alphabet()

	actors := make([]string, cfg.Actors)
	for i := range actors {
		actors[i] = uuid.NewString()
	}

	events := make([]Event, cfg.Events)
	for i := range events {
		events[i] = Event{
			Actor:    actors[rnd.Intn(len(actors))],
			Symbol:   alphabet[rnd.Intn(len(alphabet))],
			Position: cfg.StartPosition + uint64(i/cfg.EventsPerBlock),
		}
	}
	return events
}

// Tally counts events per symbol.
func Tally(events []Event) map[model.Symbol]int64 {
	out := make(map[model.Symbol]int64, len(model.Alphabet()))
	for _, e := range events {
		out[e.Symbol]++
	}
	return out
}

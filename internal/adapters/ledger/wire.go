package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/moodblocks/internal/domain/model"
)

// WireRecord is the JSON shape of a record on the gateway and the message bus.
// blockNumber arrives either as a JSON number or as a string.
type WireRecord struct {
	User        string          `json:"user"`
	BlockNumber json.RawMessage `json:"blockNumber"`
	Emoji       string          `json:"emoji"`
}

// Raw converts the wire shape into a RawRecord without validating it.
func (w WireRecord) Raw() model.RawRecord {
	return model.RawRecord{
		Actor:    w.User,
		Position: RawNumber(w.BlockNumber),
		Symbol:   w.Emoji,
	}
}

// RawNumber returns the textual form of a JSON number or string.
func RawNumber(m json.RawMessage) string {
	s := strings.TrimSpace(string(m))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

// DecodeRecord parses one wire record.
func DecodeRecord(data []byte) (model.RawRecord, error) {
	var w WireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return model.RawRecord{}, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return w.Raw(), nil
}

// DecodeRecords parses a JSON array of wire records.
func DecodeRecords(data []byte) ([]model.RawRecord, error) {
	var ws []WireRecord
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	out := make([]model.RawRecord, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Raw())
	}
	return out, nil
}

// Wire converts a RawRecord to its wire shape. Numeric positions are sent as numbers.
func Wire(r model.RawRecord) WireRecord {
	pos := r.Position
	if _, err := strconv.ParseUint(pos, 10, 64); err != nil {
		pos = strconv.Quote(pos)
	}
	return WireRecord{User: r.Actor, BlockNumber: json.RawMessage(pos), Emoji: r.Symbol}
}

// EncodeRecord marshals a RawRecord to its wire form.
func EncodeRecord(r model.RawRecord) ([]byte, error) {
	return json.Marshal(Wire(r))
}

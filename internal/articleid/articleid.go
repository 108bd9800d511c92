package articleid

import (
	"errors"
	"fmt"

	hashids "github.com/speps/go-hashids/v2"
)

const DefaultMinLength = 12

var ErrInvalidID = errors.New("invalid article id")

// Generator turns sort keys into public article identifiers and back.
// Encoding is deterministic for a given salt, so the identifier of an
// article can always be recomputed from its sort key.
type Generator struct {
	clock  *Clock
	codec  *hashids.HashID
	minLen int
}

func New(salt string, minLength int, clock *Clock) (*Generator, error) {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if clock == nil {
		clock = NewClock()
	}
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = minLength
	codec, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("init id codec: %w", err)
	}
	return &Generator{clock: clock, codec: codec, minLen: minLength}, nil
}

func (g *Generator) Encode(sortKey int64) (string, error) {
	if sortKey < 0 {
		return "", fmt.Errorf("encode sort key %d: negative", sortKey)
	}
	id, err := g.codec.EncodeInt64([]int64{sortKey})
	if err != nil {
		return "", fmt.Errorf("encode sort key %d: %w", sortKey, err)
	}
	return id, nil
}

// Decode recovers the sort key. Identifiers produced with another salt or
// alphabet are rejected.
func (g *Generator) Decode(id string) (int64, error) {
	if len(id) < g.minLen {
		return 0, ErrInvalidID
	}
	values, err := g.codec.DecodeInt64WithError(id)
	if err != nil || len(values) != 1 {
		return 0, ErrInvalidID
	}
	return values[0], nil
}

// New draws a fresh sort key and its identifier.
func (g *Generator) New() (int64, string, error) {
	sortKey := g.clock.Next()
	id, err := g.Encode(sortKey)
	if err != nil {
		return 0, "", err
	}
	return sortKey, id, nil
}

func (g *Generator) Clock() *Clock {
	return g.clock
}

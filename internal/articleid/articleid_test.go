package articleid

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockIsStrictlyIncreasingWhenTimeStalls(t *testing.T) {
	frozen := time.Unix(1700000000, 0)
	c := NewClockAt(func() time.Time { return frozen })

	a := c.Next()
	b := c.Next()
	assert.Equal(t, frozen.UnixMicro(), a)
	assert.Equal(t, a+1, b)
}

func TestClockSurvivesBackwardsStep(t *testing.T) {
	now := time.Unix(1700000000, 0)
	c := NewClockAt(func() time.Time { return now })
	first := c.Next()

	now = now.Add(-time.Hour)
	assert.Greater(t, c.Next(), first)
}

func TestClockConcurrentCallersNeverCollide(t *testing.T) {
	c := NewClockAt(func() time.Time { return time.Unix(1700000000, 0) })
	const workers, perWorker = 8, 200

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v := c.Next()
				mu.Lock()
				seen[v] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestGeneratorRoundTrip(t *testing.T) {
	g, err := New("test-salt", 0, nil)
	require.NoError(t, err)

	sortKey, id, err := g.New()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(id), DefaultMinLength)

	decoded, err := g.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, sortKey, decoded)

	again, err := g.Encode(sortKey)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestGeneratorDistinctKeysGiveDistinctIDs(t *testing.T) {
	g, err := New("test-salt", 12, NewClockAt(func() time.Time { return time.Unix(1700000000, 0) }))
	require.NoError(t, err)

	_, a, err := g.New()
	require.NoError(t, err)
	_, b, err := g.New()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestGeneratorRejectsForeignIDs(t *testing.T) {
	g, err := New("salt-a", 12, nil)
	require.NoError(t, err)
	other, err := New("salt-b", 12, nil)
	require.NoError(t, err)

	id, err := other.Encode(1700000000000000)
	require.NoError(t, err)

	_, err = g.Decode(id)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = g.Decode("short")
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = g.Decode("")
	assert.ErrorIs(t, err, ErrInvalidID)
}

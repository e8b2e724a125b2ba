package replication

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(entity EntityID, value string, t SendTime, sender ConnID) Envelope {
	return Envelope{Entity: entity, Payload: payload(value), Time: t, Sender: sender}
}

func winnerValue(t *testing.T, res Resolution) string {
	t.Helper()
	v, err := JSONCodec[string]{}.Decode(res.Winner.Payload)
	require.NoError(t, err)
	return v
}

func TestResolveOutOfOrderPicksNewest(t *testing.T) {
	batch := []Envelope{
		env(7, "Y", At(12), 1),
		env(7, "Z", At(11), 1),
	}
	res, ok := Resolve(batch, 7, NoTime, nil)
	require.True(t, ok)
	assert.Equal(t, "Y", winnerValue(t, res))
	assert.Equal(t, At(12), res.LastApplied)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 0, res.Index)
}

func TestResolveTimestampLessLastWins(t *testing.T) {
	batch := []Envelope{
		env(7, "P", NoTime, 1),
		env(7, "Q", NoTime, 1),
	}
	res, ok := Resolve(batch, 7, At(500), nil)
	require.True(t, ok)
	assert.Equal(t, "Q", winnerValue(t, res))
	assert.Equal(t, At(500), res.LastApplied, "timestamp-less winners leave the marker alone")
}

func TestResolveRejectsStaleAndDuplicate(t *testing.T) {
	batch := []Envelope{
		env(7, "X", At(10), 1),
		env(7, "W", At(9), 1),
	}
	_, ok := Resolve(batch, 7, At(10), nil)
	assert.False(t, ok, "send times at or below last applied are never applied")
}

func TestResolveTiesKeepEarlierEntry(t *testing.T) {
	batch := []Envelope{
		env(7, "first", At(4), 1),
		env(7, "second", At(4), 2),
	}
	res, ok := Resolve(batch, 7, NoTime, nil)
	require.True(t, ok)
	assert.Equal(t, "first", winnerValue(t, res))
}

func TestResolveAcceptsZeroWhenNothingApplied(t *testing.T) {
	res, ok := Resolve([]Envelope{env(7, "boot", At(0), 1)}, 7, NoTime, nil)
	require.True(t, ok)
	assert.Equal(t, At(0), res.LastApplied)
}

func TestResolveFilterExclusivity(t *testing.T) {
	batch := []Envelope{
		env(7, "trusted", At(3), 1),
		env(7, "intruder", At(99), 2),
	}
	res, ok := Resolve(batch, 7, NoTime, Include(1).Matches)
	require.True(t, ok)
	assert.Equal(t, "trusted", winnerValue(t, res))
	assert.Equal(t, 1, res.Candidates)

	_, ok = Resolve(batch[1:], 7, NoTime, Include(1).Matches)
	assert.False(t, ok)
}

func TestResolveIgnoresOtherEntities(t *testing.T) {
	batch := []Envelope{
		env(8, "other", At(50), 1),
		env(7, "mine", At(2), 1),
	}
	res, ok := Resolve(batch, 7, NoTime, nil)
	require.True(t, ok)
	assert.Equal(t, "mine", winnerValue(t, res))

	_, ok = Resolve(batch, 9, NoTime, nil)
	assert.False(t, ok)
}

func TestResolveMixedTimestamps(t *testing.T) {
	batch := []Envelope{
		env(7, "timed", At(20), 1),
		env(7, "untimed", NoTime, 1),
		env(7, "older", At(15), 1),
	}
	res, ok := Resolve(batch, 7, At(5), nil)
	require.True(t, ok)
	assert.Equal(t, "untimed", winnerValue(t, res))
	assert.Equal(t, At(5), res.LastApplied)
}

func TestResolveRecencyMonotonicityUnderShuffle(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		batch := make([]Envelope, 0, 8)
		for i := uint32(1); i <= 8; i++ {
			batch = append(batch, env(7, string(rune('a'+i)), At(i), 1))
		}
		rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })

		res, ok := Resolve(batch, 7, NoTime, nil)
		require.True(t, ok)
		assert.Equal(t, string(rune('a'+8)), winnerValue(t, res))
		assert.Equal(t, At(8), res.LastApplied)
	}
}

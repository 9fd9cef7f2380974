package sim

import (
	"math/rand"
	"testing"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRace(seed int64, maxTicks int) *Race {
	r := NewRace(5, 1000, maxTicks, rand.New(rand.NewSource(seed)))
	for !r.Step() {
	}
	return r
}

func TestRace_FinishesWithFurthestWinner(t *testing.T) {
	r := runRace(1, 0)
	w, ok := r.Winner()
	require.True(t, ok)

	dists := r.Distances()
	assert.Equal(t, 1000.0, dists[w])
	for c, d := range dists {
		assert.LessOrEqual(t, d, dists[w], "competitor %d", c)
	}
	assert.Greater(t, r.Tick(), 50)
	assert.True(t, r.Step(), "stepping a finished race is a no-op")
}

func TestRace_SameSeedSameRace(t *testing.T) {
	a, b := runRace(42, 0), runRace(42, 0)
	assert.Equal(t, a.Tick(), b.Tick())
	assert.Equal(t, a.Distances(), b.Distances())
}

func TestRace_MaxTicks(t *testing.T) {
	r := runRace(3, 10)
	assert.Equal(t, 10, r.Tick())
	w, ok := r.Winner()
	require.True(t, ok)
	assert.Equal(t, r.leader(), w)
}

func TestRace_DistancesIsACopy(t *testing.T) {
	r := NewRace(3, 100, 0, rand.New(rand.NewSource(1)))
	r.Step()
	d := r.Distances()
	d[0] = -1
	assert.NotEqual(t, -1.0, r.Distances()[0])
}

func TestRace_NeverInjuresEveryone(t *testing.T) {
	r := NewRace(2, 1e9, 20000, rand.New(rand.NewSource(7)))
	for !r.Step() {
	}
	assert.LessOrEqual(t, boolCount(r.injured), 1)
}

func boolCount(v []bool) int {
	n := 0
	for _, b := range v {
		if b {
			n++
		}
	}
	return n
}

func TestOddsModel_ExAnte(t *testing.T) {
	p := domain.DefaultParams()
	p.NumCompetitors = 3
	r := NewRace(3, p.RaceLength, 0, rand.New(rand.NewSource(1)))
	r.strength = []float64{10, 9, 11}

	odds, err := NewOddsModel(p, r).ExAnte()
	require.NoError(t, err)
	require.Len(t, odds, 3)

	var book float64
	for _, o := range odds {
		book += 1 / o
	}
	assert.InDelta(t, 1, book, 1e-9)
	assert.Less(t, odds[2], odds[0])
	assert.Less(t, odds[0], odds[1])
}

func TestOddsModel_InjuredIsLaySignal(t *testing.T) {
	p := domain.DefaultParams()
	p.NumCompetitors = 3
	r := NewRace(3, p.RaceLength, 0, rand.New(rand.NewSource(1)))
	r.injured[1] = true

	m := NewOddsModel(p, r)
	ex, err := m.ExAnte()
	require.NoError(t, err)
	assert.Equal(t, p.MaxOdds, ex[1])

	in, err := m.InPlay(0)
	require.NoError(t, err)
	assert.Equal(t, p.MaxOdds, in[1])
	assert.Less(t, in[0], p.MaxOdds)
}

func TestOddsModel_InPlayFavoursTheCloser(t *testing.T) {
	p := domain.DefaultParams()
	p.NumCompetitors = 3
	r := NewRace(3, p.RaceLength, 0, rand.New(rand.NewSource(1)))
	r.strength = []float64{10, 10, 10}
	r.dists = []float64{900, 850, 800}
	r.tick = 50

	odds, err := NewOddsModel(p, r).InPlay(50)
	require.NoError(t, err)
	assert.Less(t, odds[0], odds[1])
	assert.Less(t, odds[1], odds[2])

	_, err = NewOddsModel(p, r).InPlay(51)
	assert.Error(t, err)
}

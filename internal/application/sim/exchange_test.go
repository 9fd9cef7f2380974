package sim_test

import (
	"testing"

	"github.com/alejandrodnm/betpool/internal/application/sim"
	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() domain.Params {
	p := domain.DefaultParams()
	p.NumCompetitors = 3
	return p
}

func order(t *testing.T, p domain.Params, agentID int, dir domain.Direction, odds float64, stake int) domain.Order {
	t.Helper()
	o, err := domain.NewOrder(p, 0, agentID, 1, dir, odds, stake, 0, 0)
	require.NoError(t, err)
	return o
}

func submit(t *testing.T, ex *sim.Exchange, o domain.Order) []sim.Fill {
	t.Helper()
	fills, err := ex.Submit(o)
	require.NoError(t, err)
	return fills
}

func TestExchange_EmptyBookFallbacks(t *testing.T) {
	p := testParams()
	ex := sim.NewExchange(0, p)

	q := ex.Quotes()[1]
	assert.Zero(t, q.Backs.Count)
	assert.Zero(t, q.Lays.Count)
	assert.Equal(t, p.MaxOdds, q.Backs.Worst)
	assert.Equal(t, p.MinOdds, q.Lays.Worst)
	assert.Equal(t, p.MaxOdds, q.BackPrice(0.1))
	assert.Equal(t, p.MinOdds, q.LayPrice(0.1))
	assert.Nil(t, ex.LastTrade())
}

func TestExchange_RestingQuotes(t *testing.T) {
	p := testParams()
	ex := sim.NewExchange(0, p)

	assert.Empty(t, submit(t, ex, order(t, p, 1, domain.Back, 4, 10)))
	assert.Empty(t, submit(t, ex, order(t, p, 2, domain.Back, 3, 10)))
	assert.Empty(t, submit(t, ex, order(t, p, 3, domain.Lay, 2, 10)))
	assert.Empty(t, submit(t, ex, order(t, p, 4, domain.Lay, 2.5, 10)))

	q := ex.Quotes()[1]
	assert.Equal(t, domain.BookSide{Best: 3, Worst: 4, Count: 2}, q.Backs)
	assert.Equal(t, domain.BookSide{Best: 2.5, Worst: 2, Count: 2}, q.Lays)
	assert.Equal(t, 4, q.QuoteID)
}

func TestExchange_PartialFillAtRestingPrice(t *testing.T) {
	p := testParams()
	ex := sim.NewExchange(0, p)

	lay := order(t, p, 1, domain.Lay, 3, 10)
	submit(t, ex, lay)

	back := order(t, p, 2, domain.Back, 2.8, 4)
	fills := submit(t, ex, back)
	require.Len(t, fills, 1)
	f := fills[0]
	assert.Equal(t, 3.0, f.Trade.Odds)
	assert.Equal(t, 4, f.Trade.Stake)
	assert.Equal(t, 2, f.Trade.BackerID)
	assert.Equal(t, 1, f.Trade.LayerID)
	assert.Equal(t, back.ID, f.Back.ID)
	assert.Equal(t, lay.ID, f.Lay.ID)
	assert.Equal(t, 1, ex.Quotes()[1].Lays.Count)

	fills = submit(t, ex, order(t, p, 3, domain.Back, 2.9, 10))
	require.Len(t, fills, 1)
	assert.Equal(t, 6, fills[0].Trade.Stake)

	q := ex.Quotes()[1]
	assert.Zero(t, q.Lays.Count)
	assert.Equal(t, domain.BookSide{Best: 2.9, Worst: 2.9, Count: 1}, q.Backs)
	assert.Equal(t, fills[0].Trade, *ex.LastTrade())
}

func TestExchange_PriceThenTimePriority(t *testing.T) {
	p := testParams()
	ex := sim.NewExchange(0, p)

	submit(t, ex, order(t, p, 1, domain.Lay, 3, 5))
	submit(t, ex, order(t, p, 2, domain.Lay, 3.5, 5))
	submit(t, ex, order(t, p, 3, domain.Lay, 3, 5))

	fills := submit(t, ex, order(t, p, 9, domain.Back, 3, 12))
	require.Len(t, fills, 3)
	assert.Equal(t, []int{2, 1, 3}, []int{fills[0].Trade.LayerID, fills[1].Trade.LayerID, fills[2].Trade.LayerID})
	assert.Equal(t, []float64{3.5, 3, 3}, []float64{fills[0].Trade.Odds, fills[1].Trade.Odds, fills[2].Trade.Odds})
	assert.Equal(t, 2, fills[2].Trade.Stake)
}

func TestExchange_LayCrossesLowestBack(t *testing.T) {
	p := testParams()
	ex := sim.NewExchange(0, p)

	submit(t, ex, order(t, p, 1, domain.Back, 4, 5))
	submit(t, ex, order(t, p, 2, domain.Back, 3, 5))

	fills := submit(t, ex, order(t, p, 3, domain.Lay, 3.5, 10))
	require.Len(t, fills, 1)
	assert.Equal(t, 2, fills[0].Trade.BackerID)
	assert.Equal(t, 3.0, fills[0].Trade.Odds)

	q := ex.Quotes()[1]
	assert.Equal(t, 1, q.Backs.Count)
	assert.Equal(t, domain.BookSide{Best: 3.5, Worst: 3.5, Count: 1}, q.Lays)
}

func TestExchange_NoCrossNoSelfMatch(t *testing.T) {
	p := testParams()
	ex := sim.NewExchange(0, p)

	submit(t, ex, order(t, p, 1, domain.Lay, 2, 5))
	assert.Empty(t, submit(t, ex, order(t, p, 2, domain.Back, 2.5, 5)), "back above lay does not cross")

	own := sim.NewExchange(0, p)
	submit(t, own, order(t, p, 3, domain.Lay, 3, 5))
	assert.Empty(t, submit(t, own, order(t, p, 3, domain.Back, 2.8, 5)), "own lay is skipped")
	assert.Equal(t, 1, own.Quotes()[1].Backs.Count)
}

func TestExchange_CancelAll(t *testing.T) {
	p := testParams()
	ex := sim.NewExchange(0, p)

	submit(t, ex, order(t, p, 1, domain.Lay, 3, 10))
	submit(t, ex, order(t, p, 2, domain.Back, 3, 4))
	submit(t, ex, order(t, p, 3, domain.Back, 5, 4))

	left := ex.CancelAll()
	require.Len(t, left, 2)
	ids := []int{left[0].AgentID, left[1].AgentID}
	assert.ElementsMatch(t, []int{1, 3}, ids)

	q := ex.Quotes()[1]
	assert.Zero(t, q.Backs.Count)
	assert.Zero(t, q.Lays.Count)
}

func TestExchange_RejectsForeignOrders(t *testing.T) {
	p := testParams()
	p.NumExchanges = 2
	ex := sim.NewExchange(1, p)

	_, err := ex.Submit(order(t, p, 1, domain.Back, 3, 5))
	assert.Error(t, err)
}

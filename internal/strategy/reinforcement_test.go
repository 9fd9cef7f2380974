package strategy

import (
	"testing"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRL(t *testing.T, m *mockModel, exp *mockExporter) (*Reinforcement, *agent.Agent) {
	t.Helper()
	p := testParams()
	d := Deps{
		Trainer: greedyTrainer(m),
		RL:      RLConfig{BettingTime: 5, BettingInterval: 2},
		RaceNo:  7,
	}
	if exp != nil {
		d.Exporter = exp
	}
	s, err := NewReinforcement(p, nil, d)
	require.NoError(t, err)
	r := s.(*Reinforcement)
	return r, newTestAgent(t, p, r)
}

func tickDists(tick int) map[int]float64 {
	return map[int]float64{0: float64(tick), 1: 2 * float64(tick), 2: 3 * float64(tick)}
}

func TestReinforcement_ActsOnScheduleOnly(t *testing.T) {
	m := &mockModel{actions: ActionSize(3)}
	r, a := newRL(t, m, nil)
	snap := bookSnap(a.Params(), 3, 4)

	acted := func(tick int) bool {
		before, _, _ := r.actionStats()
		a.ObserveRaceState(tick, tickDists(tick))
		require.NoError(t, a.Respond(float64(tick), snap, nil))
		after, _, _ := r.actionStats()
		return after > before
	}

	assert.False(t, acted(4))
	assert.True(t, acted(5))
	assert.False(t, acted(6))
	assert.True(t, acted(7))
	assert.False(t, acted(7), "a tick is processed once")
	assert.False(t, acted(8))
	assert.True(t, acted(9))
}

func TestReinforcement_NotBeforeRaceStarts(t *testing.T) {
	r, a := newRL(t, &mockModel{actions: ActionSize(3)}, nil)
	require.NoError(t, a.Respond(0, bookSnap(a.Params(), 3, 4), nil))
	total, _, _ := r.actionStats()
	assert.Zero(t, total)
	assert.Empty(t, drain(a))
}

func TestReinforcement_Encode(t *testing.T) {
	r, a := newRL(t, &mockModel{actions: ActionSize(3)}, nil)
	a.ObserveRaceState(3, tickDists(3))

	assert.Equal(t, []float64{3, 3, 6, 9, 1, 1, 1}, r.Encode(a))

	require.NoError(t, a.Respond(3, emptySnap(a.Params()), nil))
	p := a.Params()
	assert.Equal(t, []float64{3, 3, 6, 9, p.MaxOdds, p.MaxOdds, p.MaxOdds}, r.Encode(a))
}

func TestReinforcement_FinaliseEpisode(t *testing.T) {
	m := &mockModel{actions: ActionSize(3)}
	exp := &mockExporter{}
	r, a := newRL(t, m, exp)
	snap := bookSnap(a.Params(), 3, 4)

	for tick := 4; tick <= 9; tick++ {
		a.ObserveRaceState(tick, tickDists(tick))
		require.NoError(t, a.Respond(float64(tick), snap, nil))
	}
	orders := drain(a)
	require.Len(t, orders, 3)
	for _, o := range orders {
		assert.Equal(t, 0, o.Competitor, "zero Q-values pick action 0")
		assert.Equal(t, domain.Back, o.Direction)
	}

	o := orders[0]
	a.Bookkeep(domain.Trade{
		ID:         "t1",
		Competitor: 0,
		BackerID:   a.ID(),
		BackOrder:  o.ID,
		Odds:       o.Odds,
		Stake:      o.Stake,
	}, domain.Backer, o, 10)
	pnl := a.SettleRace(0)
	require.InDelta(t, float64(o.Stake)*(o.Odds-1), pnl, 1e-9)

	summary, err := a.FinaliseEpisode(0)
	require.NoError(t, err)

	assert.InDelta(t, pnl/rewardScale, summary.Reward, 1e-9)
	assert.True(t, summary.Trained)
	assert.Equal(t, 0.5, summary.Loss)
	assert.Equal(t, 3, summary.TotalActions)
	assert.Equal(t, 0, summary.MostCommonAction)
	assert.Equal(t, 0, summary.MostCommonCompetitor)
	assert.Equal(t, []int{3, 0, 0}, summary.BacksPerCompetitor)
	assert.Equal(t, []int{0, 0, 0}, summary.LaysPerCompetitor)
	assert.Equal(t, 1, summary.Trades)
	assert.Equal(t, 0, summary.Winner)
	assert.Equal(t, 1, summary.TrainingStep)
	assert.Equal(t, 42, summary.AgentID)

	replay := r.Replay()
	require.Len(t, replay, 3)
	for _, tr := range replay[:2] {
		assert.Zero(t, tr.Reward)
		assert.False(t, tr.Done)
	}
	last := replay[2]
	assert.True(t, last.Done)
	assert.InDelta(t, summary.Reward, last.Reward, 1e-12)
	assert.Equal(t, float64(9), last.State[0])
	assert.Len(t, last.NextState, StateSize(3))
	assert.Equal(t, replay[0].NextState, replay[1].State)

	require.Len(t, m.batches, 1)
	assert.Len(t, m.batches[0], 3)

	assert.Equal(t, 42, exp.agentID)
	assert.Equal(t, 7, exp.episode)
	assert.Len(t, exp.rows, 3)

	_, err = a.FinaliseEpisode(0)
	assert.Error(t, err)
}

func TestReinforcement_UnmatchedRaceRewardsZero(t *testing.T) {
	r, a := newRL(t, &mockModel{actions: ActionSize(3)}, nil)
	for tick := 5; tick <= 7; tick++ {
		a.ObserveRaceState(tick, tickDists(tick))
		require.NoError(t, a.Respond(float64(tick), bookSnap(a.Params(), 3, 4), nil))
	}
	drain(a)

	// nothing matched, so the settled balance equals the balance at the last decision
	a.SettleRace(1)
	summary, err := a.FinaliseEpisode(1)
	require.NoError(t, err)
	assert.Zero(t, summary.Reward)
	assert.Len(t, r.Replay(), 2)
}

func TestReinforcement_NoDecisions(t *testing.T) {
	m := &mockModel{actions: ActionSize(3)}
	exp := &mockExporter{}
	_, a := newRL(t, m, exp)

	summary, err := a.FinaliseEpisode(2)
	require.NoError(t, err)
	assert.False(t, summary.Trained)
	assert.Zero(t, summary.Reward)
	assert.Zero(t, summary.TotalActions)
	assert.Equal(t, -1, summary.MostCommonAction)
	assert.Equal(t, -1, summary.MostCommonCompetitor)
	assert.Empty(t, m.batches)
	assert.Nil(t, exp.rows)
}

func TestReinforcement_MostCommonCompetitorFollowsMostCommonAction(t *testing.T) {
	r := &Reinforcement{backs: []int{0, 2, 0}, lays: []int{3, 2, 0}}

	total, action, competitor := r.actionStats()
	assert.Equal(t, 7, total)
	assert.Equal(t, 1, action, "lay 0")
	// competitor 1 has more actions overall, but lay 0 is the top action
	assert.Equal(t, 0, competitor)
}

func TestReinforcement_NotLearningForOthers(t *testing.T) {
	a := newTestAgent(t, testParams(), &Favourite{favourite: -1})
	_, err := a.FinaliseEpisode(0)
	assert.ErrorIs(t, err, agent.ErrNotLearning)
}

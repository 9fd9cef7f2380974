package strategy

import (
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
)

// randomBetOdds is the per-tick chance (1 in 11) that a random agent bets.
const randomBetOdds = 11

// Random bets on a competitor and direction chosen at its first bet, at the
// counter-quote moved by a random tick.
type Random struct {
	direction domain.Direction
	picked    bool
}

func NewRandom(_ domain.Params, _ *rand.Rand, _ Deps) (agent.Strategy, error) {
	return &Random{}, nil
}

func (r *Random) Kind() kinds.Kind { return kinds.KindRandom }

func (r *Random) ObserveRaceState(_ *agent.Agent, _ int) {}

func (r *Random) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	rng := a.Rng()
	if rng.Intn(randomBetOdds) != 0 {
		return nil
	}
	if !r.picked {
		a.Choose(rng.Intn(a.Params().NumCompetitors))
		r.direction = domain.Direction(rng.Intn(2))
		r.picked = true
	}
	c, _ := a.Chosen()
	q, ok := snap.Quote(a.Exchange(), c)
	if !ok {
		return nil
	}
	delta := float64(rng.Intn(3)-1) * tick

	// a back crosses the lay book and vice versa
	counter := q.Lays
	if r.direction == domain.Lay {
		counter = q.Backs
	}
	if counter.Count == 0 {
		return nil
	}
	_, err := place(a, c, r.direction, counter.Best+delta, a.Stake(), q.QuoteID, t)
	return err
}

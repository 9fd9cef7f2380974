package strategy

import (
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
)

// Leader backs whoever is ahead on even ticks once a random warm-up is over.
type Leader struct {
	bettingTime int
	interval    int
}

func NewLeader(_ domain.Params, rng *rand.Rand, _ Deps) (agent.Strategy, error) {
	return &Leader{bettingTime: randBetween(rng, 5, 15), interval: 2}, nil
}

func (l *Leader) Kind() kinds.Kind { return kinds.KindLeader }

func (l *Leader) ObserveRaceState(_ *agent.Agent, _ int) {}

func (l *Leader) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	if !a.RaceStarted() || !everyInterval(a.Timestep(), l.bettingTime, l.interval) {
		return nil
	}
	ranked := rankByDistance(a.CurrentRaceState(), true)
	if len(ranked) == 0 {
		return nil
	}
	leader := ranked[0]
	a.Choose(leader)

	q, ok := snap.Quote(a.Exchange(), leader)
	if !ok {
		return nil
	}
	_, err := place(a, leader, domain.Back, q.BackPrice(tick), a.Stake(), q.QuoteID, t)
	return err
}

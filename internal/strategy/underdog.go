package strategy

import (
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
)

// maxUnderdogLiveBets stops an underdog agent from piling up unmatched bets.
const maxUnderdogLiveBets = 10

// Underdog waits for the runner-up to come within threshold of a leader
// other than the one it last bet against, then backs the runner-up and lays
// the leader.
type Underdog struct {
	bettingTime int
	threshold   float64
	job         Job
	leader      int
	runnerUp    int
}

func NewUnderdog(_ domain.Params, rng *rand.Rand, _ Deps) (agent.Strategy, error) {
	return &Underdog{
		bettingTime: randBetween(rng, 5, 15),
		threshold:   float64(randBetween(rng, 10, 35)),
		leader:      -1,
		runnerUp:    -1,
	}, nil
}

func (u *Underdog) Kind() kinds.Kind { return kinds.KindUnderdog }

func (u *Underdog) ObserveRaceState(a *agent.Agent, timestep int) {
	if timestep < u.bettingTime {
		return
	}
	dists := a.CurrentRaceState()
	ranked := rankByDistance(dists, true)
	if len(ranked) < 2 {
		return
	}
	lead, second := ranked[0], ranked[1]
	// the pair is only captured when a signal fires; the plan bets on it
	// even if the order changes before Respond
	if dists[lead] <= dists[second]+u.threshold && lead != u.leader {
		u.leader, u.runnerUp = lead, second
		u.job.Fire(EventSignal)
	}
}

func (u *Underdog) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	if a.LiveBets() >= maxUnderdogLiveBets || !a.RaceStarted() || a.Timestep() < u.bettingTime {
		return nil
	}
	switch u.job.State() {
	case JobBack:
		u.job.Fire(EventBackDone)
		a.Choose(u.runnerUp)
		q, ok := snap.Quote(a.Exchange(), u.runnerUp)
		if !ok {
			return nil
		}
		_, err := place(a, u.runnerUp, domain.Back, q.BackPrice(tick), a.Stake(), q.QuoteID, t)
		return err
	case JobLay:
		u.job.Fire(EventLayDone)
		q, ok := snap.Quote(a.Exchange(), u.leader)
		if !ok {
			return nil
		}
		_, err := place(a, u.leader, domain.Lay, q.LayPrice(tick), a.Stake(), q.QuoteID, t)
		return err
	}
	return nil
}

// Job exposes the current plan phase.
func (u *Underdog) Job() JobState { return u.job.State() }

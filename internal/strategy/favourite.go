package strategy

import (
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
)

// Favourite backs the market favourite, the competitor with the lowest best
// back odds, and bets again only when the favourite changes.
type Favourite struct {
	favourite int
}

func NewFavourite(_ domain.Params, _ *rand.Rand, _ Deps) (agent.Strategy, error) {
	return &Favourite{favourite: -1}, nil
}

func (f *Favourite) Kind() kinds.Kind { return kinds.KindFavourite }

func (f *Favourite) ObserveRaceState(_ *agent.Agent, _ int) {}

func (f *Favourite) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	fav, lowest := -1, 0.0
	for c := 0; c < a.Params().NumCompetitors; c++ {
		q, ok := snap.Quote(a.Exchange(), c)
		if !ok || q.Backs.Count == 0 {
			continue
		}
		if fav < 0 || q.Backs.Best < lowest {
			fav, lowest = c, q.Backs.Best
		}
	}
	if fav < 0 || fav == f.favourite {
		return nil
	}
	f.favourite = fav
	a.Choose(fav)

	q, _ := snap.Quote(a.Exchange(), fav)
	_, err := place(a, fav, domain.Back, lowest-tick, a.Stake(), q.QuoteID, t)
	return err
}

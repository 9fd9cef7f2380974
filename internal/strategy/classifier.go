package strategy

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
	"github.com/alejandrodnm/betpool/internal/ports"
)

// classifierStake is the stake feature the oracle was trained with.
const classifierStake = 15

// Classifier asks a pre-trained oracle, for every competitor, whether to
// back or lay it given its distance and current rank.
type Classifier struct {
	oracle      ports.Classifier
	bettingTime int
	interval    int
}

func NewClassifier(_ domain.Params, rng *rand.Rand, d Deps) (agent.Strategy, error) {
	if d.Classifier == nil {
		return nil, errors.New("classifier strategy needs a model")
	}
	return &Classifier{oracle: d.Classifier, bettingTime: randBetween(rng, 5, 15), interval: 2}, nil
}

func (c *Classifier) Kind() kinds.Kind { return kinds.KindClassifier }

func (c *Classifier) ObserveRaceState(_ *agent.Agent, _ int) {}

func (c *Classifier) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	if !a.RaceStarted() || !everyInterval(a.Timestep(), c.bettingTime, c.interval) {
		return nil
	}
	dists := a.CurrentRaceState()
	for rank, comp := range rankByDistance(dists, false) {
		features := []float64{t, classifierStake, dists[comp], float64(rank + 1)}
		pred, err := c.oracle.Predict(features)
		if err != nil {
			return fmt.Errorf("classifier: competitor %d: %w", comp, err)
		}
		q, ok := snap.Quote(a.Exchange(), comp)
		if !ok {
			continue
		}
		// rejected orders do not stop the sweep
		if pred == 1 {
			_, err = place(a, comp, domain.Back, q.BackPrice(tick), a.Stake(), q.QuoteID, t)
		} else {
			_, err = place(a, comp, domain.Lay, q.LayPrice(tick), a.Stake(), q.QuoteID, t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

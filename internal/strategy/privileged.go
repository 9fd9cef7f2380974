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

const (
	privilegedStake  = 10
	privilegedDelta  = 0.1
	privilegedUpdate = 1
)

// Privileged prices every competitor from model odds it has privileged
// access to: once before the race from the ex-ante odds, then in play from
// its opinion blended with the live model odds.
type Privileged struct {
	odds           ports.OddsSource
	updateInterval int
	backDelta      float64
	layDelta       float64

	betPreRace    bool
	latest        []float64
	lastProcessed int
}

func NewPrivileged(_ domain.Params, _ *rand.Rand, d Deps) (agent.Strategy, error) {
	if d.Odds == nil {
		return nil, errors.New("privileged strategy needs an odds source")
	}
	return &Privileged{
		odds:           d.Odds,
		updateInterval: privilegedUpdate,
		backDelta:      privilegedDelta,
		layDelta:       privilegedDelta,
		lastProcessed:  -1,
	}, nil
}

func (p *Privileged) Kind() kinds.Kind { return kinds.KindPrivileged }

func (p *Privileged) ObserveRaceState(_ *agent.Agent, _ int) {}

func (p *Privileged) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	if !a.RaceStarted() {
		if p.betPreRace {
			return nil
		}
		p.betPreRace = true
		return p.exAnte(a, t, snap)
	}
	step := a.Timestep()
	if step == p.lastProcessed || step%p.updateInterval != 0 {
		return nil
	}
	p.lastProcessed = step
	return p.inPlay(a, t, snap)
}

func (p *Privileged) exAnte(a *agent.Agent, t float64, snap domain.Snapshot) error {
	odds, err := p.odds.ExAnte()
	if err != nil {
		return fmt.Errorf("privileged: ex-ante odds: %w", err)
	}
	maxOdds := a.Params().MaxOdds
	for c, o := range odds {
		q, ok := snap.Quote(a.Exchange(), c)
		if !ok {
			continue
		}
		var placed bool
		if o >= maxOdds {
			if q.Backs.Count == 0 {
				continue
			}
			placed, err = place(a, c, domain.Lay, q.Backs.Best+p.layDelta, privilegedStake, q.QuoteID, t)
		} else {
			placed, err = place(a, c, domain.Back, o-p.backDelta, privilegedStake, q.QuoteID, t)
		}
		if err != nil || !placed {
			return err
		}
	}
	return nil
}

func (p *Privileged) inPlay(a *agent.Agent, t float64, snap domain.Snapshot) error {
	odds, err := p.odds.InPlay(a.Timestep())
	if err != nil {
		return fmt.Errorf("privileged: in-play odds: %w", err)
	}
	params := a.Params()
	if len(odds) != params.NumCompetitors {
		return fmt.Errorf("privileged: got %d in-play odds for %d competitors", len(odds), params.NumCompetitors)
	}
	op := a.Opinion()
	ref := params.ReferenceCompetitor
	if p.latest == nil || odds[ref] != p.latest[ref] {
		op.MixStrategy(odds[ref])
	}
	p.latest = odds

	omega := op.Omega()
	dists := a.CurrentRaceState()
	for c, o := range odds {
		q, ok := snap.Quote(a.Exchange(), c)
		if !ok {
			continue
		}
		var fair float64
		if belief := op.CompetitorOpinion(c, dists); belief > 0 {
			fair = 1 / belief
		}
		var placed bool
		switch {
		case o >= params.MaxOdds:
			if q.Backs.Count == 0 {
				continue
			}
			quote := q.Backs.Best + p.layDelta
			placed, err = place(a, c, domain.Lay, omega*fair+(1-omega)*quote, privilegedStake, q.QuoteID, t)
		case q.Backs.Count > 0 && o >= q.Backs.Best:
			continue
		default:
			quote := o - p.backDelta
			placed, err = place(a, c, domain.Back, omega*fair+(1-omega)*quote, privilegedStake, q.QuoteID, t)
		}
		if err != nil || !placed {
			return err
		}
	}
	return nil
}

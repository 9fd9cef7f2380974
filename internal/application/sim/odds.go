package sim

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/betpool/internal/domain"
)

const (
	exAnteSharpness = 8.0 // win weight is strength^k before the off
	inPlaySharpness = 4.0 // and (1/ticks to finish)^k in play
	minETA          = 0.5
)

// OddsModel implements ports.OddsSource from the race's hidden strengths.
// It is what the privileged strategy gets to see.
type OddsModel struct {
	p    domain.Params
	race *Race
}

// NewOddsModel prices race.
func NewOddsModel(p domain.Params, race *Race) *OddsModel {
	return &OddsModel{p: p, race: race}
}

// ExAnte prices every competitor from its strength alone.
func (m *OddsModel) ExAnte() ([]float64, error) {
	w := make([]float64, m.p.NumCompetitors)
	for c := range w {
		w[c] = math.Pow(m.race.Strength(c), exAnteSharpness)
	}
	return m.toOdds(w), nil
}

// InPlay prices every competitor from its expected ticks to the finish.
// Odds for a tick the race has not reached yet are not available.
func (m *OddsModel) InPlay(timestep int) ([]float64, error) {
	if timestep > m.race.Tick() {
		return nil, fmt.Errorf("sim.InPlay: tick %d not reached, race is at %d", timestep, m.race.Tick())
	}
	dists := m.race.Distances()
	w := make([]float64, m.p.NumCompetitors)
	for c := range w {
		s := m.race.Strength(c)
		if s <= 0 {
			continue
		}
		eta := math.Max(minETA, (m.race.Length()-dists[c])/s)
		w[c] = math.Pow(1/eta, inPlaySharpness)
	}
	return m.toOdds(w), nil
}

// toOdds normalises weights into fair odds. A competitor too unlikely to
// price gets MaxOdds, the signal to lay it.
func (m *OddsModel) toOdds(w []float64) []float64 {
	var total float64
	for _, x := range w {
		total += x
	}
	odds := make([]float64, len(w))
	for c, x := range w {
		if total <= 0 || x <= 0 {
			odds[c] = m.p.MaxOdds
			continue
		}
		odds[c] = m.p.ClampOdds(total / x)
	}
	return odds
}

// Package opinion keeps an agent's belief that the reference competitor wins.
//
// The belief blends three sources with weights a1, a2, a3 that always sum to
// one: the agent's own (local) view, the population (global) view and the
// race-event view derived from positions on the track. The privileged
// strategy adds a fourth, model-implied (strategy) view that is smoothed into
// the local one.
package opinion

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/domain"
)

const (
	MinUncertainty = 0.0
	MaxUncertainty = 2.0

	// StrategyWeight is the mixing weight used when smoothing the model-implied
	// opinion into the local one.
	StrategyWeight = 0.5

	// minRemaining keeps the inverse-square weighting finite at the finish line.
	minRemaining = 1e-3
)

// State is the opinion state of one agent. It is not safe for concurrent use.
type State struct {
	local       float64
	global      float64
	event       float64
	strategy    float64
	uncertainty float64
	a1, a2, a3  float64
	omega       float64

	lower, upper float64
	n            int
	reference    int
	raceLength   float64
}

// New builds a State with the default 0.8/0.2/0 weights. local and
// uncertainty are saturated to their bounds.
func New(p domain.Params, local, uncertainty, omega float64) *State {
	s := &State{
		global:     1 / float64(p.NumCompetitors),
		event:      1 / float64(p.NumCompetitors),
		strategy:   1 / float64(p.NumCompetitors),
		a1:         0.8,
		a2:         0.2,
		a3:         0,
		omega:      omega,
		lower:      p.OpinionLower,
		upper:      p.OpinionUpper,
		n:          p.NumCompetitors,
		reference:  p.ReferenceCompetitor,
		raceLength: p.RaceLength,
	}
	s.SetLocal(local)
	s.SetUncertainty(uncertainty)
	return s
}

// SetLocal saturates x to the opinion bounds and returns the stored value.
func (s *State) SetLocal(x float64) float64 {
	s.local = clamp(x, s.lower, s.upper)
	return s.local
}

// SetUncertainty saturates x to [0, 2] and returns the stored value.
func (s *State) SetUncertainty(x float64) float64 {
	s.uncertainty = clamp(x, MinUncertainty, MaxUncertainty)
	return s.uncertainty
}

// SetGlobal stores the population opinion, saturated to [0, 1].
func (s *State) SetGlobal(x float64) {
	s.global = clamp(x, 0, 1)
}

// SetEvent stores the race-event opinion, saturated to [0, 1].
func (s *State) SetEvent(x float64) {
	s.event = clamp(x, 0, 1)
}

// SetWeights replaces the blend weights, normalised so they sum to one.
func (s *State) SetWeights(a1, a2, a3 float64) error {
	if a1 < 0 || a2 < 0 || a3 < 0 {
		return fmt.Errorf("opinion.SetWeights: negative weight (%.3f, %.3f, %.3f)", a1, a2, a3)
	}
	sum := a1 + a2 + a3
	if sum <= 0 {
		return fmt.Errorf("opinion.SetWeights: weights sum to %.3f", sum)
	}
	s.a1 = a1 / sum
	s.a2 = a2 / sum
	s.a3 = 1 - s.a1 - s.a2
	return nil
}

func (s *State) Weights() (a1, a2, a3 float64) { return s.a1, s.a2, s.a3 }
func (s *State) Local() float64                { return s.local }
func (s *State) Global() float64               { return s.global }
func (s *State) Event() float64                { return s.event }
func (s *State) Strategy() float64             { return s.strategy }
func (s *State) Uncertainty() float64          { return s.uncertainty }
func (s *State) Omega() float64                { return s.omega }

// Opinion is the blended belief in the reference competitor.
func (s *State) Opinion() float64 {
	return s.a1*s.local + s.a2*s.global + s.a3*s.event
}

// Pick resamples the local opinion after the agent settles on a new
// competitor: picking the reference competitor signals confidence in it,
// picking any other signals scepticism.
func (s *State) Pick(competitor int, rng *rand.Rand) {
	floor := 1 / float64(s.n)
	if competitor == s.reference {
		s.SetLocal(floor + rng.Float64()*(1-floor))
		return
	}
	s.SetLocal(rng.Float64() * floor)
}

// MixStrategy derives the strategy opinion from the reference competitor's
// model odds and smooths it into the local opinion.
func (s *State) MixStrategy(referenceOdds float64) {
	if referenceOdds <= 0 {
		return
	}
	s.strategy = clamp(domain.ImpliedProbability(referenceOdds), 0, 1)
	s.SetLocal((1-StrategyWeight)*s.local + StrategyWeight*s.strategy)
}

// CompetitorOpinion is the belief that competitor wins. For the reference
// competitor it is Opinion; for the rest the local and global beliefs are the
// uniform split of their complement and the event belief comes from the
// positions in dists.
func (s *State) CompetitorOpinion(competitor int, dists map[int]float64) float64 {
	if competitor == s.reference {
		return s.Opinion()
	}
	others := float64(s.n - 1)
	local := (1 - s.local) / others
	global := (1 - s.global) / others
	return s.a1*local + s.a2*global + s.a3*s.eventComplement(competitor, dists)
}

func (s *State) eventComplement(competitor int, dists map[int]float64) float64 {
	if s.event == 0 || s.event == 1 {
		return 1 - s.event
	}
	return EventShare(competitor, dists, s.raceLength, s.n)
}

// EventShare weights every observed competitor by the inverse square of its
// remaining distance and returns competitor's share. Without positions, or for
// an unobserved competitor, the share is uniform.
func EventShare(competitor int, dists map[int]float64, raceLength float64, n int) float64 {
	if len(dists) == 0 {
		return 1 / float64(n)
	}
	d, ok := dists[competitor]
	if !ok {
		return 1 / float64(n)
	}
	var total float64
	for _, c := range dists {
		total += inverseSquare(c, raceLength)
	}
	if total == 0 {
		return 1 / float64(n)
	}
	return inverseSquare(d, raceLength) / total
}

func inverseSquare(dist, raceLength float64) float64 {
	remaining := math.Max(raceLength-dist, minRemaining)
	r := raceLength / remaining
	return r * r
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Min(math.Max(x, lo), hi)
}

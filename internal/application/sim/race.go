// Package sim runs betting races: it moves the competitors, keeps one
// in-memory exchange per venue, feeds the agents and settles the result.
package sim

import (
	"math"
	"math/rand"
)

const (
	minSpeed     = 9.0
	maxSpeed     = 11.0
	formSpread   = 0.1  // hidden form multiplies speed by U[1-s, 1+s]
	stepNoise    = 0.15 // relative noise of each tick's progress
	injuryChance = 0.0005
)

// Race is one race's physics. Competitors have a base speed and a hidden
// form known only to the odds model; each tick they advance by a noisy
// multiple of their strength. An injured competitor stops for good.
type Race struct {
	length   float64
	maxTicks int
	rng      *rand.Rand

	strength []float64
	injured  []bool
	dists    []float64
	tick     int
	winner   int
}

// NewRace draws n competitors. maxTicks <= 0 means no tick limit.
func NewRace(n int, length float64, maxTicks int, rng *rand.Rand) *Race {
	r := &Race{
		length:   length,
		maxTicks: maxTicks,
		rng:      rng,
		strength: make([]float64, n),
		injured:  make([]bool, n),
		dists:    make([]float64, n),
		winner:   -1,
	}
	for c := range r.strength {
		speed := minSpeed + rng.Float64()*(maxSpeed-minSpeed)
		form := 1 - formSpread + rng.Float64()*2*formSpread
		r.strength[c] = speed * form
	}
	return r
}

// Step advances the race one tick. It reports true once the race is over.
func (r *Race) Step() bool {
	if r.Finished() {
		return true
	}
	r.tick++
	for c := range r.dists {
		if r.injured[c] {
			continue
		}
		if r.rng.Float64() < injuryChance && r.healthy() > 1 {
			r.injured[c] = true
			continue
		}
		step := r.strength[c] * (1 + stepNoise*r.rng.NormFloat64())
		r.dists[c] = math.Min(r.length, r.dists[c]+math.Max(0, step))
	}

	leader := r.leader()
	if r.dists[leader] >= r.length || (r.maxTicks > 0 && r.tick >= r.maxTicks) {
		r.winner = leader
	}
	return r.Finished()
}

// Finished reports whether a winner is known.
func (r *Race) Finished() bool { return r.winner >= 0 }

// Winner returns the winner once the race is over.
func (r *Race) Winner() (int, bool) { return r.winner, r.winner >= 0 }

// Tick is the number of steps run so far.
func (r *Race) Tick() int { return r.tick }

// Length is the distance to the finish line.
func (r *Race) Length() float64 { return r.length }

// Distances returns a fresh copy of the current positions keyed by competitor.
func (r *Race) Distances() map[int]float64 {
	out := make(map[int]float64, len(r.dists))
	for c, d := range r.dists {
		out[c] = d
	}
	return out
}

// Strength is competitor's expected progress per tick, zero once injured.
func (r *Race) Strength(c int) float64 {
	if r.injured[c] {
		return 0
	}
	return r.strength[c]
}

// Injured reports whether competitor has stopped.
func (r *Race) Injured(c int) bool { return r.injured[c] }

// leader is the furthest competitor, the lowest id on ties.
func (r *Race) leader() int {
	best := 0
	for c := 1; c < len(r.dists); c++ {
		if r.dists[c] > r.dists[best] {
			best = c
		}
	}
	return best
}

func (r *Race) healthy() int {
	n := 0
	for _, inj := range r.injured {
		if !inj {
			n++
		}
	}
	return n
}

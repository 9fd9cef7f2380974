// Package strategy implements the betting policies plugged into agents and
// the registry that builds them by kind.
package strategy

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
	"github.com/alejandrodnm/betpool/internal/ports"
	"github.com/alejandrodnm/betpool/internal/rl"
)

// ErrUnknownKind is returned when no factory is registered for a kind.
var ErrUnknownKind = errors.New("strategy: unknown kind")

// tick is the price improvement applied over the best quote.
const tick = 0.1

// Deps carries the collaborators some strategies need. Unused fields may be nil.
type Deps struct {
	Odds       ports.OddsSource
	Classifier ports.Classifier
	Trainer    *rl.Trainer
	Exporter   ports.ReplayExporter
	RL         RLConfig
	RaceNo     int
}

// Factory builds a strategy. rng is the owning agent's source.
type Factory func(p domain.Params, rng *rand.Rand, d Deps) (agent.Strategy, error)

// Registry maps each kind to the factory that builds it.
type Registry map[kinds.Kind]Factory

// NewRegistry returns an empty registry.
func NewRegistry() Registry {
	return make(Registry)
}

// NewDefaultRegistry returns a registry with every built-in kind.
func NewDefaultRegistry() Registry {
	r := NewRegistry()
	r.RegisterDefaults()
	return r
}

// RegisterDefaults registers every built-in kind.
func (r Registry) RegisterDefaults() {
	r.Register(kinds.KindRandom, NewRandom)
	r.Register(kinds.KindLeader, NewLeader)
	r.Register(kinds.KindUnderdog, NewUnderdog)
	r.Register(kinds.KindFavourite, NewFavourite)
	r.Register(kinds.KindLinex, NewLinex)
	r.Register(kinds.KindPrivileged, NewPrivileged)
	r.Register(kinds.KindClassifier, NewClassifier)
	r.Register(kinds.KindRL, NewReinforcement)
}

// Register adds or replaces the factory for k.
func (r Registry) Register(k kinds.Kind, f Factory) {
	r[k] = f
}

// Get returns the factory for k.
func (r Registry) Get(k kinds.Kind) (Factory, bool) {
	f, ok := r[k]
	return f, ok
}

// Build creates a strategy of kind k.
func (r Registry) Build(k kinds.Kind, p domain.Params, rng *rand.Rand, d Deps) (agent.Strategy, error) {
	f, ok := r.Get(k)
	if !ok {
		return nil, fmt.Errorf("strategy.Build: %q: %w", k, ErrUnknownKind)
	}
	s, err := f(p, rng, d)
	if err != nil {
		return nil, fmt.Errorf("strategy.Build: %q: %w", k, err)
	}
	return s, nil
}

// randBetween draws an integer uniformly from [lo, hi].
func randBetween(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

// onSchedule reports whether step is a betting tick for a strategy that
// starts at bettingTime and bets every interval ticks after it.
func onSchedule(step, bettingTime, interval int) bool {
	if step < bettingTime {
		return false
	}
	return (step-bettingTime)%interval == 0
}

// everyInterval reports whether step is a betting tick for a strategy that
// bets on multiples of interval once the warm-up is over.
func everyInterval(step, bettingTime, interval int) bool {
	return step >= bettingTime && step%interval == 0
}

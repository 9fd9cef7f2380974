// Package agent holds the state every betting agent shares, whatever its
// strategy: the money ledger with admission control, the opinion state, the
// pending order queue and the race telemetry pushed by the driver.
package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/alejandrodnm/betpool/internal/domain/strategy"
	"github.com/alejandrodnm/betpool/internal/opinion"
	"github.com/shopspring/decimal"
)

// ErrNotLearning is returned by FinaliseEpisode for strategies that do not train.
var ErrNotLearning = errors.New("agent: strategy does not learn")

// Strategy is the decision policy plugged into an Agent.
type Strategy interface {
	Kind() strategy.Kind

	// ObserveRaceState runs after the agent has recorded the tick's telemetry.
	ObserveRaceState(a *Agent, timestep int)

	// Respond may queue orders through a.Place. It must not block.
	Respond(a *Agent, t float64, snap domain.Snapshot, last *domain.Trade) error
}

// Learner is implemented by strategies that train at the end of each race.
type Learner interface {
	FinaliseEpisode(a *Agent, winner int) (domain.EpisodeSummary, error)
}

// Config builds an Agent.
type Config struct {
	ID           int
	Params       domain.Params
	Exchange     int
	LocalOpinion float64
	Uncertainty  float64
	Omega        float64
	Rng          *rand.Rand
	Logger       *slog.Logger
}

// Agent is one bettor. It is owned by a single goroutine at a time.
type Agent struct {
	id       int
	params   domain.Params
	exchange int
	rng      *rand.Rand
	log      *slog.Logger
	strategy Strategy
	opinion  *opinion.State

	balance          decimal.Decimal
	fromOrders       decimal.Decimal
	fromTransactions decimal.Decimal
	orders           []domain.Order
	open             map[string]openOrder
	trades           []domain.Trade
	positions        []domain.Position
	liveBets         int
	placed           int

	chosen        int
	current       map[int]float64
	history       map[int][]float64
	timestep      int
	raceStarted   bool
	bettingPeriod bool
}

// New builds an agent running s.
func New(cfg Config, s Strategy) (*Agent, error) {
	if s == nil {
		return nil, fmt.Errorf("agent.New: agent %d: nil strategy", cfg.ID)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("agent.New: %w", err)
	}
	if cfg.Exchange < 0 || cfg.Exchange >= cfg.Params.NumExchanges {
		return nil, fmt.Errorf("agent.New: agent %d: exchange %d out of range", cfg.ID, cfg.Exchange)
	}
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(int64(cfg.ID)))
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		id:            cfg.ID,
		params:        cfg.Params,
		exchange:      cfg.Exchange,
		rng:           rng,
		log:           log.With("agent", cfg.ID, "kind", string(s.Kind())),
		strategy:      s,
		opinion:       opinion.New(cfg.Params, cfg.LocalOpinion, cfg.Uncertainty, cfg.Omega),
		balance:       decimal.NewFromFloat(cfg.Params.InitialBalance),
		open:          make(map[string]openOrder),
		chosen:        -1,
		current:       make(map[int]float64),
		history:       make(map[int][]float64),
		bettingPeriod: true,
	}, nil
}

func (a *Agent) ID() int                      { return a.id }
func (a *Agent) Kind() strategy.Kind          { return a.strategy.Kind() }
func (a *Agent) Params() domain.Params        { return a.params }
func (a *Agent) Exchange() int                { return a.exchange }
func (a *Agent) Rng() *rand.Rand              { return a.rng }
func (a *Agent) Logger() *slog.Logger         { return a.log }
func (a *Agent) Opinion() *opinion.State      { return a.opinion }
func (a *Agent) Strategy() Strategy           { return a.strategy }
func (a *Agent) Timestep() int                { return a.timestep }
func (a *Agent) RaceStarted() bool            { return a.raceStarted }
func (a *Agent) BettingPeriod() bool          { return a.bettingPeriod }
func (a *Agent) PendingOrders() int           { return len(a.orders) }
func (a *Agent) Trades() []domain.Trade       { return a.trades }
func (a *Agent) Positions() []domain.Position { return a.positions }

// CurrentRaceState maps competitor to latest distance. Callers must not modify it.
func (a *Agent) CurrentRaceState() map[int]float64 { return a.current }

// History returns the recorded distances of a competitor, oldest first.
func (a *Agent) History(competitor int) []float64 { return a.history[competitor] }

// Chosen returns the active pick, if any.
func (a *Agent) Chosen() (int, bool) { return a.chosen, a.chosen >= 0 }

// Choose makes competitor the active pick. A new pick resamples the local
// opinion; reports whether the pick changed.
func (a *Agent) Choose(competitor int) bool {
	if a.chosen == competitor {
		return false
	}
	a.chosen = competitor
	a.opinion.Pick(competitor, a.rng)
	return true
}

// Stake draws a stake uniformly from the configured range.
func (a *Agent) Stake() int {
	lo, hi := a.params.StakeLower, a.params.StakeHigher
	return lo + a.rng.Intn(hi-lo+1)
}

// ObserveRaceState records the distances of a tick. Stale timesteps are ignored.
func (a *Agent) ObserveRaceState(timestep int, dists map[int]float64) {
	if a.raceStarted && timestep < a.timestep {
		return
	}
	a.raceStarted = true
	a.timestep = timestep
	a.bettingPeriod = timestep < a.params.InPlayEnd
	for c, d := range dists {
		a.current[c] = d
		a.history[c] = append(a.history[c], d)
	}
	a.opinion.SetEvent(opinion.EventShare(a.params.ReferenceCompetitor, a.current, a.params.RaceLength, a.params.NumCompetitors))
	a.strategy.ObserveRaceState(a, timestep)
}

// Respond lets the strategy react to the market. Nothing happens once the
// betting window has closed.
func (a *Agent) Respond(t float64, snap domain.Snapshot, last *domain.Trade) error {
	if !a.bettingPeriod {
		return nil
	}
	if err := a.strategy.Respond(a, t, snap, last); err != nil {
		return fmt.Errorf("agent.Respond: agent %d: %w", a.id, err)
	}
	return nil
}

// GetOrder pops the most recently queued order.
func (a *Agent) GetOrder() (domain.Order, bool) {
	if !a.bettingPeriod || len(a.orders) == 0 {
		return domain.Order{}, false
	}
	last := len(a.orders) - 1
	o := a.orders[last]
	a.orders = a.orders[:last]
	return o, true
}

// Place builds an order on the agent's exchange and submits it to admission.
func (a *Agent) Place(competitor int, dir domain.Direction, odds float64, stake, quoteID int, t float64) error {
	o, err := domain.NewOrder(a.params, a.exchange, a.id, competitor, dir, odds, stake, quoteID, t)
	if err != nil {
		return fmt.Errorf("agent.Place: %w", err)
	}
	return a.Submit(o)
}

// FinaliseEpisode hands the race outcome to a learning strategy.
func (a *Agent) FinaliseEpisode(winner int) (domain.EpisodeSummary, error) {
	l, ok := a.strategy.(Learner)
	if !ok {
		return domain.EpisodeSummary{}, ErrNotLearning
	}
	summary, err := l.FinaliseEpisode(a, winner)
	if err != nil {
		return domain.EpisodeSummary{}, fmt.Errorf("agent.FinaliseEpisode: agent %d: %w", a.id, err)
	}
	return summary, nil
}

// Result summarises the agent for persistence.
func (a *Agent) Result(initial float64) domain.AgentResult {
	final := a.Balance()
	return domain.AgentResult{
		AgentID:      a.id,
		Kind:         string(a.Kind()),
		FinalBalance: final,
		PnL:          final - initial,
		Trades:       len(a.trades),
		Orders:       a.placed,
	}
}

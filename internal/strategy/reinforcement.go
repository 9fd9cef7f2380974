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

// rewardScale divides the race PnL into the terminal reward.
const rewardScale = 100

// RLConfig tunes when the RL agent acts.
type RLConfig struct {
	BettingTime     int
	BettingInterval int
	ReplayCapacity  int
}

// DefaultRLConfig acts from tick 5, every other tick.
func DefaultRLConfig() RLConfig {
	return RLConfig{BettingTime: 5, BettingInterval: 2, ReplayCapacity: rl.DefaultCapacity}
}

// Reinforcement picks one (competitor, direction) action per betting tick
// from a learned value function. Rewards are unknown until the race
// settles, so every transition carries zero reward until FinaliseEpisode
// appends the terminal one.
type Reinforcement struct {
	trainer  *rl.Trainer
	buffer   *rl.Buffer
	exporter ports.ReplayExporter
	raceNo   int
	cfg      RLConfig

	snap          domain.Snapshot
	lastProcessed int
	lastState     []float64
	lastAction    int
	hasLast       bool
	balanceAtLast float64
	backs         []int
	lays          []int
	finalised     bool
}

func NewReinforcement(p domain.Params, _ *rand.Rand, d Deps) (agent.Strategy, error) {
	if d.Trainer == nil {
		return nil, errors.New("rl strategy needs a trainer")
	}
	cfg := d.RL
	if cfg.BettingTime <= 0 {
		cfg.BettingTime = DefaultRLConfig().BettingTime
	}
	if cfg.BettingInterval <= 0 {
		cfg.BettingInterval = DefaultRLConfig().BettingInterval
	}
	return &Reinforcement{
		trainer:       d.Trainer,
		buffer:        rl.NewBuffer(cfg.ReplayCapacity),
		exporter:      d.Exporter,
		raceNo:        d.RaceNo,
		cfg:           cfg,
		lastProcessed: -1,
		backs:         make([]int, p.NumCompetitors),
		lays:          make([]int, p.NumCompetitors),
	}, nil
}

func (r *Reinforcement) Kind() kinds.Kind { return kinds.KindRL }

func (r *Reinforcement) ObserveRaceState(_ *agent.Agent, _ int) {}

// StateSize is the length of the encoded state for n competitors.
func StateSize(n int) int { return 1 + 2*n }

// ActionSize is the number of actions for n competitors.
func ActionSize(n int) int { return 2 * n }

// Encode builds the state vector: the timestep, every competitor's distance
// and every competitor's best back odds (worst-case price when nobody
// backs, 1 before any market is seen).
func (r *Reinforcement) Encode(a *agent.Agent) []float64 {
	n := a.Params().NumCompetitors
	state := make([]float64, 0, StateSize(n))
	state = append(state, float64(a.Timestep()))
	dists := a.CurrentRaceState()
	for c := 0; c < n; c++ {
		state = append(state, dists[c])
	}
	for c := 0; c < n; c++ {
		price := 1.0
		if q, ok := r.snap.Quote(a.Exchange(), c); ok {
			price = q.BestBackOrWorst()
		}
		state = append(state, price)
	}
	return state
}

func (r *Reinforcement) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	r.snap = snap
	step := a.Timestep()
	if !a.RaceStarted() || step == r.lastProcessed || !onSchedule(step, r.cfg.BettingTime, r.cfg.BettingInterval) {
		return nil
	}
	r.lastProcessed = step

	n := a.Params().NumCompetitors
	state := r.Encode(a)
	action, err := r.trainer.SelectAction(state, ActionSize(n), a.Rng())
	if err != nil {
		return fmt.Errorf("rl: select action: %w", err)
	}
	if r.hasLast {
		r.buffer.Append(domain.Transition{
			State:     r.lastState,
			Action:    r.lastAction,
			NextState: state,
		})
	}
	r.lastState, r.lastAction, r.hasLast = state, action, true
	r.balanceAtLast = a.Balance()

	competitor, back := action/2, action%2 == 0
	if back {
		r.backs[competitor]++
	} else {
		r.lays[competitor]++
	}
	q, ok := snap.Quote(a.Exchange(), competitor)
	if !ok {
		return nil
	}
	if back {
		_, err = place(a, competitor, domain.Back, q.BackPrice(tick), a.Stake(), q.QuoteID, t)
	} else {
		_, err = place(a, competitor, domain.Lay, q.LayPrice(tick), a.Stake(), q.QuoteID, t)
	}
	return err
}

// FinaliseEpisode appends the terminal transition, trains on the episode
// and exports the replay buffer. Call it after the race has settled so the
// agent's balance includes the race result.
func (r *Reinforcement) FinaliseEpisode(a *agent.Agent, winner int) (domain.EpisodeSummary, error) {
	if r.finalised {
		return domain.EpisodeSummary{}, errors.New("rl: episode already finalised")
	}
	r.finalised = true

	summary := domain.EpisodeSummary{
		AgentID:              a.ID(),
		Trades:               len(a.Trades()),
		BacksPerCompetitor:   append([]int(nil), r.backs...),
		LaysPerCompetitor:    append([]int(nil), r.lays...),
		MostCommonAction:     -1,
		MostCommonCompetitor: -1,
		Winner:               winner,
	}

	if r.hasLast {
		summary.Reward = (a.Balance() - r.balanceAtLast) / rewardScale
		r.buffer.Finalise(domain.Transition{
			State:     r.lastState,
			Action:    r.lastAction,
			Reward:    summary.Reward,
			NextState: r.Encode(a),
		})
	}

	loss, trained, err := r.trainer.Train(r.buffer.Entries())
	if err != nil {
		return domain.EpisodeSummary{}, fmt.Errorf("rl: train: %w", err)
	}
	summary.Loss, summary.Trained = loss, trained

	if r.hasLast {
		q, err := r.trainer.QValues(r.lastState)
		if err != nil {
			return domain.EpisodeSummary{}, fmt.Errorf("rl: q-values: %w", err)
		}
		summary.AvgQ = mean(q)
	}

	summary.TotalActions, summary.MostCommonAction, summary.MostCommonCompetitor = r.actionStats()
	summary.Epsilon = r.trainer.Epsilon()
	summary.TrainingStep = r.trainer.Steps()

	if r.exporter != nil && r.buffer.Len() > 0 {
		if err := r.exporter.ExportReplay(a.ID(), r.raceNo, r.buffer.Entries()); err != nil {
			return domain.EpisodeSummary{}, fmt.Errorf("rl: export replay: %w", err)
		}
	}
	return summary, nil
}

// Replay returns the episode's transitions.
func (r *Reinforcement) Replay() []domain.Transition { return r.buffer.Entries() }

// actionStats counts the episode's actions. The most common competitor is
// the one the most common action targets.
func (r *Reinforcement) actionStats() (total, action, competitor int) {
	action, competitor = -1, -1
	best := 0
	for c := range r.backs {
		total += r.backs[c] + r.lays[c]
		if r.backs[c] > best {
			best, action = r.backs[c], 2*c
		}
		if r.lays[c] > best {
			best, action = r.lays[c], 2*c+1
		}
	}
	if action >= 0 {
		competitor = action / 2
	}
	return total, action, competitor
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

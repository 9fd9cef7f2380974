package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/alejandrodnm/betpool/internal/opinion"
	"github.com/alejandrodnm/betpool/internal/strategy"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"
)

// raceRun is the state of one race: fresh agents, fresh exchanges.
type raceRun struct {
	no        int
	p         domain.Params
	cfg       Config
	log       *slog.Logger
	race      *Race
	agents    []*agent.Agent
	byID      map[int]*agent.Agent
	learners  []*agent.Agent
	exchanges []*Exchange
	rng       *rand.Rand
	trades    int
}

// newRun draws the race and spawns the population. Every agent gets its own
// rng seeded from the simulator's, so a run is reproducible from Config.Seed.
func (s *Simulator) newRun(raceNo int) (*raceRun, error) {
	race := NewRace(s.p.NumCompetitors, s.p.RaceLength, s.cfg.MaxTicks, rand.New(rand.NewSource(s.rng.Int63())))
	odds := NewOddsModel(s.p, race)

	r := &raceRun{
		no:   raceNo,
		p:    s.p,
		cfg:  s.cfg,
		log:  s.log.With("race", raceNo),
		race: race,
		byID: make(map[int]*agent.Agent),
		rng:  rand.New(rand.NewSource(s.rng.Int63())),
	}
	for e := 0; e < s.p.NumExchanges; e++ {
		r.exchanges = append(r.exchanges, NewExchange(e, s.p))
	}

	id, slot := 0, 0
	for _, pop := range s.cfg.Population {
		for i := 0; i < pop.Count; i++ {
			rng := rand.New(rand.NewSource(s.rng.Int63()))
			d := strategy.Deps{
				Odds:       odds,
				Classifier: s.deps.Classifier,
				Exporter:   s.deps.Exporter,
				RL:         s.cfg.RL,
				RaceNo:     raceNo,
			}
			if pop.Kind.Learns() {
				d.Trainer = s.trainers[slot]
				slot++
			}
			st, err := s.deps.Registry.Build(pop.Kind, s.p, rng, d)
			if err != nil {
				return nil, fmt.Errorf("sim.newRun: agent %d: %w", id, err)
			}
			a, err := agent.New(agent.Config{
				ID:           id,
				Params:       s.p,
				Exchange:     id % s.p.NumExchanges,
				LocalOpinion: s.p.OpinionLower + rng.Float64()*(s.p.OpinionUpper-s.p.OpinionLower),
				Uncertainty:  rng.Float64() * opinion.MaxUncertainty,
				Omega:        rng.Float64(),
				Rng:          rng,
				Logger:       r.log,
			}, st)
			if err != nil {
				return nil, fmt.Errorf("sim.newRun: %w", err)
			}
			r.agents = append(r.agents, a)
			r.byID[id] = a
			if pop.Kind.Learns() {
				r.learners = append(r.learners, a)
			}
			id++
		}
	}
	return r, nil
}

// play runs the pre-race market, then ticks the race until it finishes.
func (r *raceRun) play(ctx context.Context, limiter *rate.Limiter) error {
	for i := r.cfg.PreRaceTicks; i > 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.respond(float64(-i)); err != nil {
			return err
		}
		if err := r.match(); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		finished := r.race.Step()
		tick := r.race.Tick()
		r.observe(tick, r.race.Distances())
		if finished {
			return nil
		}
		if r.cfg.ShareOpinions {
			r.shareOpinions()
		}
		if tick >= r.p.InPlayEnd {
			continue
		}
		if err := r.respond(float64(tick)); err != nil {
			return err
		}
		if err := r.match(); err != nil {
			return err
		}
	}
}

// observe pushes the tick's telemetry to every agent concurrently. dists is
// only read.
func (r *raceRun) observe(tick int, dists map[int]float64) {
	var wg conc.WaitGroup
	for _, a := range r.agents {
		wg.Go(func() {
			a.ObserveRaceState(tick, dists)
		})
	}
	wg.Wait()
}

// shareOpinions sets every agent's global opinion to the population's mean
// local opinion.
func (r *raceRun) shareOpinions() {
	var sum float64
	for _, a := range r.agents {
		sum += a.Opinion().Local()
	}
	mean := sum / float64(len(r.agents))
	for _, a := range r.agents {
		a.Opinion().SetGlobal(mean)
	}
}

// respond lets every agent react to the same snapshot concurrently.
func (r *raceRun) respond(t float64) error {
	snap := r.snapshot()
	errs := make([]error, len(r.agents))
	var wg conc.WaitGroup
	for i, a := range r.agents {
		wg.Go(func() {
			errs[i] = a.Respond(t, snap, r.exchanges[a.Exchange()].LastTrade())
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// match drains the agents' queues in a random order, sending each order to
// its exchange and booking every fill on both sides.
func (r *raceRun) match() error {
	for _, i := range r.rng.Perm(len(r.agents)) {
		a := r.agents[i]
		for {
			o, ok := a.GetOrder()
			if !ok {
				break
			}
			fills, err := r.exchanges[o.ExchangeID].Submit(o)
			if err != nil {
				return fmt.Errorf("sim.match: agent %d: %w", a.ID(), err)
			}
			for _, f := range fills {
				r.byID[f.Trade.BackerID].Bookkeep(f.Trade, domain.Backer, f.Back, f.Trade.Time)
				r.byID[f.Trade.LayerID].Bookkeep(f.Trade, domain.Layer, f.Lay, f.Trade.Time)
				r.trades++
			}
		}
	}
	return nil
}

func (r *raceRun) snapshot() domain.Snapshot {
	rows := make([][]domain.Quote, len(r.exchanges))
	for i, ex := range r.exchanges {
		rows[i] = ex.Quotes()
	}
	return domain.Snapshot{Quotes: rows}
}

// settle cancels what is still resting, pays out every agent and lets the
// RL agents learn from the race.
func (r *raceRun) settle() (domain.RaceResult, error) {
	winner, ok := r.race.Winner()
	if !ok {
		return domain.RaceResult{}, errors.New("race has no winner")
	}
	for _, ex := range r.exchanges {
		for _, o := range ex.CancelAll() {
			r.byID[o.AgentID].Cancel(o.ID)
		}
	}

	result := domain.RaceResult{
		ID:         uuid.New().String(),
		RaceNo:     r.no,
		Winner:     winner,
		Ticks:      r.race.Tick(),
		FinishedAt: time.Now().UTC(),
	}
	for _, a := range r.agents {
		a.SettleRace(winner)
		result.Agents = append(result.Agents, a.Result(r.p.InitialBalance))
	}
	for _, a := range r.learners {
		summary, err := a.FinaliseEpisode(winner)
		if err != nil {
			return domain.RaceResult{}, err
		}
		result.Episodes = append(result.Episodes, summary)
	}
	return result, nil
}

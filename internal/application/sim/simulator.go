package sim

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
	"github.com/alejandrodnm/betpool/internal/ports"
	"github.com/alejandrodnm/betpool/internal/rl"
	"github.com/alejandrodnm/betpool/internal/strategy"
	"golang.org/x/time/rate"
)

// Population is how many agents of a kind race.
type Population struct {
	Kind  kinds.Kind
	Count int
}

// Config drives a simulation run.
type Config struct {
	Races           int
	MaxTicks        int // 0 = until someone finishes
	PreRaceTicks    int // market ticks before the off
	ShareOpinions   bool
	TicksPerSecond  float64 // 0 = unpaced
	Seed            int64
	Population      []Population
	RL              strategy.RLConfig
	Trainer         rl.TrainerConfig
	CheckpointDir   string // empty = no checkpoints
	LoadCheckpoints bool
	CurveWindow     int
}

// Deps are the simulator's collaborators. Storage, Publisher, Reporter and
// Exporter are optional.
type Deps struct {
	Registry   strategy.Registry
	NewModel   func() (ports.ValueModel, error)
	Classifier ports.Classifier
	Storage    ports.RaceStorage
	Publisher  ports.Publisher
	Reporter   ports.Reporter
	Exporter   ports.ReplayExporter
	Logger     *slog.Logger
}

// Simulator runs races back to back. Agents are rebuilt for every race;
// the RL trainers live as long as the Simulator, one per RL slot.
type Simulator struct {
	cfg      Config
	p        domain.Params
	deps     Deps
	rng      *rand.Rand
	trainers []*rl.Trainer
	limiter  *rate.Limiter
	log      *slog.Logger
	raceNo   int
}

// New validates cfg and builds one trainer per RL agent, restoring
// checkpoints when asked to.
func New(cfg Config, p domain.Params, d Deps) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("sim.New: %w", err)
	}
	if d.Registry == nil {
		d.Registry = strategy.NewDefaultRegistry()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	agents, rlSlots := 0, 0
	for _, pop := range cfg.Population {
		if pop.Count < 0 {
			return nil, fmt.Errorf("sim.New: negative count for %s", pop.Kind)
		}
		if _, ok := d.Registry.Get(pop.Kind); !ok {
			return nil, fmt.Errorf("sim.New: %q: %w", pop.Kind, strategy.ErrUnknownKind)
		}
		if pop.Kind == kinds.KindClassifier && pop.Count > 0 && d.Classifier == nil {
			return nil, errors.New("sim.New: classifier agents need a classifier model")
		}
		agents += pop.Count
		if pop.Kind.Learns() {
			rlSlots += pop.Count
		}
	}
	if agents == 0 {
		return nil, errors.New("sim.New: empty population")
	}
	if rlSlots > 0 && d.NewModel == nil {
		return nil, errors.New("sim.New: rl agents need a model factory")
	}

	s := &Simulator{
		cfg:  cfg,
		p:    p,
		deps: d,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		log:  d.Logger,
	}
	if cfg.TicksPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.TicksPerSecond), 1)
	}

	for slot := 0; slot < rlSlots; slot++ {
		model, err := d.NewModel()
		if err != nil {
			return nil, fmt.Errorf("sim.New: model for rl slot %d: %w", slot, err)
		}
		t := rl.NewTrainer(model, cfg.Trainer, d.Logger.With("rl_slot", slot))
		if cfg.LoadCheckpoints && cfg.CheckpointDir != "" {
			if err := s.loadCheckpoint(slot, t); err != nil {
				return nil, err
			}
		}
		s.trainers = append(s.trainers, t)
	}
	return s, nil
}

// Trainers returns the per-slot trainers in population order.
func (s *Simulator) Trainers() []*rl.Trainer { return s.trainers }

// Run simulates cfg.Races races, stopping early when ctx is cancelled.
// Checkpoints are saved and the per-kind report printed either way.
func (s *Simulator) Run(ctx context.Context) error {
	s.log.Info("sim: starting",
		"races", s.cfg.Races,
		"competitors", s.p.NumCompetitors,
		"exchanges", s.p.NumExchanges,
		"rl_slots", len(s.trainers),
		"seed", s.cfg.Seed,
	)

	var runErr error
	for i := 0; i < s.cfg.Races; i++ {
		if _, err := s.RunRace(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Info("sim: stopped", "races_run", i)
				break
			}
			runErr = err
			break
		}
	}

	if err := s.saveCheckpoints(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}
	s.report(context.WithoutCancel(ctx))
	return nil
}

// RunRace simulates one race end to end and persists its result.
func (s *Simulator) RunRace(ctx context.Context) (domain.RaceResult, error) {
	raceNo := s.raceNo
	s.raceNo++

	r, err := s.newRun(raceNo)
	if err != nil {
		return domain.RaceResult{}, err
	}
	if err := r.play(ctx, s.limiter); err != nil {
		return domain.RaceResult{}, fmt.Errorf("sim.RunRace: race %d: %w", raceNo, err)
	}

	result, err := r.settle()
	if err != nil {
		return domain.RaceResult{}, fmt.Errorf("sim.RunRace: race %d: %w", raceNo, err)
	}
	s.publish(ctx, result)

	s.log.Info("sim: race finished",
		"race", raceNo,
		"winner", result.Winner,
		"ticks", result.Ticks,
		"trades", r.trades,
	)
	return result, nil
}

// publish hands the result to every sink. Failures are logged and the run
// goes on.
func (s *Simulator) publish(ctx context.Context, result domain.RaceResult) {
	if s.deps.Publisher != nil {
		for _, e := range result.Episodes {
			if err := s.deps.Publisher.PublishEpisode(ctx, result.ID, e); err != nil {
				s.log.Warn("sim: publish error", "agent", e.AgentID, "err", err)
			}
		}
	}
	if s.deps.Storage != nil {
		if err := s.deps.Storage.SaveRace(ctx, result); err != nil {
			s.log.Warn("sim: storage error", "race", result.RaceNo, "err", err)
		}
	}
	if s.deps.Reporter != nil {
		if err := s.deps.Reporter.ReportRace(ctx, result); err != nil {
			s.log.Warn("sim: reporter error", "err", err)
		}
	}
}

// report prints the per-kind evaluation and logs where each RL agent's
// learning curve ended.
func (s *Simulator) report(ctx context.Context) {
	if s.deps.Storage == nil {
		return
	}
	stats, err := s.deps.Storage.KindStats(ctx, s.p.InitialBalance)
	if err != nil {
		s.log.Warn("sim: kind stats", "err", err)
		return
	}
	if s.deps.Reporter != nil {
		if err := s.deps.Reporter.ReportKinds(ctx, stats); err != nil {
			s.log.Warn("sim: reporter error", "err", err)
		}
	}

	window := s.cfg.CurveWindow
	if window <= 0 {
		window = 10
	}
	for _, id := range s.rlAgentIDs() {
		curve, err := s.deps.Storage.LearningCurve(ctx, id, window)
		if err != nil {
			s.log.Warn("sim: learning curve", "agent", id, "err", err)
			continue
		}
		if len(curve) == 0 {
			continue
		}
		last := curve[len(curve)-1]
		s.log.Info("sim: learning curve",
			"agent", id,
			"episodes", len(curve),
			"mean_reward", last.MeanReward,
			"window", window,
		)
	}
}

// rlAgentIDs lists the ids RL agents get; ids follow population order.
func (s *Simulator) rlAgentIDs() []int {
	var ids []int
	id := 0
	for _, pop := range s.cfg.Population {
		for i := 0; i < pop.Count; i++ {
			if pop.Kind.Learns() {
				ids = append(ids, id)
			}
			id++
		}
	}
	return ids
}

func (s *Simulator) checkpointPath(slot int) string {
	return filepath.Join(s.cfg.CheckpointDir, fmt.Sprintf("rl_slot_%d.json", slot))
}

func (s *Simulator) loadCheckpoint(slot int, t *rl.Trainer) error {
	path := s.checkpointPath(slot)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		s.log.Info("sim: no checkpoint, starting fresh", "rl_slot", slot, "path", path)
		return nil
	}
	if err := t.Load(path); err != nil {
		return fmt.Errorf("sim.New: checkpoint for rl slot %d: %w", slot, err)
	}
	s.log.Info("sim: checkpoint loaded", "rl_slot", slot, "step", t.Steps())
	return nil
}

func (s *Simulator) saveCheckpoints() error {
	if s.cfg.CheckpointDir == "" || len(s.trainers) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.cfg.CheckpointDir, 0o755); err != nil {
		return fmt.Errorf("sim.saveCheckpoints: %w", err)
	}
	for slot, t := range s.trainers {
		if err := t.Save(s.checkpointPath(slot)); err != nil {
			return fmt.Errorf("sim.saveCheckpoints: slot %d: %w", slot, err)
		}
	}
	s.log.Info("sim: checkpoints saved", "dir", s.cfg.CheckpointDir, "slots", len(s.trainers))
	return nil
}

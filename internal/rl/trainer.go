package rl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/alejandrodnm/betpool/internal/ports"
)

// TrainerConfig tunes exploration and target syncing.
type TrainerConfig struct {
	Schedule        EpsilonSchedule
	TargetSyncEvery int
}

// DefaultTrainerConfig returns the configuration used by the simulator.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{Schedule: DefaultEpsilonSchedule(), TargetSyncEvery: 100}
}

// Trainer drives a ValueModel across episodes: it chooses actions
// epsilon-greedily, runs training steps and syncs the target network on
// schedule. A Trainer belongs to one agent slot and outlives its races.
type Trainer struct {
	model ports.ValueModel
	cfg   TrainerConfig
	steps int
	log   *slog.Logger
}

// NewTrainer wraps model.
func NewTrainer(model ports.ValueModel, cfg TrainerConfig, log *slog.Logger) *Trainer {
	if cfg.TargetSyncEvery <= 0 {
		cfg.TargetSyncEvery = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Trainer{model: model, cfg: cfg, log: log}
}

// Steps is the number of training steps run so far.
func (t *Trainer) Steps() int { return t.steps }

// Epsilon is the current exploration rate.
func (t *Trainer) Epsilon() float64 { return t.cfg.Schedule.At(t.steps) }

// QValues returns the online network's estimates for state.
func (t *Trainer) QValues(state []float64) ([]float64, error) {
	q, err := t.model.Predict(state)
	if err != nil {
		return nil, fmt.Errorf("rl.QValues: %w", err)
	}
	return q, nil
}

// SelectAction explores with probability Epsilon and otherwise returns the
// action with the highest Q-value.
func (t *Trainer) SelectAction(state []float64, numActions int, rng *rand.Rand) (int, error) {
	if numActions <= 0 {
		return 0, fmt.Errorf("rl.SelectAction: no actions")
	}
	if rng.Float64() < t.Epsilon() {
		return rng.Intn(numActions), nil
	}
	q, err := t.QValues(state)
	if err != nil {
		return 0, err
	}
	if len(q) != numActions {
		return 0, fmt.Errorf("rl.SelectAction: model returned %d values for %d actions", len(q), numActions)
	}
	return Argmax(q), nil
}

// Train runs one step over batch. An empty batch is a no-op and reports
// ok=false.
func (t *Trainer) Train(batch []domain.Transition) (loss float64, ok bool, err error) {
	if len(batch) == 0 {
		return 0, false, nil
	}
	loss, err = t.model.TrainStep(batch)
	if err != nil {
		return 0, false, fmt.Errorf("rl.Train: step %d: %w", t.steps+1, err)
	}
	t.steps++
	if t.steps%t.cfg.TargetSyncEvery == 0 {
		t.model.SyncTarget()
		t.log.Debug("rl: target synced", "step", t.steps)
	}
	return loss, true, nil
}

type checkpointMeta struct {
	Steps int `json:"steps"`
}

// Save writes the model to path and the step counter next to it.
func (t *Trainer) Save(path string) error {
	if err := t.model.Save(path); err != nil {
		return fmt.Errorf("rl.Save: %w", err)
	}
	data, err := json.Marshal(checkpointMeta{Steps: t.steps})
	if err != nil {
		return fmt.Errorf("rl.Save: encode meta: %w", err)
	}
	if err := os.WriteFile(metaPath(path), data, 0o644); err != nil {
		return fmt.Errorf("rl.Save: write meta: %w", err)
	}
	return nil
}

// Load restores a checkpoint written by Save. A missing or corrupt
// checkpoint is an error.
func (t *Trainer) Load(path string) error {
	if err := t.model.Load(path); err != nil {
		return fmt.Errorf("rl.Load: %w", err)
	}
	data, err := os.ReadFile(metaPath(path))
	if err != nil {
		return fmt.Errorf("rl.Load: read meta: %w", err)
	}
	var meta checkpointMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("rl.Load: parse meta: %w", err)
	}
	t.steps = meta.Steps
	return nil
}

func metaPath(path string) string { return path + ".meta.json" }

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

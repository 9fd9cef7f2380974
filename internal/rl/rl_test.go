package rl_test

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/alejandrodnm/betpool/internal/rl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockModel keeps one scalar "weight" per network so syncs are observable.
type mockModel struct {
	online  float64
	target  float64
	q       []float64
	trained int
	saved   string
	loadErr error
}

func (m *mockModel) Predict(_ []float64) ([]float64, error) { return m.q, nil }

func (m *mockModel) TrainStep(batch []domain.Transition) (float64, error) {
	m.trained++
	m.online += 1
	return float64(len(batch)), nil
}

func (m *mockModel) SyncTarget() { m.target = m.online }

func (m *mockModel) Save(path string) error {
	m.saved = path
	return nil
}

func (m *mockModel) Load(_ string) error { return m.loadErr }

func TestEpsilon_ConstantDuringWarmup(t *testing.T) {
	s := rl.EpsilonSchedule{Floor: 0.01, WarmupSteps: 30, DecaySteps: 70}
	for step := 0; step <= 30; step++ {
		assert.Equal(t, 0.01, s.At(step))
	}
}

func TestEpsilon_LinearDecay(t *testing.T) {
	s := rl.EpsilonSchedule{Floor: 0.01, WarmupSteps: 30, DecaySteps: 70}
	slope := (1 - 0.01) / 70.0

	prev := s.At(31)
	assert.InDelta(t, 1-slope, prev, 1e-12)
	for step := 32; step < 100; step++ {
		cur := s.At(step)
		assert.Less(t, cur, prev)
		assert.InDelta(t, slope, prev-cur, 1e-12)
		prev = cur
	}
}

func TestEpsilon_FloorAfterHorizon(t *testing.T) {
	s := rl.DefaultEpsilonSchedule()
	for _, step := range []int{10000, 10001, 50000} {
		assert.InDelta(t, 0.01, s.At(step), 1e-12)
	}
}

func TestBuffer_CapacityDropsOldest(t *testing.T) {
	b := rl.NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Append(domain.Transition{Action: i})
	}
	require.Equal(t, 3, b.Len())
	assert.Equal(t, 2, b.Entries()[0].Action)
	assert.Equal(t, 4, b.Entries()[2].Action)
}

func TestBuffer_FinaliseOnlyLastRewarded(t *testing.T) {
	b := rl.NewBuffer(0)
	for i := 0; i < 4; i++ {
		b.Append(domain.Transition{State: []float64{float64(i)}, Action: i, Reward: 3})
	}
	b.Finalise(domain.Transition{Action: 9, Reward: 1.25})

	entries := b.Entries()
	require.Len(t, entries, 5)
	for _, e := range entries[:4] {
		assert.Equal(t, 0.0, e.Reward)
		assert.False(t, e.Done)
	}
	last := entries[4]
	assert.Equal(t, 1.25, last.Reward)
	assert.True(t, last.Done)

	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestTrainer_EmptyBatchIsNoop(t *testing.T) {
	m := &mockModel{}
	tr := rl.NewTrainer(m, rl.DefaultTrainerConfig(), nil)

	loss, ok, err := tr.Train(nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0.0, loss)
	assert.Equal(t, 0, tr.Steps())
	assert.Equal(t, 0, m.trained)
}

func TestTrainer_TargetSyncSchedule(t *testing.T) {
	m := &mockModel{}
	tr := rl.NewTrainer(m, rl.TrainerConfig{Schedule: rl.DefaultEpsilonSchedule(), TargetSyncEvery: 5}, nil)
	batch := []domain.Transition{{Action: 0}}

	for step := 1; step <= 23; step++ {
		before := m.target
		_, ok, err := tr.Train(batch)
		require.NoError(t, err)
		require.True(t, ok)

		if step%5 == 0 {
			assert.Equal(t, m.online, m.target, "step %d", step)
		} else {
			assert.Equal(t, before, m.target, "step %d", step)
		}
	}
	assert.Equal(t, 23, tr.Steps())
}

func TestTrainer_SelectActionGreedyAtFloor(t *testing.T) {
	m := &mockModel{q: []float64{0.1, 0.7, 0.3, 0.7}}
	tr := rl.NewTrainer(m, rl.TrainerConfig{Schedule: rl.EpsilonSchedule{Floor: 0, WarmupSteps: 10}}, nil)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20; i++ {
		a, err := tr.SelectAction([]float64{1}, 4, rng)
		require.NoError(t, err)
		assert.Equal(t, 1, a)
	}
}

func TestTrainer_SelectActionExploresAtOne(t *testing.T) {
	m := &mockModel{q: []float64{1, 0, 0, 0}}
	tr := rl.NewTrainer(m, rl.TrainerConfig{Schedule: rl.EpsilonSchedule{Floor: 1}}, nil)
	rng := rand.New(rand.NewSource(2))

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		a, err := tr.SelectAction(nil, 4, rng)
		require.NoError(t, err)
		seen[a] = true
	}
	assert.Len(t, seen, 4)
}

func TestTrainer_SelectActionShapeMismatch(t *testing.T) {
	m := &mockModel{q: []float64{1, 2}}
	tr := rl.NewTrainer(m, rl.TrainerConfig{Schedule: rl.EpsilonSchedule{Floor: 0}}, nil)
	_, err := tr.SelectAction(nil, 4, rand.New(rand.NewSource(3)))
	assert.Error(t, err)
}

func TestTrainer_SaveLoadSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-3.json")
	m := &mockModel{}
	tr := rl.NewTrainer(m, rl.DefaultTrainerConfig(), nil)
	for i := 0; i < 7; i++ {
		_, _, err := tr.Train([]domain.Transition{{}})
		require.NoError(t, err)
	}
	require.NoError(t, tr.Save(path))
	assert.Equal(t, path, m.saved)

	restored := rl.NewTrainer(&mockModel{}, rl.DefaultTrainerConfig(), nil)
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 7, restored.Steps())
}

func TestTrainer_LoadFailures(t *testing.T) {
	tr := rl.NewTrainer(&mockModel{loadErr: errors.New("corrupt")}, rl.DefaultTrainerConfig(), nil)
	assert.Error(t, tr.Load("whatever"))

	tr = rl.NewTrainer(&mockModel{}, rl.DefaultTrainerConfig(), nil)
	assert.Error(t, tr.Load(filepath.Join(t.TempDir(), "missing.json")))
}

func TestArgmax_FirstOnTies(t *testing.T) {
	assert.Equal(t, 0, rl.Argmax([]float64{2, 2, 1}))
	assert.Equal(t, 2, rl.Argmax([]float64{-3, -2, -1}))
}

package sim_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alejandrodnm/betpool/internal/application/sim"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
	"github.com/alejandrodnm/betpool/internal/ports"
	"github.com/alejandrodnm/betpool/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockModel always predicts zeros, so greedy RL agents back competitor 0.
type mockModel struct {
	actions int
	steps   int
}

func (m *mockModel) Predict(_ []float64) ([]float64, error) {
	return make([]float64, m.actions), nil
}

func (m *mockModel) TrainStep(batch []domain.Transition) (float64, error) {
	m.steps++
	return float64(len(batch)), nil
}

func (m *mockModel) SyncTarget() {}

func (m *mockModel) Save(path string) error { return os.WriteFile(path, []byte("{}"), 0o644) }
func (m *mockModel) Load(path string) error {
	_, err := os.ReadFile(path)
	return err
}

// mockOracle backs the leader and lays everyone else.
type mockOracle struct{}

func (mockOracle) Predict(f []float64) (int, error) {
	if f[3] == 1 {
		return 1, nil
	}
	return 0, nil
}

type mockStorage struct {
	mu    sync.Mutex
	races []domain.RaceResult
	stats int
}

func (m *mockStorage) SaveRace(_ context.Context, r domain.RaceResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.races = append(m.races, r)
	return nil
}

func (m *mockStorage) KindStats(_ context.Context, _ float64) ([]domain.KindStats, error) {
	m.stats++
	return []domain.KindStats{{Kind: "rl"}}, nil
}

func (m *mockStorage) LearningCurve(_ context.Context, _, _ int) ([]domain.CurvePoint, error) {
	return nil, nil
}

func (m *mockStorage) Close() error { return nil }

type mockReporter struct {
	races int
	kinds int
}

func (m *mockReporter) ReportRace(_ context.Context, _ domain.RaceResult) error {
	m.races++
	return nil
}

func (m *mockReporter) ReportKinds(_ context.Context, _ []domain.KindStats) error {
	m.kinds++
	return nil
}

type mockPublisher struct {
	episodes int
}

func (m *mockPublisher) PublishEpisode(_ context.Context, _ string, _ domain.EpisodeSummary) error {
	m.episodes++
	return nil
}

func fullPopulation() []sim.Population {
	var pop []sim.Population
	for _, k := range kinds.AllKinds() {
		pop = append(pop, sim.Population{Kind: k, Count: 2})
	}
	return pop
}

func newSim(t *testing.T, cfg sim.Config, st *mockStorage, rep *mockReporter, pub *mockPublisher) *sim.Simulator {
	t.Helper()
	p := testParams()
	d := sim.Deps{
		NewModel: func() (ports.ValueModel, error) {
			return &mockModel{actions: strategy.ActionSize(p.NumCompetitors)}, nil
		},
		Classifier: mockOracle{},
	}
	if st != nil {
		d.Storage = st
	}
	if rep != nil {
		d.Reporter = rep
	}
	if pub != nil {
		d.Publisher = pub
	}
	s, err := sim.New(cfg, p, d)
	require.NoError(t, err)
	return s
}

func baseConfig() sim.Config {
	return sim.Config{
		Races:         3,
		PreRaceTicks:  3,
		ShareOpinions: true,
		Seed:          11,
		Population:    fullPopulation(),
	}
}

func TestSimulator_RunPersistsEveryRace(t *testing.T) {
	st, rep, pub := &mockStorage{}, &mockReporter{}, &mockPublisher{}
	s := newSim(t, baseConfig(), st, rep, pub)

	require.NoError(t, s.Run(context.Background()))

	require.Len(t, st.races, 3)
	assert.Equal(t, 3, rep.races)
	assert.Equal(t, 1, rep.kinds)
	assert.Equal(t, 1, st.stats)
	assert.Equal(t, 6, pub.episodes)

	for i, r := range st.races {
		assert.Equal(t, i, r.RaceNo)
		assert.NotEmpty(t, r.ID)
		assert.Len(t, r.Agents, 16)
		assert.Len(t, r.Episodes, 2)
		assert.GreaterOrEqual(t, r.Winner, 0)

		// the exchange only moves money between agents
		var total float64
		for _, a := range r.Agents {
			total += a.PnL
		}
		assert.InDelta(t, 0, total, 1e-3, "race %d", i)
	}

	for _, tr := range s.Trainers() {
		assert.Equal(t, 3, tr.Steps())
	}
}

func TestSimulator_Deterministic(t *testing.T) {
	run := func() []domain.RaceResult {
		st := &mockStorage{}
		s := newSim(t, baseConfig(), st, nil, nil)
		require.NoError(t, s.Run(context.Background()))
		return st.races
	}
	a, b := run(), run()
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Winner, b[i].Winner)
		assert.Equal(t, a[i].Ticks, b[i].Ticks)
		for j := range a[i].Agents {
			assert.Equal(t, a[i].Agents[j].PnL, b[i].Agents[j].PnL)
			assert.Equal(t, a[i].Agents[j].Trades, b[i].Agents[j].Trades)
		}
	}
}

func TestSimulator_CancelledContext(t *testing.T) {
	st := &mockStorage{}
	s := newSim(t, baseConfig(), st, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Empty(t, st.races)
}

func TestSimulator_Checkpoints(t *testing.T) {
	dir := t.TempDir()
	cfg := baseConfig()
	cfg.Races = 2
	cfg.CheckpointDir = dir

	s := newSim(t, cfg, nil, nil, nil)
	require.NoError(t, s.Run(context.Background()))
	assert.FileExists(t, filepath.Join(dir, "rl_slot_0.json"))
	assert.FileExists(t, filepath.Join(dir, "rl_slot_1.json.meta.json"))

	cfg.LoadCheckpoints = true
	resumed := newSim(t, cfg, nil, nil, nil)
	for _, tr := range resumed.Trainers() {
		assert.Equal(t, 2, tr.Steps())
	}
}

func TestSimulator_MissingCheckpointStartsFresh(t *testing.T) {
	cfg := baseConfig()
	cfg.CheckpointDir = t.TempDir()
	cfg.LoadCheckpoints = true

	s := newSim(t, cfg, nil, nil, nil)
	for _, tr := range s.Trainers() {
		assert.Zero(t, tr.Steps())
	}
}

func TestNew_Validation(t *testing.T) {
	p := testParams()
	model := func() (ports.ValueModel, error) { return &mockModel{actions: 6}, nil }

	_, err := sim.New(sim.Config{}, p, sim.Deps{})
	assert.Error(t, err, "empty population")

	_, err = sim.New(sim.Config{Population: []sim.Population{{Kind: "martingale", Count: 1}}}, p, sim.Deps{})
	assert.ErrorIs(t, err, strategy.ErrUnknownKind)

	_, err = sim.New(sim.Config{Population: []sim.Population{{Kind: kinds.KindClassifier, Count: 1}}}, p, sim.Deps{})
	assert.Error(t, err, "classifier without model")

	_, err = sim.New(sim.Config{Population: []sim.Population{{Kind: kinds.KindRL, Count: 1}}}, p, sim.Deps{})
	assert.Error(t, err, "rl without model factory")

	s, err := sim.New(sim.Config{Population: []sim.Population{{Kind: kinds.KindRL, Count: 2}}}, p, sim.Deps{NewModel: model})
	require.NoError(t, err)
	assert.Len(t, s.Trainers(), 2)

	bad := p
	bad.NumCompetitors = 1
	_, err = sim.New(sim.Config{Population: []sim.Population{{Kind: kinds.KindRandom, Count: 1}}}, bad, sim.Deps{})
	assert.Error(t, err)
}

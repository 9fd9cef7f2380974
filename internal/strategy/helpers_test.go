package strategy

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/alejandrodnm/betpool/internal/rl"
	"github.com/stretchr/testify/require"
)

func testParams() domain.Params {
	p := domain.DefaultParams()
	p.NumCompetitors = 3
	return p
}

func newTestAgent(t *testing.T, p domain.Params, s agent.Strategy) *agent.Agent {
	t.Helper()
	a, err := agent.New(agent.Config{
		ID:           42,
		Params:       p,
		LocalOpinion: 0.5,
		Uncertainty:  1,
		Omega:        0.5,
		Rng:          rand.New(rand.NewSource(5)),
	}, s)
	require.NoError(t, err)
	return a
}

// bookSnap quotes every competitor with one back at back and one lay at lay.
func bookSnap(p domain.Params, back, lay float64) domain.Snapshot {
	row := make([]domain.Quote, p.NumCompetitors)
	for c := range row {
		row[c] = domain.Quote{
			Backs:   domain.BookSide{Best: back, Worst: back, Count: 1},
			Lays:    domain.BookSide{Best: lay, Worst: lay, Count: 1},
			QuoteID: c + 1,
		}
	}
	return domain.Snapshot{Quotes: [][]domain.Quote{row}}
}

// emptySnap quotes nobody; the worst-case prices apply.
func emptySnap(p domain.Params) domain.Snapshot {
	row := make([]domain.Quote, p.NumCompetitors)
	for c := range row {
		row[c] = domain.Quote{
			Backs: domain.BookSide{Worst: p.MaxOdds},
			Lays:  domain.BookSide{Worst: p.MinOdds},
		}
	}
	return domain.Snapshot{Quotes: [][]domain.Quote{row}}
}

func drain(a *agent.Agent) []domain.Order {
	var out []domain.Order
	for {
		o, ok := a.GetOrder()
		if !ok {
			return out
		}
		out = append(out, o)
	}
}

type mockOracle struct {
	decide func(features []float64) int
	err    error
	calls  int
}

func (m *mockOracle) Predict(features []float64) (int, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	if len(features) != 4 {
		return 0, errors.New("bad features")
	}
	return m.decide(features), nil
}

type mockOdds struct {
	exAnte []float64
	inPlay []float64
	err    error
}

func (m *mockOdds) ExAnte() ([]float64, error)      { return m.exAnte, m.err }
func (m *mockOdds) InPlay(_ int) ([]float64, error) { return m.inPlay, m.err }

type mockModel struct {
	actions int
	batches [][]domain.Transition
}

func (m *mockModel) Predict(_ []float64) ([]float64, error) {
	return make([]float64, m.actions), nil
}

func (m *mockModel) TrainStep(batch []domain.Transition) (float64, error) {
	m.batches = append(m.batches, batch)
	return 0.5, nil
}

func (m *mockModel) SyncTarget() {}

func (m *mockModel) Save(_ string) error { return nil }
func (m *mockModel) Load(_ string) error { return nil }

func greedyTrainer(m *mockModel) *rl.Trainer {
	return rl.NewTrainer(m, rl.TrainerConfig{Schedule: rl.EpsilonSchedule{Floor: 0}}, nil)
}

type mockExporter struct {
	agentID, episode int
	rows             []domain.Transition
}

func (m *mockExporter) ExportReplay(agentID, episode int, rows []domain.Transition) error {
	m.agentID, m.episode, m.rows = agentID, episode, rows
	return nil
}

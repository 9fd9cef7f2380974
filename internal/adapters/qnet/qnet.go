// Package qnet implements ports.ValueModel with go-deep feed-forward networks.
//
// The online network is trained with Adam on the squared TD error of the
// action actually taken; the target network only changes on SyncTarget.
// Networks hold activation state, so a QNet must not be shared between
// goroutines.
package qnet

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/alejandrodnm/betpool/internal/domain"
	deep "github.com/patrikeh/go-deep"
	"github.com/patrikeh/go-deep/training"
)

// Config shapes the network and the optimizer.
type Config struct {
	Inputs       int
	Actions      int
	Hidden       []int
	LearningRate float64
	Gamma        float64
	MaxGradNorm  float64
	InitStdDev   float64
}

// DefaultConfig returns two hidden layers of 128 ReLU units.
func DefaultConfig(inputs, actions int) Config {
	return Config{
		Inputs:       inputs,
		Actions:      actions,
		Hidden:       []int{128, 128},
		LearningRate: 1e-3,
		Gamma:        0.99,
		MaxGradNorm:  1.0,
		InitStdDev:   0.1,
	}
}

// QNet is an online network, its target copy and their Adam state.
type QNet struct {
	cfg       Config
	online    *deep.Neural
	target    *deep.Neural
	solver    training.Solver
	iteration int
}

// New builds a QNet whose target starts as an exact copy of the online network.
func New(cfg Config) (*QNet, error) {
	if cfg.Inputs <= 0 || cfg.Actions <= 0 {
		return nil, fmt.Errorf("qnet.New: invalid shape %d -> %d", cfg.Inputs, cfg.Actions)
	}
	if cfg.InitStdDev <= 0 {
		cfg.InitStdDev = 0.1
	}
	layout := append(append([]int{}, cfg.Hidden...), cfg.Actions)
	dcfg := &deep.Config{
		Inputs:     cfg.Inputs,
		Layout:     layout,
		Activation: deep.ActivationReLU,
		Mode:       deep.ModeRegression,
		Weight:     deep.NewNormal(cfg.InitStdDev, 0.0),
		Bias:       true,
	}
	online := deep.NewNeural(dcfg)
	target := deep.FromDump(online.Dump())

	q := &QNet{cfg: cfg, online: online, target: target}
	q.resetSolver()
	return q, nil
}

func (q *QNet) resetSolver() {
	q.solver = training.NewAdam(q.cfg.LearningRate, 0.9, 0.999, 1e-8)
	q.solver.Init(countWeights(q.online))
	q.iteration = 0
}

// Predict returns the online Q-values for state.
func (q *QNet) Predict(state []float64) ([]float64, error) {
	if len(state) != q.cfg.Inputs {
		return nil, fmt.Errorf("qnet.Predict: state has %d features, want %d", len(state), q.cfg.Inputs)
	}
	return q.online.Predict(state), nil
}

// TrainStep runs one Adam step on the mean squared TD error of batch, with
// the gradient rescaled when its global norm exceeds MaxGradNorm.
func (q *QNet) TrainStep(batch []domain.Transition) (float64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	grads := zeroGrads(q.online)
	scale := 2 / float64(len(batch))
	var loss float64

	for i, tr := range batch {
		if err := q.validate(tr); err != nil {
			return 0, fmt.Errorf("qnet.TrainStep: transition %d: %w", i, err)
		}
		target := tr.Reward
		if !tr.Done {
			target += q.cfg.Gamma * maxOf(q.target.Predict(tr.NextState))
		}
		if err := q.online.Forward(tr.State); err != nil {
			return 0, fmt.Errorf("qnet.TrainStep: forward: %w", err)
		}
		out := q.online.Layers[len(q.online.Layers)-1].Neurons[tr.Action].Value
		diff := out - target
		loss += diff * diff
		q.accumulate(tr.Action, scale*diff, grads)
	}
	loss /= float64(len(batch))

	clipByNorm(grads, q.cfg.MaxGradNorm)
	q.apply(grads)
	return loss, nil
}

func (q *QNet) validate(tr domain.Transition) error {
	if len(tr.State) != q.cfg.Inputs {
		return fmt.Errorf("state has %d features, want %d", len(tr.State), q.cfg.Inputs)
	}
	if !tr.Done && len(tr.NextState) != q.cfg.Inputs {
		return fmt.Errorf("next state has %d features, want %d", len(tr.NextState), q.cfg.Inputs)
	}
	if tr.Action < 0 || tr.Action >= q.cfg.Actions {
		return fmt.Errorf("action %d out of range", tr.Action)
	}
	return nil
}

// accumulate backpropagates dOut through the output neuron of action and
// adds the weight gradients of the last forward pass to grads.
func (q *QNet) accumulate(action int, dOut float64, grads [][][]float64) {
	layers := q.online.Layers
	last := len(layers) - 1
	deltas := make([][]float64, len(layers))
	for i, l := range layers {
		deltas[i] = make([]float64, len(l.Neurons))
	}
	out := layers[last].Neurons[action]
	deltas[last][action] = dOut * out.DActivate(out.Value)

	for i := last - 1; i >= 0; i-- {
		for j, n := range layers[i].Neurons {
			var sum float64
			for k, s := range n.Out {
				sum += s.Weight * deltas[i+1][k]
			}
			deltas[i][j] = n.DActivate(n.Value) * sum
		}
	}

	for i, l := range layers {
		for j, n := range l.Neurons {
			if deltas[i][j] == 0 {
				continue
			}
			for k, s := range n.In {
				grads[i][j][k] += deltas[i][j] * s.In
			}
		}
	}
}

func (q *QNet) apply(grads [][][]float64) {
	q.iteration++
	idx := 0
	for i, l := range q.online.Layers {
		for j, n := range l.Neurons {
			for k, s := range n.In {
				s.Weight += q.solver.Update(s.Weight, grads[i][j][k], q.iteration, idx)
				idx++
			}
		}
	}
}

// SyncTarget copies the online weights into the target network.
func (q *QNet) SyncTarget() {
	q.target.ApplyWeights(q.online.Weights())
}

// OnlineWeights and TargetWeights expose copies of the weights.
func (q *QNet) OnlineWeights() [][][]float64 { return q.online.Weights() }
func (q *QNet) TargetWeights() [][][]float64 { return q.target.Weights() }

type checkpoint struct {
	Online *deep.Dump `json:"online"`
	Target *deep.Dump `json:"target"`
}

// Save writes both networks as go-deep dumps. Optimizer moments are not saved.
func (q *QNet) Save(path string) error {
	data, err := json.Marshal(checkpoint{Online: q.online.Dump(), Target: q.target.Dump()})
	if err != nil {
		return fmt.Errorf("qnet.Save: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("qnet.Save: write %q: %w", path, err)
	}
	return nil
}

// Load replaces both networks with the checkpoint at path. The checkpoint
// must match the configured shape.
func (q *QNet) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("qnet.Load: read %q: %w", path, err)
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("qnet.Load: parse %q: %w", path, err)
	}
	if err := q.checkDump(cp.Online); err != nil {
		return fmt.Errorf("qnet.Load: online: %w", err)
	}
	if err := q.checkDump(cp.Target); err != nil {
		return fmt.Errorf("qnet.Load: target: %w", err)
	}
	q.online = deep.FromDump(cp.Online)
	q.target = deep.FromDump(cp.Target)
	q.resetSolver()
	return nil
}

func (q *QNet) checkDump(d *deep.Dump) error {
	if d == nil || d.Config == nil {
		return fmt.Errorf("missing network")
	}
	layout := d.Config.Layout
	if d.Config.Inputs != q.cfg.Inputs || len(layout) == 0 || layout[len(layout)-1] != q.cfg.Actions {
		return fmt.Errorf("shape %d -> %v does not match %d -> %d", d.Config.Inputs, layout, q.cfg.Inputs, q.cfg.Actions)
	}
	if len(d.Weights) != len(layout) {
		return fmt.Errorf("weights cover %d layers, want %d", len(d.Weights), len(layout))
	}
	return nil
}

func zeroGrads(n *deep.Neural) [][][]float64 {
	g := make([][][]float64, len(n.Layers))
	for i, l := range n.Layers {
		g[i] = make([][]float64, len(l.Neurons))
		for j, neuron := range l.Neurons {
			g[i][j] = make([]float64, len(neuron.In))
		}
	}
	return g
}

func countWeights(n *deep.Neural) int {
	var c int
	for _, l := range n.Layers {
		for _, neuron := range l.Neurons {
			c += len(neuron.In)
		}
	}
	return c
}

// clipByNorm rescales g in place so its L2 norm is at most maxNorm.
func clipByNorm(g [][][]float64, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	var sq float64
	for _, l := range g {
		for _, n := range l {
			for _, v := range n {
				sq += v * v
			}
		}
	}
	norm := math.Sqrt(sq)
	if norm <= maxNorm {
		return
	}
	f := maxNorm / (norm + 1e-6)
	for _, l := range g {
		for _, n := range l {
			for k := range n {
				n[k] *= f
			}
		}
	}
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

package domain

import "time"

// Transition is one entry of an RL agent's replay buffer.
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}

// EpisodeSummary is what an RL agent reports after learning from one race.
type EpisodeSummary struct {
	AgentID              int
	Reward               float64
	Loss                 float64
	Trained              bool // false when the episode had no transitions
	Trades               int
	AvgQ                 float64
	TotalActions         int
	BacksPerCompetitor   []int
	LaysPerCompetitor    []int
	MostCommonAction     int // -1 when no action was taken
	MostCommonCompetitor int // -1 when no action was taken
	Winner               int
	Epsilon              float64
	TrainingStep         int
}

// AgentResult is one agent's outcome for a race.
type AgentResult struct {
	AgentID      int
	Kind         string
	FinalBalance float64
	PnL          float64
	Trades       int
	Orders       int
}

// RaceResult is everything the simulator persists about one race.
type RaceResult struct {
	ID         string
	RaceNo     int
	Winner     int
	Ticks      int
	FinishedAt time.Time
	Agents     []AgentResult
	Episodes   []EpisodeSummary
}

// KindStats aggregates final balances per strategy kind across races.
type KindStats struct {
	Kind        string
	Samples     int
	MeanBalance float64
	StdBalance  float64
	MeanPnL     float64
	ROI         float64 // mean PnL over initial balance
	Sharpe      float64 // mean PnL over its standard deviation
	Trades      int
}

// CurvePoint is one point of an RL agent's rolling-mean reward curve.
type CurvePoint struct {
	RaceNo     int
	Reward     float64
	MeanReward float64
}

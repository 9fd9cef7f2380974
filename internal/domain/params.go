package domain

import (
	"errors"
	"fmt"
)

// Params holds the market-wide constants every agent is built with.
// It is created once from config and passed by value; agents never mutate it.
type Params struct {
	NumCompetitors      int
	NumExchanges        int
	MinOdds             float64
	MaxOdds             float64
	ReferenceCompetitor int
	RaceLength          float64 // distance to the finish line
	InPlayEnd           int     // first timestep at which in-play betting is closed
	InitialBalance      float64
	StakeLower          int
	StakeHigher         int
	OpinionLower        float64
	OpinionUpper        float64
}

// DefaultParams mirrors the values used by the simulator when no config is given.
func DefaultParams() Params {
	return Params{
		NumCompetitors:      5,
		NumExchanges:        1,
		MinOdds:             1.1,
		MaxOdds:             100,
		ReferenceCompetitor: 0,
		RaceLength:          1000,
		InPlayEnd:           80,
		InitialBalance:      100000000,
		StakeLower:          15,
		StakeHigher:         15,
		OpinionLower:        0,
		OpinionUpper:        1,
	}
}

// Validate reports the first inconsistency found in p.
func (p Params) Validate() error {
	switch {
	case p.NumCompetitors < 2:
		return fmt.Errorf("domain.Params: need at least 2 competitors, got %d", p.NumCompetitors)
	case p.NumExchanges < 1:
		return fmt.Errorf("domain.Params: need at least 1 exchange, got %d", p.NumExchanges)
	case p.MinOdds <= 1 || p.MaxOdds <= p.MinOdds:
		return fmt.Errorf("domain.Params: invalid odds bounds [%.2f, %.2f]", p.MinOdds, p.MaxOdds)
	case p.ReferenceCompetitor < 0 || p.ReferenceCompetitor >= p.NumCompetitors:
		return fmt.Errorf("domain.Params: reference competitor %d out of range", p.ReferenceCompetitor)
	case p.RaceLength <= 0:
		return errors.New("domain.Params: race length must be positive")
	case p.InitialBalance <= 0:
		return errors.New("domain.Params: initial balance must be positive")
	case p.StakeLower < 1 || p.StakeHigher < p.StakeLower:
		return fmt.Errorf("domain.Params: invalid stake range [%d, %d]", p.StakeLower, p.StakeHigher)
	case p.OpinionLower < 0 || p.OpinionUpper > 1 || p.OpinionUpper < p.OpinionLower:
		return fmt.Errorf("domain.Params: invalid opinion bounds [%.2f, %.2f]", p.OpinionLower, p.OpinionUpper)
	}
	return nil
}

// ClampOdds saturates odds to [MinOdds, MaxOdds].
func (p Params) ClampOdds(odds float64) float64 {
	if odds < p.MinOdds {
		return p.MinOdds
	}
	if odds > p.MaxOdds {
		return p.MaxOdds
	}
	return odds
}

package rl

import "math"

// EpsilonSchedule gives the exploration rate for a training step. It stays at
// Floor until WarmupSteps, then drops linearly from 1.0 to Floor over
// DecaySteps and stays at Floor afterwards.
type EpsilonSchedule struct {
	Floor       float64
	WarmupSteps int
	DecaySteps  int
}

// DefaultEpsilonSchedule returns the schedule used by the simulator.
func DefaultEpsilonSchedule() EpsilonSchedule {
	return EpsilonSchedule{Floor: 0.01, WarmupSteps: 3000, DecaySteps: 7000}
}

// At returns epsilon for step.
func (s EpsilonSchedule) At(step int) float64 {
	if step <= s.WarmupSteps || s.DecaySteps <= 0 {
		return s.Floor
	}
	frac := float64(step-s.WarmupSteps) / float64(s.DecaySteps)
	return math.Max(s.Floor, 1.0-frac*(1.0-s.Floor))
}

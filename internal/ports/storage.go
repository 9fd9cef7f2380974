package ports

import (
	"context"

	"github.com/alejandrodnm/betpool/internal/domain"
)

// RaceStorage persists race outcomes and the RL episode summaries.
type RaceStorage interface {
	// SaveRace persists the race, its agent results and episode summaries.
	SaveRace(ctx context.Context, race domain.RaceResult) error

	// KindStats aggregates final balances per strategy kind over every race.
	KindStats(ctx context.Context, initialBalance float64) ([]domain.KindStats, error)

	// LearningCurve returns the rolling mean reward of an RL agent.
	LearningCurve(ctx context.Context, agentID, window int) ([]domain.CurvePoint, error)

	// Close releases the underlying database.
	Close() error
}

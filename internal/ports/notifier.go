package ports

import (
	"context"

	"github.com/alejandrodnm/betpool/internal/domain"
)

// Reporter presents simulation results to the user.
type Reporter interface {
	// ReportRace prints a one-line summary of a finished race.
	ReportRace(ctx context.Context, race domain.RaceResult) error

	// ReportKinds prints the per-kind evaluation table.
	ReportKinds(ctx context.Context, stats []domain.KindStats) error
}

// Publisher pushes episode summaries to downstream consumers.
type Publisher interface {
	PublishEpisode(ctx context.Context, raceID string, summary domain.EpisodeSummary) error
}

// ReplayExporter writes an RL agent's replay buffer after an episode.
type ReplayExporter interface {
	ExportReplay(agentID, episode int, rows []domain.Transition) error
}

// Package stream publishes RL episode summaries to a Redis stream so
// dashboards and offline evaluators can follow training live.
package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is the stream key used when none is configured.
const DefaultStream = "betpool.episodes"

// Publisher implements ports.Publisher over XADD.
type Publisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewPublisher publishes to stream, trimming it to about maxLen entries.
// maxLen <= 0 disables trimming.
func NewPublisher(client *redis.Client, stream string, maxLen int64) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// PublishEpisode appends one summary to the stream.
func (p *Publisher) PublishEpisode(ctx context.Context, raceID string, summary domain.EpisodeSummary) error {
	values, err := episodeValues(raceID, summary)
	if err != nil {
		return fmt.Errorf("stream.PublishEpisode: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("stream.PublishEpisode: xadd %s: %w", p.stream, err)
	}
	return nil
}

func episodeValues(raceID string, s domain.EpisodeSummary) (map[string]interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling episode: %w", err)
	}
	return map[string]interface{}{
		"data":     string(data),
		"race_id":  raceID,
		"agent_id": s.AgentID,
		"reward":   s.Reward,
		"trained":  s.Trained,
	}, nil
}

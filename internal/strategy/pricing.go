package strategy

import (
	"errors"
	"sort"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
)

// place submits an order and reports whether admission accepted it.
// Insufficient funds is not an error for a strategy: it just bets nothing.
func place(a *agent.Agent, competitor int, dir domain.Direction, odds float64, stake, quoteID int, t float64) (bool, error) {
	err := a.Place(competitor, dir, odds, stake, quoteID, t)
	switch {
	case errors.Is(err, agent.ErrInsufficientFunds):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// rankByDistance orders competitors by distance, furthest first when desc.
// Ties keep the lower competitor id first.
func rankByDistance(dists map[int]float64, desc bool) []int {
	ids := make([]int, 0, len(dists))
	for c := range dists {
		ids = append(ids, c)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := dists[ids[i]], dists[ids[j]]
		if di == dj {
			return ids[i] < ids[j]
		}
		if desc {
			return di > dj
		}
		return di < dj
	})
	return ids
}

package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Direction is the side of a bet.
type Direction int

const (
	Back Direction = iota // the competitor wins
	Lay                   // the competitor does not win
)

func (d Direction) String() string {
	if d == Lay {
		return "lay"
	}
	return "back"
}

// Role is the side an agent played in a matched trade.
type Role int

const (
	Backer Role = iota
	Layer
)

func (r Role) String() string {
	if r == Layer {
		return "layer"
	}
	return "backer"
}

// Order is an immutable request to bet. Build it with NewOrder so the odds
// are always inside the configured bounds.
type Order struct {
	ID         string
	ExchangeID int
	AgentID    int
	Competitor int
	Direction  Direction
	Odds       float64
	Stake      int
	QuoteID    int
	Time       float64
}

// NewOrder builds an order with odds clamped to the market bounds.
func NewOrder(p Params, exchange, agent, competitor int, dir Direction, odds float64, stake, quoteID int, t float64) (Order, error) {
	if stake <= 0 {
		return Order{}, fmt.Errorf("domain.NewOrder: stake must be positive, got %d", stake)
	}
	if competitor < 0 || competitor >= p.NumCompetitors {
		return Order{}, fmt.Errorf("domain.NewOrder: competitor %d out of range", competitor)
	}
	if exchange < 0 || exchange >= p.NumExchanges {
		return Order{}, fmt.Errorf("domain.NewOrder: exchange %d out of range", exchange)
	}
	return Order{
		ID:         uuid.New().String(),
		ExchangeID: exchange,
		AgentID:    agent,
		Competitor: competitor,
		Direction:  dir,
		Odds:       p.ClampOdds(odds),
		Stake:      stake,
		QuoteID:    quoteID,
		Time:       t,
	}, nil
}

// Liability is the worst-case loss the order commits: the stake for a back,
// the stake times the net odds for a lay.
func (o Order) Liability() float64 {
	if o.Direction == Lay {
		return float64(o.Stake)*o.Odds - float64(o.Stake)
	}
	return float64(o.Stake)
}

// Trade is a matched pair of orders produced by the exchange.
type Trade struct {
	ID         string
	ExchangeID int
	Competitor int
	BackerID   int
	LayerID    int
	BackOrder  string
	LayOrder   string
	Odds       float64
	Stake      int
	Time       float64
}

// Position is a matched exposure held by an agent until the race settles.
type Position struct {
	Competitor int
	Role       Role
	Odds       float64
	Stake      int
}

// PnL is the position's profit once the winner is known.
func (p Position) PnL(winner int) float64 {
	stake := float64(p.Stake)
	won := p.Competitor == winner
	switch {
	case p.Role == Backer && won:
		return stake * (p.Odds - 1)
	case p.Role == Backer:
		return -stake
	case won:
		return -stake * (p.Odds - 1)
	default:
		return stake
	}
}

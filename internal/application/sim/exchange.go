package sim

import (
	"fmt"
	"sort"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/google/uuid"
)

// resting is the unmatched part of an order sitting in the book.
type resting struct {
	order     domain.Order
	remaining int
}

// book holds one competitor's resting orders, best price first and oldest
// first within a price: backs by ascending odds, lays by descending odds.
type book struct {
	backs   []*resting
	lays    []*resting
	quoteID int
}

// Fill is one match between a back and a lay order.
type Fill struct {
	Trade domain.Trade
	Back  domain.Order
	Lay   domain.Order
}

// Exchange is an in-memory betting exchange with price-time priority.
// A back at b and a lay at l cross when b <= l; the trade prints at the
// resting order's odds. Orders never match against the same agent.
// It is not safe for concurrent use.
type Exchange struct {
	id    int
	p     domain.Params
	books []*book
	last  *domain.Trade
}

// NewExchange opens an empty exchange.
func NewExchange(id int, p domain.Params) *Exchange {
	books := make([]*book, p.NumCompetitors)
	for c := range books {
		books[c] = &book{}
	}
	return &Exchange{id: id, p: p, books: books}
}

// ID returns the exchange index.
func (e *Exchange) ID() int { return e.id }

// Submit matches o against the opposite side and rests whatever is left.
func (e *Exchange) Submit(o domain.Order) ([]Fill, error) {
	if o.ExchangeID != e.id {
		return nil, fmt.Errorf("sim.Submit: order for exchange %d sent to %d", o.ExchangeID, e.id)
	}
	if o.Competitor < 0 || o.Competitor >= len(e.books) {
		return nil, fmt.Errorf("sim.Submit: competitor %d out of range", o.Competitor)
	}
	if o.Stake <= 0 {
		return nil, fmt.Errorf("sim.Submit: non-positive stake %d", o.Stake)
	}
	b := e.books[o.Competitor]
	b.quoteID++

	var fills []Fill
	remaining := o.Stake
	if o.Direction == domain.Back {
		b.lays, remaining, fills = e.match(b.lays, o, remaining, func(r domain.Order) bool {
			return o.Odds <= r.Odds
		})
	} else {
		b.backs, remaining, fills = e.match(b.backs, o, remaining, func(r domain.Order) bool {
			return r.Odds <= o.Odds
		})
	}
	if remaining > 0 {
		b.rest(&resting{order: o, remaining: remaining})
	}
	return fills, nil
}

// match walks side best first while crosses holds, filling o.
func (e *Exchange) match(side []*resting, o domain.Order, remaining int, crosses func(domain.Order) bool) ([]*resting, int, []Fill) {
	var fills []Fill
	kept := side[:0]
	for i, r := range side {
		if remaining == 0 || !crosses(r.order) {
			kept = append(kept, side[i:]...)
			break
		}
		if r.order.AgentID == o.AgentID {
			kept = append(kept, r)
			continue
		}
		qty := min(remaining, r.remaining)
		fills = append(fills, e.fill(o, r.order, qty))
		remaining -= qty
		r.remaining -= qty
		if r.remaining > 0 {
			kept = append(kept, r)
		}
	}
	return kept, remaining, fills
}

func (e *Exchange) fill(incoming, standing domain.Order, qty int) Fill {
	back, lay := incoming, standing
	if incoming.Direction == domain.Lay {
		back, lay = standing, incoming
	}
	tr := domain.Trade{
		ID:         uuid.New().String(),
		ExchangeID: e.id,
		Competitor: incoming.Competitor,
		BackerID:   back.AgentID,
		LayerID:    lay.AgentID,
		BackOrder:  back.ID,
		LayOrder:   lay.ID,
		Odds:       standing.Odds,
		Stake:      qty,
		Time:       incoming.Time,
	}
	e.last = &tr
	return Fill{Trade: tr, Back: back, Lay: lay}
}

func (b *book) rest(r *resting) {
	if r.order.Direction == domain.Back {
		i := sort.Search(len(b.backs), func(i int) bool { return b.backs[i].order.Odds > r.order.Odds })
		b.backs = insertAt(b.backs, i, r)
		return
	}
	i := sort.Search(len(b.lays), func(i int) bool { return b.lays[i].order.Odds < r.order.Odds })
	b.lays = insertAt(b.lays, i, r)
}

func insertAt(s []*resting, i int, r *resting) []*resting {
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = r
	return s
}

// Quotes is the exchange's row of a market snapshot.
func (e *Exchange) Quotes() []domain.Quote {
	out := make([]domain.Quote, len(e.books))
	for c, b := range e.books {
		q := domain.Quote{
			Backs:   domain.BookSide{Worst: e.p.MaxOdds},
			Lays:    domain.BookSide{Worst: e.p.MinOdds},
			QuoteID: b.quoteID,
		}
		if n := len(b.backs); n > 0 {
			q.Backs = domain.BookSide{Best: b.backs[0].order.Odds, Worst: b.backs[n-1].order.Odds, Count: n}
		}
		if n := len(b.lays); n > 0 {
			q.Lays = domain.BookSide{Best: b.lays[0].order.Odds, Worst: b.lays[n-1].order.Odds, Count: n}
		}
		out[c] = q
	}
	return out
}

// LastTrade is the most recent trade, nil before the first one.
func (e *Exchange) LastTrade() *domain.Trade { return e.last }

// CancelAll empties every book and returns the orders that still had an
// unmatched remainder.
func (e *Exchange) CancelAll() []domain.Order {
	var out []domain.Order
	for _, b := range e.books {
		for _, r := range b.backs {
			out = append(out, r.order)
		}
		for _, r := range b.lays {
			out = append(out, r.order)
		}
		b.backs, b.lays = nil, nil
		b.quoteID++
	}
	return out
}

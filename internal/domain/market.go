package domain

// BookSide summarises one side of a competitor's book on one exchange.
type BookSide struct {
	Best  float64
	Worst float64 // worst resting price, or the configured fallback when Count == 0
	Count int
}

// Quote is the top-of-book view for one competitor on one exchange.
type Quote struct {
	Backs   BookSide
	Lays    BookSide
	QuoteID int
}

// Snapshot is the market as published by the exchange at one instant,
// indexed [exchange][competitor]. Agents treat it as read-only.
type Snapshot struct {
	Quotes [][]Quote
}

// Quote returns the quote for a competitor on an exchange.
func (s Snapshot) Quote(exchange, competitor int) (Quote, bool) {
	if exchange < 0 || exchange >= len(s.Quotes) {
		return Quote{}, false
	}
	row := s.Quotes[exchange]
	if competitor < 0 || competitor >= len(row) {
		return Quote{}, false
	}
	return row[competitor], true
}

// Empty reports whether the snapshot carries no quotes at all.
func (s Snapshot) Empty() bool {
	return len(s.Quotes) == 0
}

// BackPrice prices a back order one tick inside the back book, falling back
// to the worst-case price when nobody is backing.
func (q Quote) BackPrice(tick float64) float64 {
	if q.Backs.Count > 0 {
		return q.Backs.Best - tick
	}
	return q.Backs.Worst
}

// LayPrice prices a lay order one tick inside the lay book, falling back to
// the worst-case price when nobody is laying.
func (q Quote) LayPrice(tick float64) float64 {
	if q.Lays.Count > 0 {
		return q.Lays.Best + tick
	}
	return q.Lays.Worst
}

// BestBackOrWorst is the back-side price used as a state feature.
func (q Quote) BestBackOrWorst() float64 {
	if q.Backs.Count > 0 {
		return q.Backs.Best
	}
	return q.Backs.Worst
}

// ImpliedProbability converts decimal odds into a probability.
func ImpliedProbability(odds float64) float64 {
	if odds <= 0 {
		return 0
	}
	return 1 / odds
}

package agent

import (
	"errors"
	"fmt"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when an order would commit more than the balance.
var ErrInsufficientFunds = errors.New("agent: insufficient funds")

// openOrder tracks the unmatched remainder of an admitted order.
type openOrder struct {
	order     domain.Order
	remaining int
}

// liability is the exposure committed by stake units of an order.
func liability(dir domain.Direction, odds float64, stake int) decimal.Decimal {
	s := decimal.NewFromInt(int64(stake))
	if dir == domain.Lay {
		return s.Mul(decimal.NewFromFloat(odds)).Sub(s)
	}
	return s
}

// Submit queues o iff its liability fits in the balance on top of what is
// already committed. Rejected orders leave the agent untouched.
func (a *Agent) Submit(o domain.Order) error {
	inc := liability(o.Direction, o.Odds, o.Stake)
	if a.fromOrders.Add(inc).GreaterThan(a.balance) {
		a.log.Debug("agent: order rejected",
			"competitor", o.Competitor,
			"direction", o.Direction.String(),
			"odds", o.Odds,
			"stake", o.Stake,
			"committed", a.fromOrders.StringFixed(2),
		)
		return fmt.Errorf("agent.Submit: %s %d@%.2f: %w", o.Direction, o.Stake, o.Odds, ErrInsufficientFunds)
	}
	a.fromOrders = a.fromOrders.Add(inc)
	a.orders = append(a.orders, o)
	a.open[o.ID] = openOrder{order: o, remaining: o.Stake}
	a.liveBets++
	a.placed++
	return nil
}

// Bookkeep records a matched trade. Matched exposure stays committed until
// SettleRace.
func (a *Agent) Bookkeep(tr domain.Trade, role domain.Role, o domain.Order, _ float64) {
	stake := decimal.NewFromInt(int64(tr.Stake))
	if role == domain.Layer {
		stake = stake.Mul(decimal.NewFromFloat(tr.Odds)).Add(stake)
	}
	a.fromTransactions = a.fromTransactions.Add(stake)
	a.trades = append(a.trades, tr)
	a.positions = append(a.positions, domain.Position{
		Competitor: tr.Competitor,
		Role:       role,
		Odds:       tr.Odds,
		Stake:      tr.Stake,
	})

	oo, ok := a.open[o.ID]
	if !ok {
		return
	}
	oo.remaining -= tr.Stake
	if oo.remaining > 0 {
		a.open[o.ID] = oo
		return
	}
	delete(a.open, o.ID)
	a.decLiveBets()
}

// Cancel releases the liability of the unmatched remainder of an order.
// The exchange calls it for orders still resting when the race ends.
func (a *Agent) Cancel(orderID string) {
	oo, ok := a.open[orderID]
	if !ok {
		return
	}
	delete(a.open, orderID)
	a.fromOrders = a.fromOrders.Sub(liability(oo.order.Direction, oo.order.Odds, oo.remaining))
	if a.fromOrders.IsNegative() {
		a.fromOrders = decimal.Zero
	}
	a.decLiveBets()
}

// SettleRace pays out every matched position against winner, moves the
// result into the balance and releases all committed exposure. It returns
// the race PnL.
func (a *Agent) SettleRace(winner int) float64 {
	pnl := decimal.Zero
	for _, p := range a.positions {
		pnl = pnl.Add(decimal.NewFromFloat(p.PnL(winner)))
	}
	a.balance = a.balance.Add(pnl)
	a.fromOrders = decimal.Zero
	a.positions = nil
	a.open = make(map[string]openOrder)
	a.orders = nil
	a.liveBets = 0
	return pnl.InexactFloat64()
}

func (a *Agent) decLiveBets() {
	if a.liveBets > 0 {
		a.liveBets--
	}
}

// Balance is the stake pool, updated only by SettleRace.
func (a *Agent) Balance() float64 { return a.balance.InexactFloat64() }

// AmountFromOrders is the exposure committed by admitted orders.
func (a *Agent) AmountFromOrders() float64 { return a.fromOrders.InexactFloat64() }

// AmountFromTransactions is the running total of matched proceeds.
func (a *Agent) AmountFromTransactions() float64 { return a.fromTransactions.InexactFloat64() }

// AvailableBalance is what admission still allows to be committed.
func (a *Agent) AvailableBalance() float64 {
	return a.balance.Sub(a.fromOrders).InexactFloat64()
}

// LiveBets counts admitted orders not yet fully matched or cancelled.
func (a *Agent) LiveBets() int { return a.liveBets }

// OrdersPlaced counts admitted orders over the race.
func (a *Agent) OrdersPlaced() int { return a.placed }

package strategy

import (
	"math/rand"

	"github.com/alejandrodnm/betpool/internal/agent"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
)

// Linex extrapolates each competitor's recent speed to predict the finishing
// order, then backs the predicted winner and lays the predicted loser. It
// predicts again every interval ticks.
type Linex struct {
	interval      int
	recordingTime int
	n             int

	predicted   bool
	sinceBet    int
	predictions int
	injured     map[int]bool
	winner      int
	loser       int
	job         Job
}

func NewLinex(_ domain.Params, rng *rand.Rand, _ Deps) (agent.Strategy, error) {
	return newLinex(randBetween(rng, 30, 60), randBetween(rng, 5, 15), randBetween(rng, 15, 25)), nil
}

func newLinex(interval, recordingTime, n int) *Linex {
	return &Linex{
		interval:      interval,
		recordingTime: recordingTime,
		n:             n,
		injured:       make(map[int]bool),
		winner:        -1,
		loser:         -1,
	}
}

func (l *Linex) Kind() kinds.Kind { return kinds.KindLinex }

func (l *Linex) ObserveRaceState(a *agent.Agent, _ int) {
	if !a.BettingPeriod() {
		return
	}
	if !l.predicted && l.enoughSamples(a) {
		l.predict(a)
		if l.winner >= 0 {
			l.job.Fire(EventSignal)
		}
	}
	if l.predicted {
		l.sinceBet++
		if l.sinceBet >= l.interval {
			l.predicted = false
			l.sinceBet = 0
		}
	}
}

func (l *Linex) enoughSamples(a *agent.Agent) bool {
	for c := 0; c < a.Params().NumCompetitors; c++ {
		if len(a.History(c)) <= l.n+l.recordingTime {
			return false
		}
	}
	return true
}

// predict estimates each competitor's time to finish from its progress over
// the last n samples. A competitor that made no progress is marked injured
// and never considered again.
func (l *Linex) predict(a *agent.Agent) {
	p := a.Params()
	l.winner, l.loser = -1, -1
	var best, worst float64
	for c := 0; c < p.NumCompetitors; c++ {
		if l.injured[c] {
			continue
		}
		dists := a.History(c)
		from := dists[len(dists)-l.n]
		to := dists[len(dists)-1]
		speed := (to - from) / float64(l.n-1)
		if speed <= 0 {
			l.injured[c] = true
			continue
		}
		eta := (p.RaceLength - to) / speed
		if l.winner < 0 || eta < best {
			l.winner, best = c, eta
		}
		if l.loser < 0 || eta > worst {
			l.loser, worst = c, eta
		}
	}
	l.predicted = true
	l.predictions++
}

func (l *Linex) Respond(a *agent.Agent, t float64, snap domain.Snapshot, _ *domain.Trade) error {
	if !l.predicted {
		return nil
	}
	switch l.job.State() {
	case JobBack:
		l.job.Fire(EventBackDone)
		a.Choose(l.winner)
		q, ok := snap.Quote(a.Exchange(), l.winner)
		if !ok {
			return nil
		}
		_, err := place(a, l.winner, domain.Back, q.BackPrice(tick), a.Stake(), q.QuoteID, t)
		return err
	case JobLay:
		l.job.Fire(EventLayDone)
		q, ok := snap.Quote(a.Exchange(), l.loser)
		if !ok {
			return nil
		}
		_, err := place(a, l.loser, domain.Lay, q.LayPrice(tick), a.Stake(), q.QuoteID, t)
		return err
	}
	return nil
}

// Predictions counts how many times the finishing order was extrapolated.
func (l *Linex) Predictions() int { return l.predictions }

// Job exposes the current plan phase.
func (l *Linex) Job() JobState { return l.job.State() }

// Injured reports whether competitor was excluded from predictions.
func (l *Linex) Injured(competitor int) bool { return l.injured[competitor] }

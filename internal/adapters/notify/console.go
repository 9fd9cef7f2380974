package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/betpool/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Reporter.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// ReportRace imprime una línea por carrera y, en modo tabla, el detalle de
// los episodios RL.
func (c *Console) ReportRace(_ context.Context, race domain.RaceResult) error {
	c.printCompact(race)
	if c.table && len(race.Episodes) > 0 {
		c.printEpisodes(race.Episodes)
	}
	return nil
}

// ReportKinds imprime la tabla de evaluación por estrategia.
func (c *Console) ReportKinds(_ context.Context, stats []domain.KindStats) error {
	if len(stats) == 0 {
		fmt.Fprintln(c.out, "no races recorded")
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] strategy evaluation over %d agent-races\n",
		time.Now().Format("15:04:05"), totalSamples(stats))

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Kind", "Races", "Mean bal", "Std bal", "Mean PnL", "ROI", "Sharpe", "Trades")
	for i, s := range stats {
		table.Append(
			fmt.Sprintf("%d", i+1),
			s.Kind,
			fmt.Sprintf("%d", s.Samples),
			fmt.Sprintf("%.2f", s.MeanBalance),
			fmt.Sprintf("%.2f", s.StdBalance),
			fmt.Sprintf("%+.2f", s.MeanPnL),
			fmt.Sprintf("%+.4f%%", s.ROI*100),
			fmt.Sprintf("%.3f", s.Sharpe),
			fmt.Sprintf("%d", s.Trades),
		)
	}
	table.Render()
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(race domain.RaceResult) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] race #%d → winner %d in %d ticks, %d trades",
		race.FinishedAt.Format("15:04:05"), race.RaceNo, race.Winner, race.Ticks, totalTrades(race.Agents))

	for _, k := range bestKinds(race.Agents, 3) {
		fmt.Fprintf(&sb, " | %s %+.2f", k.kind, k.pnl)
	}
	for _, e := range race.Episodes {
		fmt.Fprintf(&sb, " | rl#%d r=%+.3f", e.AgentID, e.Reward)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printEpisodes imprime el resumen de aprendizaje de cada agente RL.
func (c *Console) printEpisodes(episodes []domain.EpisodeSummary) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Agent", "Reward", "Loss", "Avg Q", "Actions", "Top action", "Top comp", "Eps", "Step")
	for _, e := range episodes {
		loss := "-"
		if e.Trained {
			loss = fmt.Sprintf("%.5f", e.Loss)
		}
		table.Append(
			fmt.Sprintf("%d", e.AgentID),
			fmt.Sprintf("%+.4f", e.Reward),
			loss,
			fmt.Sprintf("%.4f", e.AvgQ),
			fmt.Sprintf("%d", e.TotalActions),
			actionLabel(e.MostCommonAction),
			competitorLabel(e.MostCommonCompetitor),
			fmt.Sprintf("%.3f", e.Epsilon),
			fmt.Sprintf("%d", e.TrainingStep),
		)
	}
	table.Render()
}

type kindPnL struct {
	kind string
	pnl  float64
}

// bestKinds devuelve los n kinds con mayor PnL medio en la carrera.
func bestKinds(agents []domain.AgentResult, n int) []kindPnL {
	sum := make(map[string]float64)
	count := make(map[string]int)
	for _, a := range agents {
		sum[a.Kind] += a.PnL
		count[a.Kind]++
	}
	out := make([]kindPnL, 0, len(sum))
	for k, s := range sum {
		out = append(out, kindPnL{kind: k, pnl: s / float64(count[k])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].pnl == out[j].pnl {
			return out[i].kind < out[j].kind
		}
		return out[i].pnl > out[j].pnl
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func totalTrades(agents []domain.AgentResult) int {
	n := 0
	for _, a := range agents {
		n += a.Trades
	}
	return n
}

func totalSamples(stats []domain.KindStats) int {
	n := 0
	for _, s := range stats {
		n += s.Samples
	}
	return n
}

// actionLabel formatea una acción RL: back/lay del competidor action/2.
func actionLabel(action int) string {
	if action < 0 {
		return "-"
	}
	dir := "back"
	if action%2 == 1 {
		dir = "lay"
	}
	return fmt.Sprintf("%s %d", dir, action/2)
}

func competitorLabel(c int) string {
	if c < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", c)
}

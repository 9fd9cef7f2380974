package storage

// sqlite.go: histórico de carreras para evaluar estrategias entre corridas.
//
// Tablas:
//   - `races`: una fila por carrera (ganador, ticks, fin).
//   - `agent_results`: balance final y PnL de cada agente en cada carrera.
//   - `episodes`: resumen de aprendizaje de cada agente RL por carrera.
//
// Las agregaciones por kind se calculan en Go: SQLite no tiene stddev.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/alejandrodnm/betpool/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS races (
    id          TEXT PRIMARY KEY,
    race_no     INTEGER  NOT NULL,
    winner      INTEGER  NOT NULL,
    ticks       INTEGER  NOT NULL DEFAULT 0,
    finished_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_results (
    race_id       TEXT    NOT NULL REFERENCES races(id),
    agent_id      INTEGER NOT NULL,
    kind          TEXT    NOT NULL,
    final_balance REAL    NOT NULL,
    pnl           REAL    NOT NULL DEFAULT 0,
    trades        INTEGER NOT NULL DEFAULT 0,
    orders        INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (race_id, agent_id)
);

CREATE TABLE IF NOT EXISTS episodes (
    race_id          TEXT    NOT NULL REFERENCES races(id),
    agent_id         INTEGER NOT NULL,
    reward           REAL    NOT NULL DEFAULT 0,
    loss             REAL    NOT NULL DEFAULT 0,
    trained          INTEGER NOT NULL DEFAULT 0,
    trades           INTEGER NOT NULL DEFAULT 0,
    avg_q            REAL    NOT NULL DEFAULT 0,
    total_actions    INTEGER NOT NULL DEFAULT 0,
    backs            TEXT    NOT NULL DEFAULT '[]',
    lays             TEXT    NOT NULL DEFAULT '[]',
    common_action    INTEGER NOT NULL DEFAULT -1,
    common_comp      INTEGER NOT NULL DEFAULT -1,
    winner           INTEGER NOT NULL,
    epsilon          REAL    NOT NULL DEFAULT 0,
    training_step    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (race_id, agent_id)
);

CREATE INDEX IF NOT EXISTS idx_races_no     ON races(race_no);
CREATE INDEX IF NOT EXISTS idx_results_kind ON agent_results(kind);
CREATE INDEX IF NOT EXISTS idx_episodes_ag  ON episodes(agent_id);
`

// SQLiteStorage implementa ports.RaceStorage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveRace guarda la carrera, el resultado de cada agente y el resumen de
// cada episodio en una única transacción.
func (s *SQLiteStorage) SaveRace(ctx context.Context, race domain.RaceResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRace: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO races (id, race_no, winner, ticks, finished_at) VALUES (?, ?, ?, ?, ?)`,
		race.ID, race.RaceNo, race.Winner, race.Ticks, race.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveRace: insert race %s: %w", race.ID, err)
	}

	if len(race.Agents) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO agent_results
				(race_id, agent_id, kind, final_balance, pnl, trades, orders)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveRace: prepare results: %w", err)
		}
		defer stmt.Close()

		for _, a := range race.Agents {
			if _, err := stmt.ExecContext(ctx,
				race.ID, a.AgentID, a.Kind, a.FinalBalance, a.PnL, a.Trades, a.Orders,
			); err != nil {
				return fmt.Errorf("storage.SaveRace: insert agent %d: %w", a.AgentID, err)
			}
		}
	}

	if len(race.Episodes) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO episodes
				(race_id, agent_id, reward, loss, trained, trades, avg_q,
				 total_actions, backs, lays, common_action, common_comp,
				 winner, epsilon, training_step)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("storage.SaveRace: prepare episodes: %w", err)
		}
		defer stmt.Close()

		for _, e := range race.Episodes {
			backs, err := json.Marshal(orEmpty(e.BacksPerCompetitor))
			if err != nil {
				return fmt.Errorf("storage.SaveRace: encode backs: %w", err)
			}
			lays, err := json.Marshal(orEmpty(e.LaysPerCompetitor))
			if err != nil {
				return fmt.Errorf("storage.SaveRace: encode lays: %w", err)
			}
			trained := 0
			if e.Trained {
				trained = 1
			}
			if _, err := stmt.ExecContext(ctx,
				race.ID, e.AgentID, e.Reward, e.Loss, trained, e.Trades, e.AvgQ,
				e.TotalActions, string(backs), string(lays), e.MostCommonAction,
				e.MostCommonCompetitor, e.Winner, e.Epsilon, e.TrainingStep,
			); err != nil {
				return fmt.Errorf("storage.SaveRace: insert episode %d: %w", e.AgentID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRace: commit: %w", err)
	}
	return nil
}

// KindStats agrega los resultados guardados por kind de estrategia, ordenados
// por balance medio, el mejor primero.
func (s *SQLiteStorage) KindStats(ctx context.Context, initialBalance float64) ([]domain.KindStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, final_balance, pnl, trades FROM agent_results ORDER BY kind`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.KindStats: query: %w", err)
	}
	defer rows.Close()

	type sample struct {
		balances []float64
		pnls     []float64
		trades   int
	}
	byKind := make(map[string]*sample)
	for rows.Next() {
		var kind string
		var balance, pnl float64
		var trades int
		if err := rows.Scan(&kind, &balance, &pnl, &trades); err != nil {
			return nil, fmt.Errorf("storage.KindStats: scan row: %w", err)
		}
		sm, ok := byKind[kind]
		if !ok {
			sm = &sample{}
			byKind[kind] = sm
		}
		sm.balances = append(sm.balances, balance)
		sm.pnls = append(sm.pnls, pnl)
		sm.trades += trades
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.KindStats: rows: %w", err)
	}

	stats := make([]domain.KindStats, 0, len(byKind))
	for kind, sm := range byKind {
		meanBal, stdBal := meanStd(sm.balances)
		meanPnL, stdPnL := meanStd(sm.pnls)
		st := domain.KindStats{
			Kind:        kind,
			Samples:     len(sm.balances),
			MeanBalance: meanBal,
			StdBalance:  stdBal,
			MeanPnL:     meanPnL,
			Trades:      sm.trades,
		}
		if initialBalance > 0 {
			st.ROI = meanPnL / initialBalance
		}
		if stdPnL > 0 {
			st.Sharpe = meanPnL / stdPnL
		}
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].MeanBalance == stats[j].MeanBalance {
			return stats[i].Kind < stats[j].Kind
		}
		return stats[i].MeanBalance > stats[j].MeanBalance
	})
	return stats, nil
}

// LearningCurve devuelve la recompensa por carrera de un agente RL en orden de
// carrera, con la media de las últimas window carreras. window < 1 equivale a 1.
func (s *SQLiteStorage) LearningCurve(ctx context.Context, agentID, window int) ([]domain.CurvePoint, error) {
	if window < 1 {
		window = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.race_no, e.reward
		FROM episodes e
		JOIN races r ON r.id = e.race_id
		WHERE e.agent_id = ?
		ORDER BY r.race_no
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("storage.LearningCurve: query: %w", err)
	}
	defer rows.Close()

	var curve []domain.CurvePoint
	var sum float64
	for rows.Next() {
		var p domain.CurvePoint
		if err := rows.Scan(&p.RaceNo, &p.Reward); err != nil {
			return nil, fmt.Errorf("storage.LearningCurve: scan row: %w", err)
		}
		sum += p.Reward
		if len(curve) >= window {
			sum -= curve[len(curve)-window].Reward
		}
		p.MeanReward = sum / float64(min(len(curve)+1, window))
		curve = append(curve, p)
	}
	return curve, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// meanStd devuelve la media y la desviación típica poblacional.
func meanStd(v []float64) (mean, std float64) {
	if len(v) == 0 {
		return 0, 0
	}
	for _, x := range v {
		mean += x
	}
	mean /= float64(len(v))
	for _, x := range v {
		std += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(std / float64(len(v)))
}

func orEmpty(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

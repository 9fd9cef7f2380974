package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del simulador.
type Config struct {
	Market     MarketConfig      `yaml:"market"`
	Sim        SimConfig         `yaml:"sim"`
	Population []PopulationEntry `yaml:"population"`
	RL         RLConfig          `yaml:"rl"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Storage    StorageConfig     `yaml:"storage"`
	Publish    PublishConfig     `yaml:"publish"`
	Export     ExportConfig      `yaml:"export"`
	Log        LogConfig         `yaml:"log"`
}

// MarketConfig son las constantes del mercado, iguales para todos los agentes.
type MarketConfig struct {
	NumCompetitors      int     `yaml:"num_competitors"`
	NumExchanges        int     `yaml:"num_exchanges"`
	MinOdds             float64 `yaml:"min_odds"`
	MaxOdds             float64 `yaml:"max_odds"`
	ReferenceCompetitor int     `yaml:"reference_competitor"`
	RaceLength          float64 `yaml:"race_length"`
	InPlayEnd           int     `yaml:"in_play_end"`
	InitialBalance      float64 `yaml:"initial_balance"`
	StakeLower          int     `yaml:"stake_lower"`
	StakeHigher         int     `yaml:"stake_higher"`
	OpinionLower        float64 `yaml:"opinion_lower"`
	OpinionUpper        float64 `yaml:"opinion_upper"`
}

// SimConfig controla cuántas carreras se corren y a qué ritmo.
type SimConfig struct {
	Races          int     `yaml:"races"`
	MaxTicks       int     `yaml:"max_ticks"`      // 0 = hasta que alguien llegue
	PreRaceTicks   int     `yaml:"pre_race_ticks"` // ticks de mercado antes de la salida
	ShareOpinions  bool    `yaml:"share_opinions"`
	TicksPerSecond float64 `yaml:"ticks_per_second"` // 0 = sin pausa
	Seed           int64   `yaml:"seed"`
}

// PopulationEntry es una línea "kind: count" de la población.
type PopulationEntry struct {
	Kind  string `yaml:"kind"`
	Count int    `yaml:"count"`
}

// RLConfig agrupa la política, el trainer y la red de los agentes RL.
type RLConfig struct {
	BettingTime     int     `yaml:"betting_time"`
	BettingInterval int     `yaml:"betting_interval"`
	ReplayCapacity  int     `yaml:"replay_capacity"`
	EpsilonFloor    float64 `yaml:"epsilon_floor"`
	WarmupSteps     int     `yaml:"warmup_steps"`
	DecaySteps      int     `yaml:"decay_steps"`
	TargetSyncEvery int     `yaml:"target_sync_every"`
	Hidden          []int   `yaml:"hidden"`
	LearningRate    float64 `yaml:"learning_rate"`
	Gamma           float64 `yaml:"gamma"`
	MaxGradNorm     float64 `yaml:"max_grad_norm"`
	CheckpointDir   string  `yaml:"checkpoint_dir"` // vacío = sin checkpoints
	LoadCheckpoints bool    `yaml:"load_checkpoints"`
	CurveWindow     int     `yaml:"curve_window"`
}

// ClassifierConfig apunta al modelo XGBoost de los agentes classifier.
type ClassifierConfig struct {
	ModelPath string `yaml:"model_path"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// PublishConfig controla el stream Redis de episodios. Sin URL no se publica.
type PublishConfig struct {
	RedisURL string `yaml:"redis_url"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
	Timeout  string `yaml:"timeout"` // duración Go, p.ej. "2s"
}

// ExportConfig controla el volcado CSV del replay de cada episodio.
type ExportConfig struct {
	ReplayDir string `yaml:"replay_dir"` // vacío = sin export
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables BETPOOL_* sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Params devuelve las constantes de mercado como domain.Params.
func (c *Config) Params() domain.Params {
	m := c.Market
	return domain.Params{
		NumCompetitors:      m.NumCompetitors,
		NumExchanges:        m.NumExchanges,
		MinOdds:             m.MinOdds,
		MaxOdds:             m.MaxOdds,
		ReferenceCompetitor: m.ReferenceCompetitor,
		RaceLength:          m.RaceLength,
		InPlayEnd:           m.InPlayEnd,
		InitialBalance:      m.InitialBalance,
		StakeLower:          m.StakeLower,
		StakeHigher:         m.StakeHigher,
		OpinionLower:        m.OpinionLower,
		OpinionUpper:        m.OpinionUpper,
	}
}

// PublishTimeout devuelve el timeout por XADD como time.Duration.
func (c *Config) PublishTimeout() time.Duration {
	d, err := time.ParseDuration(c.Publish.Timeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// Validate comprueba la configuración ya completada con defaults.
func (c *Config) Validate() error {
	if err := c.Params().Validate(); err != nil {
		return err
	}
	if c.Sim.Races < 1 {
		return fmt.Errorf("config: sim.races must be positive, got %d", c.Sim.Races)
	}
	if c.Sim.MaxTicks < 0 || c.Sim.PreRaceTicks < 0 || c.Sim.TicksPerSecond < 0 {
		return errors.New("config: sim ticks must not be negative")
	}

	total := 0
	seen := make(map[string]bool)
	for _, p := range c.Population {
		k, err := kinds.ParseKind(p.Kind)
		if err != nil {
			return fmt.Errorf("config: population: %w", err)
		}
		if seen[p.Kind] {
			return fmt.Errorf("config: population: kind %q listed twice", p.Kind)
		}
		seen[p.Kind] = true
		if p.Count < 0 {
			return fmt.Errorf("config: population: negative count for %q", p.Kind)
		}
		if k == kinds.KindClassifier && p.Count > 0 && c.Classifier.ModelPath == "" {
			return errors.New("config: classifier agents need classifier.model_path")
		}
		total += p.Count
	}
	if total == 0 {
		return errors.New("config: population is empty")
	}

	if c.RL.BettingInterval < 1 {
		return fmt.Errorf("config: rl.betting_interval must be positive, got %d", c.RL.BettingInterval)
	}
	if c.RL.Gamma < 0 || c.RL.Gamma > 1 {
		return fmt.Errorf("config: rl.gamma must be in [0, 1], got %.3f", c.RL.Gamma)
	}
	if c.RL.EpsilonFloor < 0 || c.RL.EpsilonFloor > 1 {
		return fmt.Errorf("config: rl.epsilon_floor must be in [0, 1], got %.3f", c.RL.EpsilonFloor)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BETPOOL_DB_PATH"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("BETPOOL_REDIS_URL"); v != "" {
		cfg.Publish.RedisURL = v
	}
	if v := os.Getenv("BETPOOL_CLASSIFIER_MODEL"); v != "" {
		cfg.Classifier.ModelPath = v
	}
	if v := os.Getenv("BETPOOL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BETPOOL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BETPOOL_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BETPOOL_SEED: %w", err)
		}
		cfg.Sim.Seed = seed
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	def := domain.DefaultParams()
	m := &cfg.Market
	if m.NumCompetitors == 0 {
		m.NumCompetitors = def.NumCompetitors
	}
	if m.NumExchanges == 0 {
		m.NumExchanges = def.NumExchanges
	}
	if m.MinOdds == 0 {
		m.MinOdds = def.MinOdds
	}
	if m.MaxOdds == 0 {
		m.MaxOdds = def.MaxOdds
	}
	if m.RaceLength == 0 {
		m.RaceLength = def.RaceLength
	}
	if m.InPlayEnd == 0 {
		m.InPlayEnd = def.InPlayEnd
	}
	if m.InitialBalance == 0 {
		m.InitialBalance = def.InitialBalance
	}
	if m.StakeLower == 0 {
		m.StakeLower = def.StakeLower
	}
	if m.StakeHigher == 0 {
		m.StakeHigher = max(def.StakeHigher, m.StakeLower)
	}
	if m.OpinionUpper == 0 {
		m.OpinionUpper = def.OpinionUpper
	}

	if cfg.Sim.Races == 0 {
		cfg.Sim.Races = 1
	}
	if len(cfg.Population) == 0 {
		for _, k := range kinds.AllKinds() {
			if k == kinds.KindClassifier && cfg.Classifier.ModelPath == "" {
				continue
			}
			cfg.Population = append(cfg.Population, PopulationEntry{Kind: string(k), Count: 2})
		}
	}

	rl := &cfg.RL
	if rl.BettingTime == 0 {
		rl.BettingTime = 5
	}
	if rl.BettingInterval == 0 {
		rl.BettingInterval = 2
	}
	if rl.ReplayCapacity <= 0 {
		rl.ReplayCapacity = 10000
	}
	if rl.EpsilonFloor == 0 {
		rl.EpsilonFloor = 0.01
	}
	if rl.WarmupSteps == 0 {
		rl.WarmupSteps = 3000
	}
	if rl.DecaySteps == 0 {
		rl.DecaySteps = 7000
	}
	if rl.TargetSyncEvery <= 0 {
		rl.TargetSyncEvery = 100
	}
	if len(rl.Hidden) == 0 {
		rl.Hidden = []int{128, 128}
	}
	if rl.LearningRate <= 0 {
		rl.LearningRate = 1e-3
	}
	if rl.Gamma == 0 {
		rl.Gamma = 0.99
	}
	if rl.MaxGradNorm <= 0 {
		rl.MaxGradNorm = 1.0
	}
	if rl.CurveWindow <= 0 {
		rl.CurveWindow = 10
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "betpool.db"
	}
	if cfg.Publish.MaxLen == 0 {
		cfg.Publish.MaxLen = 10000
	}
	if cfg.Publish.Timeout == "" {
		cfg.Publish.Timeout = "2s"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

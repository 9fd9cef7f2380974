package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/betpool/config"
	"github.com/alejandrodnm/betpool/internal/adapters/classifier"
	"github.com/alejandrodnm/betpool/internal/adapters/export"
	"github.com/alejandrodnm/betpool/internal/adapters/notify"
	"github.com/alejandrodnm/betpool/internal/adapters/qnet"
	"github.com/alejandrodnm/betpool/internal/adapters/storage"
	"github.com/alejandrodnm/betpool/internal/adapters/stream"
	"github.com/alejandrodnm/betpool/internal/application/sim"
	"github.com/alejandrodnm/betpool/internal/domain"
	kinds "github.com/alejandrodnm/betpool/internal/domain/strategy"
	"github.com/alejandrodnm/betpool/internal/ports"
	"github.com/alejandrodnm/betpool/internal/rl"
	"github.com/alejandrodnm/betpool/internal/strategy"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	races := flag.Int("races", 0, "number of races to run (overrides config)")
	dryRun := flag.Bool("dry-run", false, "keep results in memory: no database file, no redis, no replay export")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the RL episode table after every race (default: compact 1-line)")
	resume := flag.Bool("resume", false, "load RL checkpoints before the first race")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *races > 0 {
		cfg.Sim.Races = *races
	}
	if *resume {
		cfg.RL.LoadCheckpoints = true
	}
	if *dryRun {
		cfg.Storage.DSN = ":memory:"
		cfg.Publish.RedisURL = ""
		cfg.Export.ReplayDir = ""
	}
	setupLogger(cfg.Log)

	simCfg, err := simConfig(cfg)
	if err != nil {
		slog.Error("invalid population", "err", err)
		os.Exit(1)
	}
	p := cfg.Params()

	slog.Info("betpool starting",
		"config", *configPath,
		"races", cfg.Sim.Races,
		"competitors", p.NumCompetitors,
		"exchanges", p.NumExchanges,
		"dry_run", *dryRun,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	deps := sim.Deps{
		Registry: strategy.NewDefaultRegistry(),
		NewModel: func() (ports.ValueModel, error) {
			return qnet.New(qnetConfig(cfg.RL, p))
		},
		Storage:  store,
		Reporter: notify.NewConsole(*table),
		Logger:   slog.Default(),
	}

	if needsClassifier(simCfg.Population) {
		oracle, err := classifier.Load(cfg.Classifier.ModelPath)
		if err != nil {
			slog.Error("failed to load classifier", "err", err, "path", cfg.Classifier.ModelPath)
			os.Exit(1)
		}
		deps.Classifier = oracle
	}

	if cfg.Publish.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Publish.RedisURL)
		if err != nil {
			slog.Error("invalid redis url", "err", err)
			os.Exit(1)
		}
		opts.WriteTimeout = cfg.PublishTimeout()
		client := redis.NewClient(opts)
		defer client.Close()
		deps.Publisher = stream.NewPublisher(client, cfg.Publish.Stream, cfg.Publish.MaxLen)
		slog.Info("publishing episodes", "addr", opts.Addr, "stream", cfg.Publish.Stream)
	}

	if cfg.Export.ReplayDir != "" {
		deps.Exporter = export.NewCSVExporter(cfg.Export.ReplayDir)
	}

	s, err := sim.New(simCfg, p, deps)
	if err != nil {
		slog.Error("failed to build simulator", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		slog.Error("simulator exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("betpool stopped cleanly")
}

// simConfig traduce la configuración YAML a la del simulador.
func simConfig(cfg *config.Config) (sim.Config, error) {
	out := sim.Config{
		Races:          cfg.Sim.Races,
		MaxTicks:       cfg.Sim.MaxTicks,
		PreRaceTicks:   cfg.Sim.PreRaceTicks,
		ShareOpinions:  cfg.Sim.ShareOpinions,
		TicksPerSecond: cfg.Sim.TicksPerSecond,
		Seed:           cfg.Sim.Seed,
		RL: strategy.RLConfig{
			BettingTime:     cfg.RL.BettingTime,
			BettingInterval: cfg.RL.BettingInterval,
			ReplayCapacity:  cfg.RL.ReplayCapacity,
		},
		Trainer: rl.TrainerConfig{
			Schedule: rl.EpsilonSchedule{
				Floor:       cfg.RL.EpsilonFloor,
				WarmupSteps: cfg.RL.WarmupSteps,
				DecaySteps:  cfg.RL.DecaySteps,
			},
			TargetSyncEvery: cfg.RL.TargetSyncEvery,
		},
		CheckpointDir:   cfg.RL.CheckpointDir,
		LoadCheckpoints: cfg.RL.LoadCheckpoints,
		CurveWindow:     cfg.RL.CurveWindow,
	}
	for _, e := range cfg.Population {
		k, err := kinds.ParseKind(e.Kind)
		if err != nil {
			return sim.Config{}, err
		}
		out.Population = append(out.Population, sim.Population{Kind: k, Count: e.Count})
	}
	return out, nil
}

func qnetConfig(c config.RLConfig, p domain.Params) qnet.Config {
	q := qnet.DefaultConfig(strategy.StateSize(p.NumCompetitors), strategy.ActionSize(p.NumCompetitors))
	q.Hidden = c.Hidden
	q.LearningRate = c.LearningRate
	q.Gamma = c.Gamma
	q.MaxGradNorm = c.MaxGradNorm
	return q
}

func needsClassifier(pop []sim.Population) bool {
	for _, e := range pop {
		if e.Kind == kinds.KindClassifier && e.Count > 0 {
			return true
		}
	}
	return false
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

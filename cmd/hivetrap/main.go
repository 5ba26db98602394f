package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hivetrap/internal/capture"
	"hivetrap/internal/config"
	"hivetrap/internal/decoy"
	"hivetrap/internal/enrich"
	"hivetrap/internal/logging"
	"hivetrap/internal/ops"
	"hivetrap/internal/serving"
	"hivetrap/internal/syncer"
)

func main() {
	configPath := flag.String("config", "hivetrap.yml", "path to config file")
	flag.Parse()

	// .env keys (API keys, DSN overrides) load before the config manager
	// reads the environment.
	_ = godotenv.Load()

	mgr, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := mgr.Get()

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("hivetrap starting", "config", mgr.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	captureStore, err := capture.NewSQLite(cfg.Capture.DSN)
	if err != nil {
		logger.Error("open capture store", "err", err)
		os.Exit(1)
	}
	defer captureStore.Close()
	if err := captureStore.Init(ctx); err != nil {
		logger.Error("init capture store", "err", err)
		os.Exit(1)
	}

	var bus *capture.Bus
	if cfg.Bus.Enabled {
		bus = capture.NewBus(cfg.Bus.Brokers, cfg.Bus.Topic)
		defer bus.Close()
		logger.Info("event bus enabled", "brokers", cfg.Bus.Brokers, "topic", cfg.Bus.Topic)
	}

	fallback := capture.NewFallback(cfg.Capture.FallbackDir)
	ring := capture.NewRing(cfg.Capture.RingLimit)
	recorder := capture.NewRecorder(captureStore, fallback, ring, bus, logging.Component(logger, "capture"))

	var servingStore serving.Store
	if cfg.Sync.Enabled {
		servingStore, err = serving.NewStore(cfg.Serving.Driver, cfg.Serving.DSN)
		if err != nil {
			logger.Error("open serving store", "err", err)
			os.Exit(1)
		}
		defer servingStore.Close()
		if err := servingStore.Init(ctx); err != nil {
			logger.Error("init serving store", "err", err)
			os.Exit(1)
		}
		go syncer.New(captureStore, servingStore, cfg.Sync.Interval, logging.Component(logger, "sync")).Run(ctx)
	}

	startDecoys(ctx, cfg, recorder, logger)

	if cfg.Enrich.Enabled {
		startEnrichment(ctx, cfg, logger)
	}

	ops.Start(ctx, mgr, recorder, servingStore, logging.Component(logger, "ops"))

	<-ctx.Done()
	logger.Info("shutting down")
	time.Sleep(500 * time.Millisecond)
	logger.Info("hivetrap stopped")
}

func startDecoys(ctx context.Context, cfg *config.Config, recorder *capture.Recorder, logger *slog.Logger) {
	decoyLogger := logging.Component(logger, "decoy")
	timeout := cfg.Decoys.ReadTimeout

	if cfg.Decoys.SSH.Enabled {
		d, err := decoy.NewSSH(cfg.Decoys.SSH, timeout, recorder, decoyLogger)
		if err != nil {
			logger.Error("ssh decoy init", "err", err)
		} else {
			decoy.Start(ctx, cfg.Decoys.SSH.Addr, d, decoyLogger)
		}
	}
	if cfg.Decoys.FTP.Enabled {
		decoy.Start(ctx, cfg.Decoys.FTP.Addr, decoy.NewFTP(cfg.Decoys.FTP, timeout, recorder, decoyLogger), decoyLogger)
	}
	if cfg.Decoys.MySQL.Enabled {
		decoy.Start(ctx, cfg.Decoys.MySQL.Addr, decoy.NewMySQL(cfg.Decoys.MySQL, timeout, recorder, decoyLogger), decoyLogger)
	}
	if cfg.Decoys.RDP.Enabled {
		decoy.Start(ctx, cfg.Decoys.RDP.Addr, decoy.NewRDP(timeout, recorder, decoyLogger), decoyLogger)
	}
	for _, pc := range cfg.Decoys.Prompt {
		decoy.Start(ctx, pc.Addr, decoy.NewPrompt(pc, timeout, recorder, decoyLogger), decoyLogger)
	}
	if cfg.Decoys.HTTP.Enabled {
		decoy.StartHTTP(ctx, cfg.Decoys.HTTP, recorder, decoyLogger)
	}
}

func startEnrichment(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	enrichLogger := logging.Component(logger, "enrich")

	geo := enrich.NewGeoIPResolver(cfg.Enrich.GeoIP, enrichLogger)
	assessor := enrich.NewAssessor(cfg.Enrich.Threat, buildProviders(cfg.Enrich.Threat), enrichLogger)
	pipe := enrich.NewPipeline(geo, assessor, enrichLogger)

	in := make(chan string, 256)
	switch cfg.Enrich.Input.Mode {
	case "kafka":
		enrich.StartKafkaSource(ctx, cfg.Enrich.Input.Kafka, in, enrichLogger)
	case "redis":
		enrich.StartRedisSource(ctx, cfg.Enrich.Input.Redis, in, enrichLogger)
	default:
		enrich.StartStdin(ctx, os.Stdin, in, enrichLogger)
	}

	var sink enrich.Sink
	switch cfg.Enrich.Output.Mode {
	case "file":
		s, err := enrich.NewFileSink(cfg.Enrich.Output.Path)
		if err != nil {
			logger.Error("open enrichment output file, falling back to stdout", "path", cfg.Enrich.Output.Path, "err", err)
			s = enrich.NewWriterSink(os.Stdout)
		}
		sink = s
	case "kafka":
		sink = enrich.NewKafkaSink(cfg.Enrich.Output.Kafka)
	default:
		sink = enrich.NewWriterSink(os.Stdout)
	}

	go func() {
		pipe.Run(ctx, in, sink)
		_ = sink.Close()
	}()
}

func buildProviders(cfg config.ThreatConfig) []enrich.Provider {
	var providers []enrich.Provider
	if cfg.AbuseIPDBKey != "" {
		providers = append(providers, enrich.NewAbuseIPDB(cfg.AbuseIPDBKey, cfg.Timeout))
	}
	if cfg.VirusTotalKey != "" {
		providers = append(providers, enrich.NewVirusTotal(cfg.VirusTotalKey, cfg.Timeout))
	}
	return providers
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cloisterworks/cloister-server-go/internal/catalog"
	"github.com/cloisterworks/cloister-server-go/internal/config"
	"github.com/cloisterworks/cloister-server-go/internal/game"
	"github.com/cloisterworks/cloister-server-go/internal/server"
	"github.com/cloisterworks/cloister-server-go/internal/session"
	"github.com/cloisterworks/cloister-server-go/internal/store"
)

var (
	configPath = flag.String("config", "", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting cloister server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Load the tile catalog
	cat := catalog.Default()
	if cfg.Game.TilesetPath != "" {
		cat, err = catalog.Load(cfg.Game.TilesetPath)
		if err != nil {
			logger.Fatal("failed to load tile set", zap.Error(err))
		}
	}
	logger.Info("tile catalog loaded",
		zap.Int("tile_types", len(cat.TileIDs())),
		zap.Int("total_tiles", cat.TotalTiles()),
	)

	// Open the match store
	dsn := cfg.Store.SQLitePath
	if cfg.Store.Driver == "postgres" {
		dsn = cfg.Store.PostgresURL
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn)
	if err != nil {
		logger.Fatal("failed to open match store", zap.Error(err))
	}
	defer st.Close()
	logger.Info("match store opened", zap.String("driver", cfg.Store.Driver))

	// Initialize the match engine and reload persisted matches
	engine := game.NewEngine(logger, cat)
	recs, err := st.ListMatches(ctx)
	if err != nil {
		logger.Warn("failed to list stored matches", zap.Error(err))
	}
	restored := 0
	for _, rec := range recs {
		if err := engine.RestoreMatch(rec); err != nil {
			logger.Warn("skipping unrestorable match record",
				zap.String("match_id", rec.MatchID),
				zap.Error(err))
			continue
		}
		restored++
	}
	engine.SetRecorder(st)
	logger.Info("match engine initialized", zap.Int("matches_restored", restored))

	// Initialize session manager
	sessionMgr := session.NewManager(logger, cfg.Session.Lease, engine)
	logger.Info("session manager initialized",
		zap.Duration("lease", cfg.Session.Lease),
	)
	go sessionMgr.CleanupExpired(ctx)

	matchDefaults := game.Config{
		Mode:          game.ModeStandard,
		MeepleBudget:  cfg.Game.MeepleBudget,
		MoveLimit:     cfg.Game.MoveLimit,
		SelectionSize: cfg.Game.SelectionSize,
	}
	srv := server.New(logger, engine, sessionMgr, matchDefaults)
	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: srv,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("HTTP server error", zap.Error(serveErr))
		}
	}()

	logger.Info("cloister server initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
		zap.String("store", cfg.Store.Driver),
	)

	// Wait for termination signal
	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	logger.Info("cloister server stopped")
}

// initLogger initializes the zap logger based on configuration. With a
// log file configured, output goes through lumberjack rotation
// instead of the process streams.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var encoder zapcore.Encoder
		if cfg.Format == "json" {
			encoder = zapcore.NewJSONEncoder(encCfg)
		} else {
			encoder = zapcore.NewConsoleEncoder(encCfg)
		}
		core := zapcore.NewCore(encoder, zapcore.AddSync(lj), level)
		return zap.New(core), nil
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"hunt-arena/server/internal/config"
	"hunt-arena/server/internal/match"
	servernet "hunt-arena/server/internal/net"
	"hunt-arena/server/internal/net/ws"
	"hunt-arena/server/internal/pathing"
	"hunt-arena/server/internal/telemetry"
	"hunt-arena/server/internal/terrain"
	"hunt-arena/server/logging"
	loggingSinks "hunt-arena/server/logging/sinks"
)

type Config struct {
	Logger     telemetry.Logger
	ConfigPath string
	EnvPath    string
}

const shutdownGrace = 5 * time.Second

func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogrus(logrus.NewEntry(logrus.StandardLogger()))
	}

	if err := config.LoadEnv(cfg.EnvPath); err != nil {
		telemetryLogger.Printf("ignoring env file: %v", err)
	}
	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	settings.ApplyEnv(telemetryLogger)
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	router, err := newRouter(settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()
	metrics := router.Metrics()

	var footprints *pathing.FootprintCache
	if size := settings.Pathing.FootprintCacheSize; size > 0 {
		footprints, err = pathing.NewFootprintCache(size)
		if err != nil {
			return fmt.Errorf("failed to construct footprint cache: %w", err)
		}
		defer footprints.Close()
	}

	arena, err := terrain.Load(settings.Simulation.Map)
	if err != nil {
		return err
	}

	mt, err := match.New(arena, match.Config{
		TickRate:        settings.Simulation.TickRate,
		CatchupMaxTicks: settings.Simulation.CatchupMaxTicks,
		CommandCapacity: settings.Simulation.CommandCapacity,
		PerActorLimit:   settings.Simulation.PerActorLimit,
	}, match.Deps{
		Publisher:  router,
		Logger:     telemetryLogger,
		Metrics:    telemetry.WrapMetrics(metrics),
		Footprints: footprints,
	})
	if err != nil {
		return err
	}
	defer mt.Close()

	hub := ws.NewHub(router, telemetryLogger, telemetry.WrapMetrics(metrics))
	defer hub.Close()

	every := uint64(max(settings.Server.SnapshotEvery, 1))
	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		mt.Run(loopCtx, match.LoopHooks{
			AfterStep: func(result match.StepResult) {
				if result.Tick%every == 0 {
					hub.Broadcast(result.Snapshot)
				}
			},
		})
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	handler := servernet.NewHTTPHandler(mt, hub, servernet.HTTPHandlerConfig{
		Logger:       telemetryLogger,
		Metrics:      metrics,
		WriteTimeout: settings.Server.WriteTimeout,
	})

	srv := &http.Server{Addr: settings.Server.Addr, Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s (map %s, match %s)", srv.Addr, arena.Name, mt.ID())
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newRouter(settings config.LoggingConfig) (*logging.Router, error) {
	logConfig := logging.DefaultConfig()
	logConfig.Sinks = settings.Sinks
	logConfig.MinSeverity = logging.ParseSeverity(settings.Level)
	logConfig.Console = logging.ConsoleConfig{UseColor: settings.Color}
	logConfig.JSON = logging.JSONConfig{
		FilePath:   settings.File,
		MaxSizeMB:  settings.MaxSizeMB,
		MaxBackups: settings.MaxBackups,
		MaxAgeDays: settings.MaxAgeDays,
		Compress:   settings.Compress,
	}

	sinks := make(map[string]logging.Sink)
	if logConfig.Enabled("console") {
		sinks["console"] = loggingSinks.NewConsole(os.Stdout, logConfig.Console)
	}
	if logConfig.Enabled("json") {
		sinks["json"] = loggingSinks.NewRotatingFile(logConfig.JSON)
	}
	return logging.NewRouter(logConfig, logging.SystemClock{}, log.New(os.Stderr, "[logging] ", log.LstdFlags), sinks)
}

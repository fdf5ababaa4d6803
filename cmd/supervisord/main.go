// Command supervisord is the observatory operations supervisor's
// entrypoint: it loads configuration, wires the Environment Monitor,
// Enclosure Controller, and Action Scheduler to their RPC collaborators,
// mounts the Supervisor Facade over HTTP, and runs until an operator
// sends SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obscore/supervisor/internal/catalog"
	"github.com/obscore/supervisor/internal/config"
	"github.com/obscore/supervisor/internal/enclosure"
	"github.com/obscore/supervisor/internal/environment"
	"github.com/obscore/supervisor/internal/events"
	"github.com/obscore/supervisor/internal/facade"
	"github.com/obscore/supervisor/internal/healthself"
	"github.com/obscore/supervisor/internal/logging"
	"github.com/obscore/supervisor/internal/schedule"
	"github.com/obscore/supervisor/internal/scheduler"
	"github.com/obscore/supervisor/internal/shutterrpc"
	"github.com/obscore/supervisor/internal/weatherrpc"
	"github.com/obscore/supervisor/pkg/logger"
)

func main() {
	var dataDirFlag, configPath string
	flag.StringVar(&dataDirFlag, "data-dir", "", "data directory (overrides SUPERVISOR_DATA_DIR environment variable)")
	flag.StringVar(&configPath, "config", "/etc/obscore/supervisor.json", "path to the supervisor's JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath, dataDirFlag)
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Str("data_dir", cfg.DataDir).Msg("starting supervisord")

	store, err := logging.Open(cfg.DataDir+"/event_log.sqlite", log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event log store")
	}
	defer store.Close()

	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)
	store.AttachToBus(bus)

	var archiver *logging.Archiver
	var rotator *logging.Rotator
	if cfg.ArchiveEnabled {
		archiver, err = logging.NewArchiver(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.ArchiveBucket, log)
		if err != nil {
			log.Error().Err(err).Msg("archive enabled but credentials are incomplete, continuing without nightly archive")
		} else {
			rotator, err = logging.NewRotator(cfg.ArchiveCron, store, archiver, log)
			if err != nil {
				log.Error().Err(err).Msg("invalid archive cron expression, continuing without nightly archive")
				rotator = nil
			}
		}
	}

	weatherClient, err := weatherrpc.New(cfg.EnvironmentSourceDaemon, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to the environment source daemon")
	}

	shutterClient, err := shutterrpc.New(cfg.DomeBackend.SocketPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to the dome backend")
	}

	monitor := environment.New(weatherClient, cfg.GroupSpecs(), manager, cfg.LoopPeriod(), log)
	monitor.Start()
	defer monitor.Stop()

	enclosureController := enclosure.New(shutterClient, monitor, manager, cfg.LoopPeriod(), log)
	enclosureController.SetStaleLimit(cfg.StaleLimit())
	enclosureController.Start()
	defer enclosureController.Stop()

	registry, err := catalog.NewRegistryForModule(cfg.ActionCatalogModule)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load action catalog")
	}

	siteLabel := cfg.LogTag
	actionScheduler := scheduler.New(enclosureController, registry, manager, siteLabel, cfg.LoopPeriod(), log)
	actionScheduler.Start()
	defer actionScheduler.Stop()

	ingest := schedule.New(
		schedule.SiteLocation{Latitude: cfg.Site.Latitude, Longitude: cfg.Site.Longitude, ElevationM: cfg.Site.ElevationM},
		registry,
		cfg.RequireTonight,
	)

	health := healthself.NewReporter(cfg.DataDir)

	f := facade.New(
		enclosureController,
		actionScheduler,
		ingest,
		registry,
		siteLabel,
		manager,
		store,
		health,
		cfg.AllowedControlMachines,
		cfg.PipelineNotifierMachines,
		log,
	)

	httpServer := &http.Server{
		Addr:    cfg.DaemonAddress,
		Handler: f.Router(),
	}

	if rotator != nil {
		rotator.Start()
		defer rotator.Stop()
	}

	go func() {
		log.Info().Str("addr", cfg.DaemonAddress).Msg("facade listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("facade server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down supervisord")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("facade server forced to shutdown")
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/LuKks/protobee/internal/infra/buildinfo"
	"github.com/LuKks/protobee/internal/infra/confloader"
	"github.com/LuKks/protobee/internal/infra/shutdown"
	"github.com/LuKks/protobee/internal/server/beeserver"
	"github.com/LuKks/protobee/internal/server/config"
	"github.com/LuKks/protobee/internal/server/httpserver"
	"github.com/LuKks/protobee/internal/storage"
	"github.com/LuKks/protobee/internal/telemetry/logger"
	"github.com/LuKks/protobee/internal/telemetry/metric"
	"github.com/LuKks/protobee/internal/telemetry/tracer"
	"github.com/LuKks/protobee/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		printKeys   = flag.Bool("print-keys", false, "Print the keys a client needs and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(config.ToLoggerConfig(cfg))
	slog.SetDefault(log)

	primaryKey, created, err := config.PrimaryKey(cfg)
	if err != nil {
		return fmt.Errorf("primary key: %w", err)
	}
	if created {
		log.Info("generated client primary key", "path", config.PrimaryKeyPath(cfg))
	}

	if *printKeys {
		keys, err := transport.DeriveKeys(primaryKey)
		if err != nil {
			return err
		}
		printClientKeys(keys.Server.Public, keys.ClientPrimaryKey)
		return nil
	}

	log.Info("starting protobee-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile,
		"effective", config.Sanitize(cfg))

	ctx := context.Background()
	tp, err := tracer.New(ctx, config.ToTracerConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}

	metrics := metric.Global()
	engine, err := storage.Open(config.ToStorageConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	engine.RegisterMetrics(metrics.Registerer())

	srv, err := beeserver.New(config.ToServerConfig(cfg, primaryKey), engine, metrics, log)
	if err != nil {
		engine.Close()
		return fmt.Errorf("init server: %w", err)
	}
	metrics.Registerer().MustRegister(metric.NewCollector(srv))

	// Hooks run in reverse: the HTTP listener stops first, storage last.
	sh := shutdown.NewHandler(30 * time.Second)
	sh.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down tracer")
		return tp.Shutdown(ctx)
	})
	sh.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down storage engine")
		return engine.Close()
	})

	if err := srv.Start(ctx); err != nil {
		engine.Close()
		return fmt.Errorf("start server: %w", err)
	}
	sh.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down RPC server")
		return srv.Shutdown(ctx)
	})

	log.Info("protobee listening",
		"addr", srv.Addr().String(),
		"server_key", transport.EncodeKey(srv.PublicKey()))
	printClientKeys(srv.PublicKey(), srv.ClientPrimaryKey())

	if cfg.Server.MetricsAddr != "" {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Server:    srv,
			Engine:    engine,
			Metrics:   metrics,
			Logger:    log,
			AllowList: cfg.Server.MetricsAllow,
		})
		httpSrv := httpserver.New(cfg.Server.MetricsAddr, router, log)
		if err := httpSrv.Start(); err != nil {
			sh.Trigger()
			sh.Wait(ctx)
			return fmt.Errorf("start http server: %w", err)
		}
		sh.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down HTTP server")
			return httpSrv.Shutdown(ctx)
		})
		log.Info("HTTP server listening", "addr", httpSrv.Addr().String())
	}

	if *configFile != "" {
		watcher, err := watchLogLevel(*configFile, log)
		if err != nil {
			log.Warn("config reload disabled", "error", err)
		} else {
			sh.OnShutdown(func(context.Context) error { return watcher.Stop() })
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := sh.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// printClientKeys writes the settings protobee-cli needs to stdout, in the
// cli.yaml format. Logs never carry the client key.
func printClientKeys(serverKey, clientKey []byte) {
	fmt.Printf("server_key: %s\nclient_key: %s\n", transport.EncodeKey(serverKey), transport.EncodeKey(clientKey))
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// watchLogLevel applies log.level changes from the config file without a
// restart. Other settings need one.
func watchLogLevel(path string, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Stop()
		return nil, err
	}

	w.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level reloaded", "level", cfg.Log.Level)
	})
	w.StartAsync()
	return w, nil
}

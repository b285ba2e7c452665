// Package cmd wires configuration, bootstrap and the Telegram runtime into a process.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/stagebot/core/bootstrap"
	coreconfig "github.com/m3rciful/stagebot/core/config"
	"github.com/m3rciful/stagebot/core/conversation"
	"github.com/m3rciful/stagebot/core/logger"
	coretelegram "github.com/m3rciful/stagebot/core/telegram"
)

// Options describe how to load configuration, bootstrap the app, and run the bot.
type Options struct {
	// ConfigPath wins over ConfigEnvVar and DefaultConfigPath.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	Registry *conversation.Registry

	LoadConfig     func(path string) (*coreconfig.Config, error)
	Bootstrap      func(ctx context.Context, opts bootstrap.Options) (*bootstrap.Result, error)
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// ResolveConfigPath picks the config file path. An empty result means
// configuration comes from the environment only.
func ResolveConfigPath(explicit, envVar, fallback string) string {
	if explicit != "" {
		return explicit
	}
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := os.Getenv(envVar); p != "" {
		return p
	}
	return fallback
}

// LoadConfig reads .env if present and then loads the configuration at path.
func LoadConfig(path string) (*coreconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cmd: failed to read .env: %w", err)
	}
	if path != "" {
		log.Printf("loading config: %s", path)
	}
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: failed to load config: %w", err)
	}
	return cfg, nil
}

// Run loads configuration, bootstraps storage, and runs the bot until ctx
// is done or SIGINT/SIGTERM arrives.
func Run(ctx context.Context, opts Options) error {
	if opts.Registry == nil {
		return fmt.Errorf("cmd: Registry is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loadConfig := opts.LoadConfig
	if loadConfig == nil {
		loadConfig = LoadConfig
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}
	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}

	startedAt := time.Now()
	cfg, err := loadConfig(ResolveConfigPath(opts.ConfigPath, opts.ConfigEnvVar, opts.DefaultConfigPath))
	if err != nil {
		return err
	}

	res, err := boot(ctx, bootstrap.Options{Config: cfg, Registry: opts.Registry})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn(context.Background(), "app", "storage.close",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}()

	runOpts := coretelegram.RunOptions{
		Config:        cfg,
		Registry:      opts.Registry,
		Store:         res.Store,
		RouterOptions: res.RouterOptions,
		Middlewares:   coretelegram.DefaultMiddlewares(cfg, nil),
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			logger.Info(ctx, "app", "ready",
				slog.String("status", "ok"),
				slog.String("store", cfg.Session.Store),
				slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if rt.Dispatcher != nil {
				attrs = append(attrs, slog.Uint64("send_errors", rt.Dispatcher.ErrorCount()))
			}
			logger.Info(ctx, "app", "shutdown", attrs...)
			return nil
		},
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		defer stop()
		return run(gctx, runOpts)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Debug(context.Background(), "app", "stopping",
			slog.String("cause", context.Cause(gctx).Error()),
		)
		return nil
	})
	return g.Wait()
}

package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codefionn/huddle/internal/config"
	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/lockfile"
	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/store"
	"github.com/codefionn/huddle/internal/web"
)

func runServe(args []string) (err error) {
	var configPath, listen, logLevel string
	fs := newFlagSet("serve", &configPath)
	fs.StringVar(&listen, "listen", "", "listen address, overrides listen_addr")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error, none)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	logger.Info("huddle starting")
	logger.Debug("Configuration loaded: listen_addr=%s, database_path=%s, log_level=%s", cfg.ListenAddr, cfg.DatabasePath, cfg.LogLevel)

	if cfg.DatabasePath != store.MemoryPath {
		lock := lockfile.ForDatabase(cfg.DatabasePath)
		if err := lock.TryAcquire(); err != nil {
			return err
		}
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				logger.Warn("Failed to release %s: %v", lock.Path(), releaseErr)
			}
		}()
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	// No connection survives a restart.
	if err := st.ResetPresence(context.Background()); err != nil {
		return err
	}

	tokens, err := newTokens(cfg)
	if err != nil {
		return err
	}

	srv := web.NewServer(cfg, st, fabric.NewLocal(cfg.FabricShards), tokens)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		err := config.Watch(ctx, path, func(next *config.Config) {
			logger.Global().SetLevel(logger.ParseLevel(next.LogLevel))
		})
		if err != nil {
			logger.Warn("Config watching disabled: %v", err)
		}
		return nil
	})
	return g.Wait()
}

func newTokens(cfg *config.Config) (*identity.Tokens, error) {
	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		logger.Warn("No token_secret configured; sessions will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
	}
	return identity.NewTokens(secret, time.Duration(cfg.TokenTTL)*time.Second, nil)
}

func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, path, nil
}

// chatstream - A streaming chat assistant for OpenAI-compatible models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/chatstream/internal/cli"
	"github.com/jeranaias/chatstream/internal/cloud"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/orchestrator"
	"github.com/jeranaias/chatstream/internal/server"
	"github.com/jeranaias/chatstream/internal/session"
)

// Version information (set at build time)
var (
	Version   = server.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	switch cmd {
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return
	case cli.CmdHelp:
		if args.Unknown != "" {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args.Unknown)
			cli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		cli.PrintUsage(os.Stdout)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, cfgPath, err := loadConfig(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	config.SetGlobal(cfg)

	switch cmd {
	case cli.CmdChat:
		// The REPL handles signals itself: SIGINT cancels a turn, SIGTERM exits.
		stop()
		err = cli.RunChat(context.Background(), cfg, clientFactory(cfg), args)
	default:
		if args.Addr != "" {
			cfg.Server.Addr = args.Addr
		}
		err = runServe(ctx, cfg, cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads an explicit path, or the default locations. It returns the
// path worth watching for changes ("" when none).
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		config.LoadDotEnv()
		cfg, err := config.LoadFromPath(path)
		return cfg, path, err
	}

	cfg, err := config.Load()
	if cfg == nil {
		return nil, "", err
	}
	if err != nil {
		log.Printf("CONFIG_FALLBACK | using defaults error=%v", err)
	}
	watchPath, _ := config.ConfigPathTOML()
	return cfg, watchPath, nil
}

// clientFactory binds credentials to completion clients for one provider.
func clientFactory(cfg *config.Config) session.ClientFactory {
	baseURL, timeout := cfg.Provider.BaseURL, cfg.Provider.Timeout()
	return func(credential string) (cloud.Streamer, error) {
		return cloud.NewClient(credential, cloud.WithBaseURL(baseURL), cloud.WithTimeout(timeout))
	}
}

// newStore opens the configured session store.
func newStore(cfg *config.Config) (session.Store, error) {
	if session.StoreType(cfg.Session.Store) == session.StoreTypeRedis {
		return session.NewRedisStoreFromURL(cfg.Session.RedisURL, cfg.Session.IdleTimeout())
	}
	return session.NewStore(session.StoreTypeMemory, session.WithTTL(cfg.Session.IdleTimeout()))
}

// runServe starts the HTTP UI and blocks until ctx is cancelled.
func runServe(ctx context.Context, cfg *config.Config, cfgPath string) error {
	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	mgr := session.NewManager(session.Config{
		IdleTimeout: cfg.Session.IdleTimeout(),
		Params:      cfg.Generation.Params(),
		Credential:  cfg.Provider.APIKey,
	}, clientFactory(cfg), session.WithStore(store))
	mgr.Start(ctx)
	defer func() {
		if err := mgr.Stop(); err != nil {
			log.Printf("SESSION_STORE_CLOSE_FAILED | error=%v", err)
		}
	}()

	if cfgPath != "" {
		err := config.Watch(ctx, cfgPath, func(c *config.Config) {
			mgr.SetDefaults(c.Generation.Params(), c.Provider.APIKey)
			config.SetGlobal(c)
		})
		if err != nil {
			log.Printf("CONFIG_WATCH_FAILED | path=%s error=%v", cfgPath, err)
		}
	}

	orch := orchestrator.New(orchestrator.WithSaver(mgr.Save))
	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		ExportDir: cfg.Export.OutputDir,
	}, mgr, orch)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("SERVER_START | addr=%s store=%s model=%s", srv.Addr(), cfg.Session.Store, cfg.Generation.Model)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Printf("SERVER_STOPPED | addr=%s", srv.Addr())
	return nil
}

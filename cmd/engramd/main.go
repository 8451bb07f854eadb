// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Command engramd is the memory persistence daemon. It loads the
// signing secret, opens the durable queue and state store, and drives
// upload and anchor jobs until terminated.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/engram-foundation/engram/lib/anchor"
	"github.com/engram-foundation/engram/lib/clock"
	"github.com/engram-foundation/engram/lib/config"
	"github.com/engram-foundation/engram/lib/contentstore"
	"github.com/engram-foundation/engram/lib/escrow"
	"github.com/engram-foundation/engram/lib/jobqueue"
	"github.com/engram-foundation/engram/lib/memcrypt"
	"github.com/engram-foundation/engram/lib/pipeline"
	"github.com/engram-foundation/engram/lib/secret"
	"github.com/engram-foundation/engram/lib/streamstate"
	"github.com/engram-foundation/engram/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		showVersion  bool
		exportEscrow bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the config file (overrides "+config.EnvVar+")")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.BoolVar(&exportEscrow, "export-escrow", false, "seal the signing secret to the configured escrow recipients, print it, and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("engramd %s\n", version.Info())
		return nil
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// The signing secret goes straight into guarded memory and stays
	// there for the life of the process.
	signingSecret, err := secret.ReadFromPath(cfg.SigningSecretPath)
	if err != nil {
		return fmt.Errorf("reading signing secret: %w", err)
	}
	defer signingSecret.Close()

	if exportEscrow {
		if len(cfg.EscrowRecipients) == 0 {
			return fmt.Errorf("--export-escrow requires escrow_recipients in the config")
		}
		sealed, err := escrow.Seal(signingSecret, cfg.EscrowRecipients)
		if err != nil {
			return err
		}
		fmt.Println(sealed)
		return nil
	}

	realClock := clock.Real()

	var state streamstate.Store
	switch cfg.StateBackend {
	case config.StateBackendSQLite:
		sqliteStore, err := streamstate.OpenSQLiteStore(cfg.StatePath(), logger)
		if err != nil {
			return fmt.Errorf("opening sqlite state store: %w", err)
		}
		defer sqliteStore.Close()
		state = sqliteStore
	default:
		fileStore, err := streamstate.OpenFileStore(cfg.StatePath())
		if err != nil {
			return fmt.Errorf("opening file state store: %w", err)
		}
		state = fileStore
	}

	queue, err := jobqueue.Open(cfg.QueuePath(), jobqueue.Options{
		Clock:       realClock,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Queue.BaseBackoff),
	})
	if err != nil {
		return fmt.Errorf("opening job queue: %w", err)
	}
	defer queue.Close()

	content, err := contentstore.NewHTTPClient(cfg.Content.Endpoints, cfg.Content.RequestRate)
	if err != nil {
		return err
	}

	policy, err := cfg.Anchor.PolicyValue()
	if err != nil {
		return err
	}
	var anchorClient anchor.Client
	if policy != anchor.PolicyDisabled {
		anchorClient = anchor.NewHTTPClient(cfg.Anchor.Endpoint, cfg.Anchor.SubmitRate)
	}

	keys := memcrypt.NewKeyCache(realClock, time.Duration(cfg.KeyCacheTTL), 0)
	defer keys.Close()

	orchestrator, err := pipeline.New(pipeline.Options{
		State:         state,
		Queue:         queue,
		Content:       content,
		Anchor:        anchorClient,
		AnchorPolicy:  policy,
		SigningSecret: signingSecret,
		Keys:          keys,
		Clock:         realClock,
		Logger:        logger,
		RecallFanOut:  cfg.Recall.FanOut,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("engramd started",
		"version", version.Info(),
		"data_dir", cfg.DataDir,
		"state_backend", string(cfg.StateBackend),
		"anchor_policy", policy.String(),
		"pending_jobs", queue.Len())

	err = orchestrator.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("engramd stopped", "pending_jobs", queue.Len())
		return nil
	}
	return err
}

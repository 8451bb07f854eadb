// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Command engram-chain-check verifies the hash chain of a stream
// against the content store and local stream state. It exits non-zero
// if any chain link is broken, so it can run from cron or a health
// check.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/clock"
	"github.com/engram-foundation/engram/lib/config"
	"github.com/engram-foundation/engram/lib/contentstore"
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
		configPath  string
		streamID    string
		limit       int
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the config file (overrides "+config.EnvVar+")")
	pflag.StringVar(&streamID, "stream", "", "stream to verify, as owner/agent (required)")
	pflag.IntVar(&limit, "limit", 0, "verify at most this many records (0 means all)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("engram-chain-check %s\n", version.Info())
		return nil
	}
	if streamID == "" {
		return fmt.Errorf("--stream is required")
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

	signingSecret, err := secret.ReadFromPath(cfg.SigningSecretPath)
	if err != nil {
		return fmt.Errorf("reading signing secret: %w", err)
	}
	defer signingSecret.Close()

	content, err := contentstore.NewHTTPClient(cfg.Content.Endpoints, cfg.Content.RequestRate)
	if err != nil {
		return err
	}

	keys := memcrypt.NewKeyCache(clock.Real(), time.Duration(cfg.KeyCacheTTL), 0)
	defer keys.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	reader, err := pipeline.NewReader(pipeline.ReaderOptions{
		Content:       content,
		SigningSecret: signingSecret,
		Keys:          keys,
		Logger:        logger,
		RecallFanOut:  cfg.Recall.FanOut,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	records, err := reader.Recall(ctx, streamID, limit)
	if err != nil {
		return fmt.Errorf("recalling %s: %w", streamID, err)
	}
	if len(records) == 0 {
		fmt.Printf("%s: no records\n", streamID)
		return nil
	}

	failed := false

	breaks := chain.VerifyChainIntegrity(records)
	for _, chainBreak := range breaks {
		failed = true
		record := records[chainBreak.Index]
		fmt.Printf("%s: break at record %d (%s, created %s):\n",
			streamID, chainBreak.Index, record.StorePointer,
			record.CreatedAt.Format(time.RFC3339))
		for _, violation := range chainBreak.Violations {
			fmt.Printf("  %s\n", violation)
		}
	}

	// Cross-check the local state head against the verified tail.
	state, stateErr := openState(cfg)
	if stateErr != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open local state: %v\n", stateErr)
	} else {
		if closer, ok := state.(interface{ Close() error }); ok {
			defer closer.Close()
		}
		streamState, err := state.Get(ctx, streamID)
		if err != nil {
			return fmt.Errorf("reading local state: %w", err)
		}
		tail := records[len(records)-1]
		if streamState.LastContentHash != tail.ContentHash {
			failed = true
			fmt.Printf("%s: local state head %s does not match newest stored record %s\n",
				streamID, streamState.LastContentHash, tail.ContentHash)
		}
	}

	if failed {
		return fmt.Errorf("%s: chain verification failed", streamID)
	}
	fmt.Printf("%s: %d records, chain intact\n", streamID, len(records))
	return nil
}

func openState(cfg *config.Config) (streamstate.Store, error) {
	switch cfg.StateBackend {
	case config.StateBackendSQLite:
		return streamstate.OpenSQLiteStore(cfg.StatePath(), nil)
	default:
		return streamstate.OpenFileStore(cfg.StatePath())
	}
}

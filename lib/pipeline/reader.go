// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/engram-foundation/engram/lib/contentstore"
	"github.com/engram-foundation/engram/lib/memcrypt"
	"github.com/engram-foundation/engram/lib/secret"
)

// ReaderOptions configures a Reader. Content, SigningSecret, and Keys
// are required.
type ReaderOptions struct {
	Content       contentstore.Client
	SigningSecret *secret.Buffer
	Keys          *memcrypt.KeyCache
	Logger        *slog.Logger

	// RecallFanOut bounds concurrent fetches during Recall.
	RecallFanOut int
}

// Reader is the read-only half of the pipeline: it can recall and
// verify records but never writes state or enqueues work. Verification
// tooling uses a bare Reader; the Orchestrator embeds one.
type Reader struct {
	content      contentstore.Client
	signing      *secret.Buffer
	keys         *memcrypt.KeyCache
	logger       *slog.Logger
	recallFanOut int
	decompressor *zstd.Decoder
}

// NewReader validates options and builds a reader.
func NewReader(options ReaderOptions) (*Reader, error) {
	if options.Content == nil {
		return nil, fmt.Errorf("pipeline: Content is required")
	}
	if options.SigningSecret == nil {
		return nil, fmt.Errorf("pipeline: SigningSecret is required")
	}
	if options.Keys == nil {
		return nil, fmt.Errorf("pipeline: Keys is required")
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.RecallFanOut <= 0 {
		options.RecallFanOut = DefaultRecallFanOut
	}

	decompressor, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("pipeline: creating zstd decoder: %w", err)
	}
	return &Reader{
		content:      options.Content,
		signing:      options.SigningSecret,
		keys:         options.Keys,
		logger:       options.Logger,
		recallFanOut: options.RecallFanOut,
		decompressor: decompressor,
	}, nil
}

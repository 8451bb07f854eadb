// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/engram-foundation/engram/lib/anchor"
	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/clock"
	"github.com/engram-foundation/engram/lib/codec"
	"github.com/engram-foundation/engram/lib/contentstore"
	"github.com/engram-foundation/engram/lib/jobqueue"
	"github.com/engram-foundation/engram/lib/memcrypt"
	"github.com/engram-foundation/engram/lib/secret"
	"github.com/engram-foundation/engram/lib/streamstate"
)

// Defaults applied when Options fields are zero.
const (
	DefaultRecallFanOut = 8
	DefaultIdlePoll     = 2 * time.Second
)

// Options configures an Orchestrator. State, Queue, Content,
// SigningSecret, Keys, and Clock are required; Anchor may be nil only
// when AnchorPolicy is disabled.
type Options struct {
	State         streamstate.Store
	Queue         *jobqueue.Queue
	Content       contentstore.Client
	Anchor        anchor.Client
	AnchorPolicy  anchor.Policy
	SigningSecret *secret.Buffer
	Keys          *memcrypt.KeyCache
	Clock         clock.Clock
	Logger        *slog.Logger

	// RecallFanOut bounds concurrent fetches during Recall.
	RecallFanOut int

	// IdlePoll is how long Run sleeps when the queue is empty.
	IdlePoll time.Duration
}

// Orchestrator drives records through the save, upload, anchor, and
// recall paths. The embedded Reader provides Recall.
type Orchestrator struct {
	*Reader

	state        streamstate.Store
	queue        *jobqueue.Queue
	anchorClient anchor.Client
	anchorPolicy anchor.Policy
	identity     string
	clock        clock.Clock
	idlePoll     time.Duration
	compressor   *zstd.Encoder
}

// New validates options and builds an orchestrator.
func New(options Options) (*Orchestrator, error) {
	if options.State == nil {
		return nil, fmt.Errorf("pipeline: State is required")
	}
	if options.Queue == nil {
		return nil, fmt.Errorf("pipeline: Queue is required")
	}
	if options.Clock == nil {
		return nil, fmt.Errorf("pipeline: Clock is required")
	}
	if options.Anchor == nil && options.AnchorPolicy != anchor.PolicyDisabled {
		return nil, fmt.Errorf("pipeline: anchor policy %s requires an anchor client", options.AnchorPolicy)
	}
	if options.IdlePoll <= 0 {
		options.IdlePoll = DefaultIdlePoll
	}

	reader, err := NewReader(ReaderOptions{
		Content:       options.Content,
		SigningSecret: options.SigningSecret,
		Keys:          options.Keys,
		Logger:        options.Logger,
		RecallFanOut:  options.RecallFanOut,
	})
	if err != nil {
		return nil, err
	}

	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("pipeline: creating zstd encoder: %w", err)
	}

	return &Orchestrator{
		Reader:       reader,
		state:        options.State,
		queue:        options.Queue,
		anchorClient: options.Anchor,
		anchorPolicy: options.AnchorPolicy,
		identity:     memcrypt.SigningIdentity(options.SigningSecret),
		clock:        options.Clock,
		idlePoll:     options.IdlePoll,
		compressor:   compressor,
	}, nil
}

// SaveInput describes one captured memory to persist.
type SaveInput struct {
	// Owner and Agent identify the stream.
	Owner string
	Agent string

	// SchemaTag names the payload schema.
	SchemaTag string

	// SessionRef ties the record to its capture session.
	SessionRef string

	// Payload is the captured content in canonical CBOR.
	Payload codec.RawMessage
}

// StreamID returns the stream identifier for the input.
func (in SaveInput) StreamID() string {
	return in.Owner + "/" + in.Agent
}

// streamKeyContext is the key derivation context for a stream. Every
// record of a stream encrypts under the same derived key.
func streamKeyContext(streamID string) string {
	return "stream/" + streamID
}

// Save builds a chained record from the input and enqueues its upload.
// It reads stream state but never writes it: state advances only when
// the upload executor confirms the store accepted the blob. The
// enqueue is deduplicated on (owner, agent, date, content hash), so
// saving identical content twice in one day is one upload.
func (o *Orchestrator) Save(ctx context.Context, input SaveInput) (*chain.Record, error) {
	if input.Owner == "" || input.Agent == "" {
		return nil, fmt.Errorf("pipeline: save requires owner and agent")
	}
	if strings.Contains(input.Owner, "/") || strings.Contains(input.Agent, "/") {
		return nil, fmt.Errorf("pipeline: owner and agent must not contain %q", "/")
	}
	if len(input.Payload) == 0 {
		return nil, fmt.Errorf("pipeline: save requires a payload")
	}

	streamID := input.StreamID()
	state, err := o.state.Get(ctx, streamID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading state for %s: %w", streamID, err)
	}

	now := o.clock.Now().UTC()
	record := &chain.Record{
		StreamID:      streamID,
		CreatedAt:     now,
		SchemaTag:     input.SchemaTag,
		SessionRef:    input.SessionRef,
		ChainPrev:     state.LastPointer,
		ChainPrevHash: state.LastContentHash,
		Payload:       input.Payload,
	}
	contentHash, err := chain.ComputeContentHash(record)
	if err != nil {
		return nil, fmt.Errorf("pipeline: hashing record: %w", err)
	}
	record.ContentHash = contentHash

	encoded, err := chain.Encode(record)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encoding record: %w", err)
	}

	date := anchor.DateOf(now)
	payload, err := encodeUploadJob(uploadJob{
		Owner:  input.Owner,
		Agent:  input.Agent,
		Date:   date,
		Record: encoded,
	})
	if err != nil {
		return nil, err
	}

	dedupKey := fmt.Sprintf("%s|%s|%s|%s", input.Owner, input.Agent, date, contentHash)
	job, err := o.queue.Enqueue(jobqueue.KindUpload, payload, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("pipeline: enqueueing upload: %w", err)
	}

	o.logger.Info("record saved",
		"stream", streamID,
		"content_hash", contentHash,
		"job_id", job.ID)
	return record, nil
}

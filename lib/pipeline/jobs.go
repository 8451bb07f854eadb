// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/engram-foundation/engram/lib/anchor"
	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/contentstore"
	"github.com/engram-foundation/engram/lib/fault"
	"github.com/engram-foundation/engram/lib/jobqueue"
	"github.com/engram-foundation/engram/lib/memcrypt"
	"github.com/engram-foundation/engram/lib/streamstate"
)

// uploadJob is the durable payload of a KindUpload job. Record holds
// the canonical CBOR plaintext; the queue file lives inside the
// daemon's private data directory alongside the capture buffers, so
// this is not a new exposure surface.
type uploadJob struct {
	Owner  string `json:"owner"`
	Agent  string `json:"agent"`
	Date   string `json:"date"`
	Record []byte `json:"record"`
}

// anchorJob is the durable payload of a KindAnchor job.
type anchorJob struct {
	StreamID     string          `json:"streamId"`
	Date         string          `json:"date"`
	Pointer      chain.Pointer   `json:"pointer"`
	ContentHash  memcrypt.Digest `json:"contentHash"`
	PreviousHash memcrypt.Digest `json:"previousHash,omitempty"`
}

func encodeUploadJob(job uploadJob) (json.RawMessage, error) {
	encoded, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encoding upload job: %w", err)
	}
	return encoded, nil
}

// ProcessUploadJob executes one upload job: decode and re-verify the
// record, compress, encrypt, upload, advance stream state, and enqueue
// an anchor job if the policy calls for one. Safe to re-execute: the
// store is content-addressed and the state update is idempotent.
func (o *Orchestrator) ProcessUploadJob(ctx context.Context, job *jobqueue.Job) error {
	const op = "pipeline.upload"

	var payload uploadJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fault.New(fault.Format, op, err)
	}
	record, err := chain.Decode(payload.Record)
	if err != nil {
		return fault.New(fault.Format, op, err)
	}

	// The hash was computed at save time. A mismatch here means the
	// queue file was corrupted or tampered with between then and now.
	ok, err := chain.VerifyRecordHash(record)
	if err != nil {
		return fault.New(fault.Format, op, err)
	}
	if !ok {
		return fault.Newf(fault.Integrity, op,
			"queued record for %s no longer matches its content hash", record.StreamID)
	}

	streamID := record.StreamID
	keyContext := streamKeyContext(streamID)
	key, err := o.keys.Get(o.signing, keyContext)
	if err != nil {
		return fault.New(fault.Permanent, op, err)
	}

	compressed := o.compressor.EncodeAll(payload.Record, nil)
	envelope, err := memcrypt.Encrypt(compressed, key, payload.Owner, keyContext)
	if err != nil {
		return fault.New(fault.Permanent, op, err)
	}
	blob, err := envelope.Encode()
	if err != nil {
		return fault.New(fault.Permanent, op, err)
	}

	pointer, err := o.content.Upload(ctx, blob, contentstore.Meta{
		Owner:       payload.Owner,
		Agent:       payload.Agent,
		Date:        payload.Date,
		ContentHash: record.ContentHash,
	})
	if err != nil {
		return err
	}

	if err := o.state.Set(ctx, streamID, streamstate.Update{
		LastPointer:     &pointer,
		LastContentHash: &record.ContentHash,
	}); err != nil {
		// The blob is stored but the state write failed. Retrying the
		// whole job is safe: the re-upload is a content-addressed
		// no-op and the state write gets another chance.
		return fault.New(fault.Transient, op, err)
	}

	o.logger.Info("record uploaded",
		"stream", streamID,
		"pointer", pointer,
		"content_hash", record.ContentHash)

	return o.maybeEnqueueAnchor(ctx, streamID, payload.Date, pointer, record)
}

// maybeEnqueueAnchor enqueues an anchor job when the stream's policy
// calls for one. Deduplicated on (stream, date, hash), so re-executed
// upload jobs cannot double-anchor.
func (o *Orchestrator) maybeEnqueueAnchor(ctx context.Context, streamID, date string, pointer chain.Pointer, record *chain.Record) error {
	const op = "pipeline.upload"

	if o.anchorPolicy == anchor.PolicyDisabled {
		return nil
	}
	state, err := o.state.Get(ctx, streamID)
	if err != nil {
		return fault.New(fault.Transient, op, err)
	}
	if !anchor.ShouldAnchor(state, o.anchorPolicy, o.clock.Now()) {
		return nil
	}

	payload, err := json.Marshal(anchorJob{
		StreamID:     streamID,
		Date:         date,
		Pointer:      pointer,
		ContentHash:  record.ContentHash,
		PreviousHash: record.ChainPrevHash,
	})
	if err != nil {
		return fault.New(fault.Permanent, op, err)
	}

	dedupKey := fmt.Sprintf("anchor|%s|%s|%s", streamID, date, record.ContentHash)
	job, err := o.queue.Enqueue(jobqueue.KindAnchor, payload, dedupKey)
	if err != nil {
		return fault.New(fault.Transient, op, err)
	}
	o.logger.Info("anchor enqueued", "stream", streamID, "date", date, "job_id", job.ID)
	return nil
}

// ProcessAnchorJob executes one anchor job: build the ledger payload,
// submit it, and persist the anchor date. If the submission succeeds
// but the state write fails, a retry re-submits; the ledger gains a
// duplicate entry with identical content, which verification tolerates.
func (o *Orchestrator) ProcessAnchorJob(ctx context.Context, job *jobqueue.Job) error {
	const op = "pipeline.anchor"

	var payload anchorJob
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fault.New(fault.Format, op, err)
	}
	if o.anchorClient == nil {
		return fault.Newf(fault.Permanent, op, "anchor job %s with no anchor client configured", job.ID)
	}

	ledgerPayload := anchor.BuildPayload(anchor.Payload{
		Date:         payload.Date,
		Pointer:      payload.Pointer,
		ContentHash:  payload.ContentHash,
		PreviousHash: payload.PreviousHash,
	})
	receipt, err := o.anchorClient.Submit(ctx, ledgerPayload, o.identity)
	if err != nil {
		return err
	}

	if err := o.state.Set(ctx, payload.StreamID, streamstate.Update{
		LastAnchorDate: &payload.Date,
	}); err != nil {
		return fault.New(fault.Transient, op, err)
	}

	o.logger.Info("chain anchored",
		"stream", payload.StreamID,
		"date", payload.Date,
		"receipt", receipt.ID,
		"sequence", receipt.Sequence)
	return nil
}

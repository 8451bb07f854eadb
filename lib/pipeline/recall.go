// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/contentstore"
	"github.com/engram-foundation/engram/lib/fault"
	"github.com/engram-foundation/engram/lib/memcrypt"
)

// Recall fetches, decrypts, and decodes a stream's records, at most
// limit of them (0 means all). Fetches run concurrently under a
// bounded fan-out. Recall is best-effort: a record that cannot be
// fetched, authenticated, or verified is logged and skipped rather
// than failing the whole call. Results are ordered by capture time.
func (r *Reader) Recall(ctx context.Context, streamID string, limit int) ([]*chain.Record, error) {
	pointers, err := r.content.List(ctx, contentstore.StreamPrefix(streamID), limit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: listing records for %s: %w", streamID, err)
	}

	fetched := make([]*chain.Record, len(pointers))
	semaphore := make(chan struct{}, r.recallFanOut)
	var group sync.WaitGroup
	for index, pointer := range pointers {
		group.Add(1)
		go func(index int, pointer chain.Pointer) {
			defer group.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			record, err := r.fetchRecord(ctx, streamID, pointer)
			if err != nil {
				r.logger.Warn("skipping unreadable record",
					"stream", streamID,
					"pointer", pointer,
					"class", fault.ClassOf(err).String(),
					"error", err)
				return
			}
			fetched[index] = record
		}(index, pointer)
	}
	group.Wait()

	records := fetched[:0]
	for _, record := range fetched {
		if record != nil {
			records = append(records, record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// fetchRecord retrieves and opens one record blob.
func (r *Reader) fetchRecord(ctx context.Context, streamID string, pointer chain.Pointer) (*chain.Record, error) {
	const op = "pipeline.recall"

	blob, err := r.content.Fetch(ctx, pointer)
	if err != nil {
		return nil, err
	}
	envelope, err := memcrypt.ParseEnvelope(blob)
	if err != nil {
		return nil, err
	}

	keyContext := streamKeyContext(streamID)
	if envelope.KeyContext != keyContext {
		return nil, fault.Newf(fault.Format, op,
			"blob at %s has key context %q, want %q", pointer, envelope.KeyContext, keyContext)
	}
	key, err := r.keys.Get(r.signing, keyContext)
	if err != nil {
		return nil, fault.New(fault.Permanent, op, err)
	}

	compressed, err := memcrypt.Decrypt(envelope, key)
	if err != nil {
		return nil, err
	}
	plaintext, err := r.decompressor.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fault.New(fault.Format, op, err)
	}
	record, err := chain.Decode(plaintext)
	if err != nil {
		return nil, fault.New(fault.Format, op, err)
	}

	ok, err := chain.VerifyRecordHash(record)
	if err != nil {
		return nil, fault.New(fault.Format, op, err)
	}
	if !ok {
		return nil, fault.Newf(fault.Integrity, op,
			"record at %s does not match its content hash", pointer)
	}

	record.StorePointer = pointer
	return record, nil
}

// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package streamstate

import (
	"context"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/memcrypt"
)

// State is the durable chain position of one stream. The zero value
// (all fields empty) is the state of a stream that has never uploaded
// a record.
type State struct {
	// StreamID identifies the (owner, agent) stream.
	StreamID string `json:"streamId"`

	// LastPointer is the content address of the newest uploaded
	// record. Empty until the first upload confirms.
	LastPointer chain.Pointer `json:"lastPointer,omitempty"`

	// LastContentHash is the content hash of the newest uploaded
	// record. Zero until the first upload confirms.
	LastContentHash memcrypt.Digest `json:"lastContentHash,omitempty"`

	// LastAnchorDate is the UTC calendar date ("2006-01-02") of the
	// most recent successful anchor. Empty if the stream has never
	// anchored.
	LastAnchorDate string `json:"lastAnchorDate,omitempty"`
}

// Update is a partial state mutation. Nil fields are left unchanged
// by Set, so the upload path and the anchor path can each persist
// only the fields they own.
type Update struct {
	LastPointer     *chain.Pointer
	LastContentHash *memcrypt.Digest
	LastAnchorDate  *string
}

// Store is the durable per-stream state store.
type Store interface {
	// Get returns the state for streamID. Unseen streams return the
	// zero State (with StreamID filled in), never an error.
	Get(ctx context.Context, streamID string) (State, error)

	// Set merges update into the stream's state and persists the
	// result before returning. Creating the stream entry on first
	// use.
	Set(ctx context.Context, streamID string, update Update) error

	// List returns all known stream IDs in lexicographic order.
	List(ctx context.Context) ([]string, error)
}

// merge applies update to state in place.
func merge(state *State, update Update) {
	if update.LastPointer != nil {
		state.LastPointer = *update.LastPointer
	}
	if update.LastContentHash != nil {
		state.LastContentHash = *update.LastContentHash
	}
	if update.LastAnchorDate != nil {
		state.LastAnchorDate = *update.LastAnchorDate
	}
}

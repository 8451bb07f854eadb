// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentstore is the client for the encrypted blob store.
//
// The store is content-addressed: a pointer is derived from the
// stream identity and the record's content hash, so re-uploading the
// same record is a no-op and nothing is ever overwritten. Blobs are
// opaque ciphertext to the store; only the indexing metadata (owner,
// agent, date, content hash) travels in the clear.
//
// The HTTP client takes an ordered endpoint list and falls through to
// the next endpoint on transient failure, which keeps the pipeline
// draining when the primary store is degraded but a mirror is up.
package contentstore

// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package chain defines the record data model and the hash-chain
// rules that make a stream tamper-evident.
//
// Every record carries the content pointer and content hash of its
// predecessor. The content hash is BLAKE3 over the record's canonical
// CBOR encoding with the ContentHash and AnchorRef fields cleared, so
// the hash commits to the chain links, the payload, and the metadata,
// while the pointer (assigned later by the content store) and the
// anchor receipt stay outside the hashed region. A record is immutable
// once hashed.
//
// [Validate] checks a single link; [VerifyChainIntegrity] walks an
// ordered slice and reports every break in one pass rather than
// stopping at the first, so an operator sees the full damage from a
// single run.
package chain

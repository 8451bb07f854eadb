// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package anchor schedules and submits chain-integrity proofs to an
// external append-only ledger.
//
// An anchor binds a stream's chain head (pointer, content hash, and
// predecessor hash) to a ledger sequence number at a point in time.
// Anyone holding the stream's records can later recompute the hashes
// and check them against the ledger entry, so tampering with history
// after the anchor is detectable without trusting the content store.
//
// The anchoring cadence is a per-stream policy: never, after every
// record, or at most once per UTC calendar day.
package anchor

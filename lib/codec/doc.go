// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR serialization for engram.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// map keys sorted in bytewise lexicographic order, smallest-possible
// integer encoding, no indefinite-length items. Structurally equal
// values always encode to identical bytes regardless of Go map
// iteration order or struct field declaration order. This matters
// because a record's content hash is computed over its canonical
// encoding — two encodings of the same record must never differ.
//
// All engram persistence (records, queue jobs, stream state snapshots)
// goes through this package rather than importing fxamacker/cbor
// directly, so the encoding configuration lives in exactly one place.
package codec

// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package chain

import (
	"fmt"
	"time"

	"github.com/engram-foundation/engram/lib/codec"
	"github.com/engram-foundation/engram/lib/memcrypt"
)

// Pointer is a content address assigned by the external content store
// after upload. Pointers are never minted locally; an empty Pointer
// means "not uploaded yet" or, in chain-link position, "no
// predecessor".
type Pointer string

// Record is one entry in a stream's hash chain.
type Record struct {
	// StreamID identifies the (owner, agent) stream this record
	// belongs to.
	StreamID string `cbor:"stream_id" json:"streamId"`

	// CreatedAt is the capture time. Must be monotonically
	// non-decreasing along a chain.
	CreatedAt time.Time `cbor:"created_at" json:"createdAt"`

	// SchemaTag names the payload schema so future readers can
	// dispatch on an explicit persisted tag instead of sniffing
	// payload bytes.
	SchemaTag string `cbor:"schema_tag" json:"schemaTag"`

	// SessionRef ties the record to the capture session that
	// produced it.
	SessionRef string `cbor:"session_ref" json:"sessionRef"`

	// ChainPrev is the content pointer of the predecessor record.
	// Empty for the first record of a stream.
	ChainPrev Pointer `cbor:"chain_prev" json:"chainPrev"`

	// ChainPrevHash is the content hash of the predecessor record.
	// Zero for the first record of a stream.
	ChainPrevHash memcrypt.Digest `cbor:"chain_prev_hash" json:"chainPrevHash"`

	// ContentHash is the BLAKE3 digest of this record's canonical
	// encoding (with ContentHash and AnchorRef cleared). Set once by
	// ComputeContentHash; the record is immutable afterwards.
	ContentHash memcrypt.Digest `cbor:"content_hash" json:"contentHash"`

	// Payload is the captured content, already in canonical CBOR.
	Payload codec.RawMessage `cbor:"payload" json:"payload"`

	// AnchorRef is the ledger receipt ID once the record has been
	// anchored. Outside the hashed region.
	AnchorRef string `cbor:"anchor_ref,omitempty" json:"anchorRef,omitempty"`

	// StorePointer is the content address the store assigned to this
	// record's envelope. It exists only in memory — the store assigns
	// it after the record is encoded and uploaded, so it can never be
	// part of the serialized or hashed form. Populated by the
	// orchestrator after upload or fetch; required by the chain
	// validator to check successor links.
	StorePointer Pointer `cbor:"-" json:"-"`
}

// ComputeContentHash returns the content hash of the record: BLAKE3
// over the canonical CBOR encoding of the record with ContentHash and
// AnchorRef cleared. Structurally equal records hash identically
// regardless of how they were assembled.
func ComputeContentHash(record *Record) (memcrypt.Digest, error) {
	hashable := *record
	hashable.ContentHash = memcrypt.Digest{}
	hashable.AnchorRef = ""

	encoded, err := codec.Marshal(&hashable)
	if err != nil {
		return memcrypt.Digest{}, fmt.Errorf("chain: encoding record for hashing: %w", err)
	}
	return memcrypt.Hash(encoded), nil
}

// VerifyRecordHash recomputes the record's content hash and reports
// whether it matches the stored ContentHash.
func VerifyRecordHash(record *Record) (bool, error) {
	computed, err := ComputeContentHash(record)
	if err != nil {
		return false, err
	}
	return computed == record.ContentHash, nil
}

// Encode serializes a record to canonical CBOR. This is the plaintext
// handed to the crypto engine before upload.
func Encode(record *Record) ([]byte, error) {
	encoded, err := codec.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("chain: encoding record: %w", err)
	}
	return encoded, nil
}

// Decode deserializes a record from its canonical CBOR encoding.
func Decode(data []byte) (*Record, error) {
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("chain: decoding record: %w", err)
	}
	return &record, nil
}

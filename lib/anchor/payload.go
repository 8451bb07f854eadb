// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package anchor

import (
	"fmt"
	"strings"

	"github.com/engram-foundation/engram/lib/chain"
	"github.com/engram-foundation/engram/lib/memcrypt"
)

// Payload format constants. The tag and version are part of the ledger
// wire format; changing either invalidates every previously submitted
// anchor, so the version only moves when the field set changes.
const (
	payloadTag     = "engram"
	payloadVersion = "1"

	// nullPrevious marks the head anchor of a stream, which has no
	// predecessor hash to bind to.
	nullPrevious = "null"
)

// Payload is the decoded form of an anchor submission.
type Payload struct {
	// Date is the UTC calendar date the anchor covers.
	Date string

	// Pointer locates the anchored record in the content store.
	Pointer chain.Pointer

	// ContentHash is the anchored record's content hash.
	ContentHash memcrypt.Digest

	// PreviousHash is the content hash of the prior record in the
	// chain, or the zero digest for a stream's first anchor.
	PreviousHash memcrypt.Digest
}

// BuildPayload renders the pipe-delimited string submitted to the
// ledger. None of the fields may themselves contain the delimiter;
// dates, pointers, and hex digests cannot by construction.
func BuildPayload(payload Payload) string {
	previous := nullPrevious
	if !payload.PreviousHash.IsZero() {
		previous = payload.PreviousHash.String()
	}
	return strings.Join([]string{
		payloadTag,
		payloadVersion,
		payload.Date,
		string(payload.Pointer),
		payload.ContentHash.String(),
		previous,
	}, "|")
}

// ParsePayload decodes a ledger payload string. Used by the chain
// verification tool to cross-check receipts against stream state.
func ParsePayload(encoded string) (Payload, error) {
	fields := strings.Split(encoded, "|")
	if len(fields) != 6 {
		return Payload{}, fmt.Errorf("anchor: payload has %d fields, want 6", len(fields))
	}
	if fields[0] != payloadTag {
		return Payload{}, fmt.Errorf("anchor: payload tag %q, want %q", fields[0], payloadTag)
	}
	if fields[1] != payloadVersion {
		return Payload{}, fmt.Errorf("anchor: unsupported payload version %q", fields[1])
	}

	contentHash, err := memcrypt.ParseDigest(fields[4])
	if err != nil {
		return Payload{}, fmt.Errorf("anchor: payload content hash: %w", err)
	}
	payload := Payload{
		Date:        fields[2],
		Pointer:     chain.Pointer(fields[3]),
		ContentHash: contentHash,
	}
	if fields[5] != nullPrevious {
		previous, err := memcrypt.ParseDigest(fields[5])
		if err != nil {
			return Payload{}, fmt.Errorf("anchor: payload previous hash: %w", err)
		}
		payload.PreviousHash = previous
	}
	return payload, nil
}

// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package memcrypt

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// DigestSize is the size in bytes of a content digest.
const DigestSize = 32

// Digest is a BLAKE3-256 content digest. It identifies record content
// throughout the pipeline: the chain's content hash, the content
// store's verification hash, and the anchor payload's hash field.
type Digest [DigestSize]byte

// Hash computes the BLAKE3-256 digest of data.
func Hash(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// String returns the hex-encoded digest. This is the canonical format
// used in anchor payloads, dedup keys, and log output.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is the zero value. A zero digest
// means "no hash" (e.g. a chain head with no predecessor).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText implements encoding.TextMarshaler so digests serialize
// as hex strings in CBOR and JSON.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses a hex-encoded digest string. Returns an error if
// the string is not a valid 64-character hex encoding of 32 bytes.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing content digest: %w", err)
	}
	if len(decoded) != DigestSize {
		return digest, fmt.Errorf("content digest is %d bytes, want %d", len(decoded), DigestSize)
	}
	copy(digest[:], decoded)
	return digest, nil
}

// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package memcrypt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/engram-foundation/engram/lib/secret"
)

// KeySize is the size in bytes of every derived symmetric key.
const KeySize = 32

// hkdfInfoStreamKey is the "info" parameter to HKDF-SHA256 when
// deriving stream encryption keys, providing domain separation from
// any future derivation path. Changing it invalidates all existing
// ciphertext.
var hkdfInfoStreamKey = []byte("engram.streamkey.v1")

// DeriveKey derives the symmetric encryption key for a context string
// from the signing secret. The derivation is deterministic: the
// signing secret yields an ed25519 key (seeded from the SHA-256 of
// the secret bytes), the context string is signed, and HKDF-SHA256
// expands the signature into a 32-byte key. Same inputs always yield
// the same key, so the key is recomputable anywhere the secret is
// held and is never written to disk.
//
// The signingSecret is borrowed and NOT closed. The returned buffer
// must be closed by the caller (or owned by a KeyCache).
func DeriveKey(signingSecret *secret.Buffer, context string) (*secret.Buffer, error) {
	if context == "" {
		return nil, fmt.Errorf("memcrypt: key context must not be empty")
	}

	seed := sha256.Sum256(signingSecret.Bytes())
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	signature := ed25519.Sign(privateKey, []byte(context))
	secret.Zero(seed[:])
	secret.Zero(privateKey)

	info := make([]byte, len(hkdfInfoStreamKey)+len(context))
	copy(info, hkdfInfoStreamKey)
	copy(info[len(hkdfInfoStreamKey):], context)

	reader := hkdf.New(sha256.New, signature, nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		secret.Zero(signature)
		return nil, fmt.Errorf("memcrypt: HKDF key derivation failed: %w", err)
	}
	secret.Zero(signature)

	// NewFromBytes copies into mmap and zeros the heap slice.
	return secret.NewFromBytes(derived)
}

// Fingerprint returns a short stable identifier for a signing secret,
// used as a cache key component and in logs. It is the first 8 bytes
// of the BLAKE3 digest of the secret, hex-encoded — enough to
// distinguish secrets without revealing key material.
func Fingerprint(signingSecret *secret.Buffer) string {
	digest := Hash(signingSecret.Bytes())
	return digest.String()[:16]
}

// SigningIdentity returns the hex-encoded ed25519 public key for the
// signing secret. This is the identity presented to the anchor
// service so that anchors are attributable to the secret holder
// without disclosing the secret.
func SigningIdentity(signingSecret *secret.Buffer) string {
	seed := sha256.Sum256(signingSecret.Bytes())
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	publicKey := privateKey.Public().(ed25519.PublicKey)
	secret.Zero(seed[:])
	secret.Zero(privateKey)
	return fmt.Sprintf("%x", []byte(publicKey))
}

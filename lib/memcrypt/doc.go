// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package memcrypt implements the cryptographic core of the engram
// pipeline: key derivation, authenticated encryption, and content
// hashing.
//
// Key derivation is deterministic. The stream signing secret yields an
// ed25519 key; the context string is signed; the signature is fed
// through HKDF-SHA256 with a domain-separation tag to produce a
// 32-byte symmetric key. Because ed25519 signatures are deterministic,
// any holder of the signing secret can recompute any stream key from
// the context string alone — derived keys are never persisted.
//
// Encryption is XChaCha20-Poly1305 with a fresh random 24-byte nonce
// per call. The envelope's version, algorithm, and key context are
// bound into the AEAD as additional authenticated data, so tampering
// with any header field fails authentication, not just tampering with
// the ciphertext.
//
// Content hashing is BLAKE3-256; [Digest] is the module-wide content
// identifier.
//
// Derived keys are cached in a [KeyCache]: an explicit, bounded,
// TTL-evicting object with an injected clock, passed to each call
// site. There is no package-level mutable state.
package memcrypt

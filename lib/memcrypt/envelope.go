// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package memcrypt

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/engram-foundation/engram/lib/fault"
	"github.com/engram-foundation/engram/lib/secret"
)

// EnvelopeVersion is the wire format version. Decryptors reject
// anything else rather than guessing.
const EnvelopeVersion = 1

// AlgorithmTag identifies the AEAD in envelope headers.
const AlgorithmTag = "xchacha20poly1305"

// Envelope is the encrypted wire representation of a record payload —
// exactly what crosses the boundary to the content store. Data is the
// base64 encoding of nonce‖ciphertext‖tag.
type Envelope struct {
	Version    int    `json:"version"`
	Algorithm  string `json:"algorithm"`
	Owner      string `json:"owner"`
	KeyContext string `json:"keyContext"`
	Data       string `json:"data"`
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	encoded, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return encoded, nil
}

// ParseEnvelope deserializes an envelope from its JSON wire form.
// Returns a Format fault if the bytes are not a valid envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fault.New(fault.Format, "memcrypt.parse", err)
	}
	return &envelope, nil
}

// Encrypt encrypts plaintext under key using XChaCha20-Poly1305 with
// a fresh random 24-byte nonce. The envelope header fields (version,
// algorithm, key context) are bound into the AEAD as additional
// authenticated data. Repeated calls with identical inputs produce
// different ciphertext because the nonce is never reused.
//
// The key is borrowed and NOT closed. It must be exactly KeySize
// bytes (the output of DeriveKey).
func Encrypt(plaintext []byte, key *secret.Buffer, owner, keyContext string) (*Envelope, error) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("memcrypt: creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("memcrypt: generating random nonce: %w", err)
	}

	aad := buildAAD(EnvelopeVersion, AlgorithmTag, keyContext)

	// nonce ‖ ciphertext ‖ tag
	sealed := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	copy(sealed, nonce[:])
	sealed = aead.Seal(sealed, nonce[:], plaintext, aad)

	return &Envelope{
		Version:    EnvelopeVersion,
		Algorithm:  AlgorithmTag,
		Owner:      owner,
		KeyContext: keyContext,
		Data:       base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt opens an envelope produced by Encrypt. Returns a Format
// fault for an unrecognized version or algorithm or truncated data,
// and an Authentication fault when the AEAD tag does not verify
// (wrong key or tampered ciphertext/header).
//
// The key is borrowed and NOT closed.
func Decrypt(envelope *Envelope, key *secret.Buffer) ([]byte, error) {
	if envelope.Version != EnvelopeVersion {
		return nil, fault.Newf(fault.Format, "memcrypt.decrypt",
			"envelope version %d is not supported (expected %d)", envelope.Version, EnvelopeVersion)
	}
	if envelope.Algorithm != AlgorithmTag {
		return nil, fault.Newf(fault.Format, "memcrypt.decrypt",
			"envelope algorithm %q is not supported (expected %q)", envelope.Algorithm, AlgorithmTag)
	}

	sealed, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, fault.New(fault.Format, "memcrypt.decrypt", fmt.Errorf("decoding base64 data: %w", err))
	}
	if len(sealed) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fault.Newf(fault.Format, "memcrypt.decrypt",
			"envelope data is %d bytes, minimum is %d (nonce + tag)",
			len(sealed), chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead)
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("memcrypt: creating XChaCha20-Poly1305 cipher: %w", err)
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ciphertext := sealed[chacha20poly1305.NonceSizeX:]
	aad := buildAAD(envelope.Version, envelope.Algorithm, envelope.KeyContext)

	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fault.New(fault.Authentication, "memcrypt.decrypt",
			fmt.Errorf("AEAD authentication failed (wrong key or tampered data): %w", err))
	}
	return plaintext, nil
}

// buildAAD constructs the additional authenticated data binding the
// envelope header to the ciphertext: version byte, algorithm tag, and
// key context. An attacker who rewrites any header field causes
// authentication failure instead of silent misuse.
func buildAAD(version int, algorithm, keyContext string) []byte {
	aad := make([]byte, 0, 1+len(algorithm)+1+len(keyContext))
	aad = append(aad, byte(version))
	aad = append(aad, algorithm...)
	aad = append(aad, 0)
	aad = append(aad, keyContext...)
	return aad
}

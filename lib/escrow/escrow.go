// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package escrow

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/engram-foundation/engram/lib/secret"
)

// Keypair holds an age x25519 keypair for escrow recovery. The private
// key lives in a secret.Buffer; the public key is a plain string and
// safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the identity in AGE-SECRET-KEY-1... form. Never
	// log it or pass it on a command line.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding recipient in age1... form.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair creates a fresh escrow keypair. Operators run this
// once and keep the private half offline; only the public half is
// configured on daemons.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("escrow: generating age keypair: %w", err)
	}

	// Move the identity into mmap-backed memory immediately. The
	// transient heap string from the age API is unavoidable.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("escrow: protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts the signing secret to one or more operator recipients
// (age1... public keys) and returns base64 ciphertext suitable for a
// config field or a recovery file. Any one recipient can recover the
// secret, so every escrow holder is a full trust grant.
//
// The signingSecret is borrowed and NOT closed.
func Seal(signingSecret *secret.Buffer, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("escrow: at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("escrow: parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("escrow: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(signingSecret.Bytes()); err != nil {
		return "", fmt.Errorf("escrow: writing secret to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("escrow: finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Open decrypts a sealed signing secret with an operator's private
// key. The returned buffer holds the recovered secret and must be
// closed by the caller.
//
// The privateKey is borrowed and NOT closed.
func Open(sealed string, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(string(privateKey.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("escrow: parsing private key: %w", err)
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("escrow: decoding base64 ciphertext: %w", err)
	}

	reader, err := age.Decrypt(bytes.NewReader(rawCiphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("escrow: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("escrow: reading decrypted secret: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("escrow: sealed secret decrypted to empty plaintext")
	}

	// NewFromBytes zeros the heap copy.
	recovered, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("escrow: protecting recovered secret: %w", err)
	}
	return recovered, nil
}

// ValidateRecipient reports whether publicKey is a well-formed age
// x25519 recipient. Config validation uses this to fail at startup
// instead of at the first escrow write.
func ValidateRecipient(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("escrow: invalid age public key: %w", err)
	}
	return nil
}

// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

package memcrypt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/engram-foundation/engram/lib/fault"
	"github.com/engram-foundation/engram/lib/secret"
)

func testSecret(t *testing.T, material string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(material))
	if err != nil {
		t.Fatalf("creating test secret: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func testKey(t *testing.T, material, context string) *secret.Buffer {
	t.Helper()
	key, err := DeriveKey(testSecret(t, material), context)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t, "signing-secret-a", "owner/agent")
	plaintext := []byte("the memory payload")

	envelope, err := Encrypt(plaintext, key, "owner", "owner/agent")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	decrypted, err := Decrypt(envelope, key)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptNonceFreshness(t *testing.T) {
	key := testKey(t, "signing-secret-a", "ctx")
	plaintext := []byte("same plaintext")

	first, err := Encrypt(plaintext, key, "owner", "ctx")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Encrypt(plaintext, key, "owner", "ctx")
	if err != nil {
		t.Fatal(err)
	}
	if first.Data == second.Data {
		t.Error("two encryptions of the same plaintext produced identical bytes (nonce reuse)")
	}
}

func TestDecryptWrongKeyIsAuthenticationFault(t *testing.T) {
	keyA := testKey(t, "signing-secret-a", "ctx")
	keyB := testKey(t, "signing-secret-b", "ctx")

	envelope, err := Encrypt([]byte("payload"), keyA, "owner", "ctx")
	if err != nil {
		t.Fatal(err)
	}

	_, err = Decrypt(envelope, keyB)
	if err == nil {
		t.Fatal("Decrypt with wrong key succeeded")
	}
	if !fault.Is(err, fault.Authentication) {
		t.Errorf("wrong-key error class = %v, want Authentication", fault.ClassOf(err))
	}
}

func TestDecryptTamperedHeaderFailsAuthentication(t *testing.T) {
	key := testKey(t, "signing-secret-a", "ctx")
	envelope, err := Encrypt([]byte("payload"), key, "owner", "ctx")
	if err != nil {
		t.Fatal(err)
	}

	// The key context is bound via AAD; rewriting it must fail.
	envelope.KeyContext = "other-context"
	if _, err := Decrypt(envelope, key); !fault.Is(err, fault.Authentication) {
		t.Errorf("tampered keyContext error class = %v, want Authentication", fault.ClassOf(err))
	}
}

func TestDecryptUnsupportedVersionIsFormatFault(t *testing.T) {
	key := testKey(t, "signing-secret-a", "ctx")
	envelope, err := Encrypt([]byte("payload"), key, "owner", "ctx")
	if err != nil {
		t.Fatal(err)
	}

	envelope.Version = 2
	if _, err := Decrypt(envelope, key); !fault.Is(err, fault.Format) {
		t.Errorf("unsupported version error class = %v, want Format", fault.ClassOf(err))
	}

	envelope.Version = EnvelopeVersion
	envelope.Algorithm = "rot13"
	if _, err := Decrypt(envelope, key); !fault.Is(err, fault.Format) {
		t.Errorf("unsupported algorithm error class = %v, want Format", fault.ClassOf(err))
	}
}

func TestDecryptTruncatedDataIsFormatFault(t *testing.T) {
	key := testKey(t, "signing-secret-a", "ctx")
	envelope := &Envelope{
		Version:    EnvelopeVersion,
		Algorithm:  AlgorithmTag,
		Owner:      "owner",
		KeyContext: "ctx",
		Data:       "c2hvcnQ=", // "short"
	}
	if _, err := Decrypt(envelope, key); !fault.Is(err, fault.Format) {
		t.Errorf("truncated data error class = %v, want Format", fault.ClassOf(err))
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	key := testKey(t, "signing-secret-a", "alice/agent-1")
	envelope, err := Encrypt([]byte("payload"), key, "alice", "alice/agent-1")
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := envelope.Encode()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseEnvelope(encoded)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if parsed.Version != 1 || parsed.Algorithm != AlgorithmTag {
		t.Errorf("wire headers = version %d algorithm %q", parsed.Version, parsed.Algorithm)
	}
	if parsed.Owner != "alice" || parsed.KeyContext != "alice/agent-1" {
		t.Errorf("wire identity = owner %q keyContext %q", parsed.Owner, parsed.KeyContext)
	}

	decrypted, err := Decrypt(parsed, key)
	if err != nil {
		t.Fatalf("Decrypt after wire round trip: %v", err)
	}
	if string(decrypted) != "payload" {
		t.Errorf("payload = %q", decrypted)
	}
}

func TestParseEnvelopeGarbageIsFormatFault(t *testing.T) {
	_, err := ParseEnvelope([]byte("not json"))
	if err == nil {
		t.Fatal("ParseEnvelope on garbage succeeded")
	}
	var faultErr *fault.Error
	if !errors.As(err, &faultErr) || faultErr.Class != fault.Format {
		t.Errorf("garbage parse error = %v, want Format fault", err)
	}
}

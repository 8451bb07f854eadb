// Copyright 2026 The Engram Authors
// SPDX-License-Identifier: Apache-2.0

// Package escrow seals the signing secret to operator recovery keys.
//
// Every stream key derives from the signing secret, so losing it means
// losing every encrypted record. Escrow encrypts the secret with age
// to one or more operator x25519 recipients; any single recipient's
// private key recovers it. The sealed form is base64 text, safe to
// store next to the config or print for offline filing.
package escrow

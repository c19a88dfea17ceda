// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/TrustEdge-Labs/trustedge-sub002/lib/secret"
)

// sealMaster encrypts master to an age scrypt recipient derived from
// passphrase. workFactor zero keeps the age default.
func sealMaster(master, passphrase *secret.Buffer, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}

	var sealed bytes.Buffer
	writer, err := age.Encrypt(&sealed, recipient)
	if err != nil {
		return nil, fmt.Errorf("starting age encryption: %w", err)
	}
	if _, err := writer.Write(master.Bytes()); err != nil {
		return nil, fmt.Errorf("sealing master secret: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finishing age encryption: %w", err)
	}
	return sealed.Bytes(), nil
}

// unsealMaster reverses sealMaster. A wrong passphrase is an error.
func unsealMaster(sealed []byte, passphrase *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing master secret (wrong passphrase?): %w", err)
	}

	plaintext, err := io.ReadAll(io.LimitReader(reader, KeySize+1))
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading master secret: %w", err)
	}
	if len(plaintext) != KeySize {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("master secret is %d bytes, want %d", len(plaintext), KeySize)
	}
	return secret.NewFromBytes(plaintext)
}

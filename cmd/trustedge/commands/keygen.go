// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"

	"github.com/TrustEdge-Labs/trustedge-sub002/cmd/trustedge/cli"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/keys"
	"github.com/TrustEdge-Labs/trustedge-sub002/lib/manifest"
)

type keygenParams struct {
	keyParams
	cli.JSONOutput
	ScryptWorkFactor int `json:"scrypt_work_factor" flag:"scrypt-work-factor" desc:"log2 scrypt cost for sealing the master secret (0 uses the age default)"`
}

type keygenResult struct {
	Directory    string            `json:"directory"`
	PublicKey    string            `json:"public_key"`
	Capabilities keys.Capabilities `json:"capabilities"`
}

func keygenCommand() *cli.Command {
	var params keygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Create a device key pair and sealed master secret",
		Description: `Create a software key directory holding the device signing key
(device.key), its public half (device.pub), and a random master secret
sealed with the passphrase (master.age). Container keys are derived
from the master secret, so wrap and unwrap need the passphrase; verify
without --decrypt needs only device.pub.

Without a passphrase the directory can sign but not seal. Existing key
files are never overwritten.`,
		Usage: "trustedge keygen [flags]",
		Examples: []cli.Example{
			{
				Description: "Create keys in the configured directory",
				Command:     "trustedge keygen --passphrase-file ~/.trustedge/passphrase",
			},
		},
		Params: func() any { return &params },
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.UsageErrorf("unexpected argument %q", args[0])
			}
			session, err := params.load("keygen")
			if err != nil {
				return err
			}
			if session.config.Keys.Backend != "software" {
				return cli.UsageErrorf("keygen needs the software backend, not %q", session.config.Keys.Backend)
			}

			passphrase, err := session.passphrase()
			if err != nil {
				return exitError(err)
			}
			if passphrase == nil {
				session.logger.Warn("no passphrase configured; the key directory will sign but cannot seal containers")
			} else {
				defer passphrase.Close()
			}

			backend, err := keys.GenerateSoftware(keys.Options{
				Directory:        session.config.Keys.Directory,
				Passphrase:       passphrase,
				ScryptWorkFactor: params.ScryptWorkFactor,
				Logger:           session.logger,
			})
			if errors.Is(err, keys.ErrExists) {
				return cli.UsageErrorf("%v", err)
			}
			if err != nil {
				return exitError(err)
			}
			defer backend.Close()

			publicKey, err := backend.VerifyingKey(keys.DeviceKey)
			if err != nil {
				return exitError(err)
			}
			result := keygenResult{
				Directory:    backend.Directory(),
				PublicKey:    manifest.FormatPublicKey(publicKey),
				Capabilities: backend.Capabilities(),
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}
			fmt.Printf("Keys written to %s\n", result.Directory)
			fmt.Printf("Public key: %s\n", result.PublicKey)
			return nil
		},
	}
}

package commands

import (
	"os"
	"path/filepath"

	kage "github.com/secretsmith/secretsmith/internal/age"
	kerrors "github.com/secretsmith/secretsmith/internal/errors"
	"github.com/secretsmith/secretsmith/internal/memwipe"
	"github.com/secretsmith/secretsmith/internal/secretname"
)

// DecryptCmd decrypts a secret and writes its plaintext to stdout or a file.
type DecryptCmd struct {
	Name   string `arg:"" help:"secret name to decrypt"`
	Output string `short:"o" help:"write plaintext to this file instead of stdout" type:"path"`
}

// Run executes the decrypt command.
func (c *DecryptCmd) Run(rt *Runtime) error {
	name, err := secretname.Parse(c.Name)
	if err != nil {
		return err
	}

	accessor, err := rt.Accessor()
	if err != nil {
		return err
	}

	identities, err := rt.Identities()
	if err != nil {
		return err
	}

	path := filepath.Join(accessor.RulesDir(), name.SecretFile())

	plaintext, err := kage.DecryptFile(path, identities)
	if err != nil {
		return kerrors.CryptoError("decrypt", path, err)
	}
	defer memwipe.Wipe(plaintext)

	if c.Output != "" {
		if err := os.WriteFile(c.Output, plaintext, 0o600); err != nil {
			return kerrors.FileAccessError("write", c.Output, err)
		}

		rt.Out.Logger.Info().Str("secret", name.SecretFile()).Str("output", c.Output).Msg("decrypted")

		return nil
	}

	if _, err := os.Stdout.Write(plaintext); err != nil {
		return kerrors.OperationError("write", "stdout", err)
	}

	return nil
}

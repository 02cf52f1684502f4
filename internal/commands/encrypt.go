package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	kage "github.com/secretsmith/secretsmith/internal/age"
	kerrors "github.com/secretsmith/secretsmith/internal/errors"
	"github.com/secretsmith/secretsmith/internal/memwipe"
	"github.com/secretsmith/secretsmith/internal/secretname"
)

// EncryptCmd encrypts plaintext to a secret declared in the rules file.
type EncryptCmd struct {
	Name  string `arg:"" help:"secret name to encrypt"`
	Input string `short:"i" help:"read plaintext from this file instead of stdin" type:"path"`
	Force bool   `help:"overwrite the secret if it already exists"`
}

// Run executes the encrypt command.
func (c *EncryptCmd) Run(rt *Runtime) error {
	name, err := secretname.Parse(c.Name)
	if err != nil {
		return err
	}

	accessor, err := rt.Accessor()
	if err != nil {
		return err
	}

	file := name.SecretFile()
	path := filepath.Join(accessor.RulesDir(), file)

	if !c.Force {
		if _, statErr := os.Stat(path); statErr == nil {
			return kerrors.ValidationError("secret", fmt.Sprintf("%s already exists; use --force to overwrite or 'edit' to modify", file))
		}
	}

	plaintext, err := c.readPlaintext()
	if err != nil {
		return err
	}
	defer memwipe.Wipe(plaintext)

	if len(plaintext) == 0 {
		return kerrors.ValidationError("stdin", "input must not be empty")
	}

	rawRecipients, err := accessor.Recipients(file)
	if err != nil {
		return err
	}

	recipients, err := kage.ParseRecipients(rawRecipients)
	if err != nil {
		return kerrors.CryptoError("parse recipients for", file, err)
	}

	armored, err := accessor.Armored(file)
	if err != nil {
		return err
	}

	if rt.DryRun {
		rt.Out.Logger.Info().Str("secret", file).Msg("would encrypt (dry run)")
		return nil
	}

	if err := kage.EncryptToFile(path, plaintext, recipients, armored); err != nil {
		return kerrors.CryptoError("encrypt", path, err)
	}

	rt.Out.Logger.Info().Str("secret", file).Int("recipients", len(recipients)).Msg("encrypted")

	return nil
}

func (c *EncryptCmd) readPlaintext() ([]byte, error) {
	if c.Input != "" {
		data, err := os.ReadFile(c.Input)
		if err != nil {
			return nil, kerrors.FileAccessError("read", c.Input, err)
		}

		return data, nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read plaintext from stdin: %w", err)
	}

	return data, nil
}

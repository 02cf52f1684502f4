package commands

import (
	"fmt"
	"os"
	"path/filepath"

	kage "github.com/secretsmith/secretsmith/internal/age"
	"github.com/secretsmith/secretsmith/internal/secretname"
)

// CheckCmd verifies that every declared secret (or the given ones) can
// actually be decrypted with the available identities.
type CheckCmd struct {
	Names []string `arg:"" optional:"" help:"secret names to check (default: all declared secrets)"`
}

// Run executes the check command.
func (c *CheckCmd) Run(rt *Runtime) error {
	accessor, err := rt.Accessor()
	if err != nil {
		return err
	}

	targets := c.Names
	if len(targets) == 0 {
		all, err := accessor.AllFiles()
		if err != nil {
			return err
		}

		targets = all
	}

	identities, err := rt.Identities()
	if err != nil {
		return err
	}

	failed := 0

	for _, target := range targets {
		name, err := secretname.Parse(target)
		if err != nil {
			return err
		}

		file := name.SecretFile()
		path := filepath.Join(accessor.RulesDir(), file)

		if _, statErr := os.Stat(path); statErr != nil {
			rt.Out.Printf("%s: missing\n", file)
			continue
		}

		if err := kage.CanDecrypt(path, identities); err != nil {
			rt.Out.Printf("%s: cannot decrypt: %v\n", file, err)
			failed++

			continue
		}

		rt.Out.Printf("%s: ok\n", file)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d secret(s) could not be decrypted", failed, len(targets))
	}

	return nil
}

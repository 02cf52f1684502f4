package commands

import (
	"os"
	"path/filepath"
	"strings"

	kage "github.com/secretsmith/secretsmith/internal/age"
	"github.com/secretsmith/secretsmith/internal/secretname"
)

// ListCmd prints every secret declared in the rules file along with its
// recipient count, armor setting, dependencies, and decryptability status.
type ListCmd struct {
	Detailed bool `help:"also report has_generator and has_pub for each secret"`
}

// Run executes the list command.
func (c *ListCmd) Run(rt *Runtime) error {
	accessor, err := rt.Accessor()
	if err != nil {
		return err
	}

	files, err := accessor.AllFiles()
	if err != nil {
		return err
	}

	identities, identErr := rt.Identities()
	if identErr != nil {
		// A missing identity only matters once a file actually needs
		// decrypting to compute its status; fall back to no identities and
		// let the probe report "cannot decrypt" for anything present.
		identities = nil
	}

	for _, file := range files {
		recipients, err := accessor.Recipients(file)
		if err != nil {
			rt.Out.Printf("%s: error: %v\n", file, err)
			continue
		}

		armored, err := accessor.Armored(file)
		if err != nil {
			rt.Out.Printf("%s: error: %v\n", file, err)
			continue
		}

		deps, err := accessor.Dependencies(file)
		if err != nil {
			rt.Out.Printf("%s: error: %v\n", file, err)
			continue
		}

		path := filepath.Join(accessor.RulesDir(), file)

		status := "missing"

		if _, statErr := os.Stat(path); statErr == nil {
			if err := kage.CanDecrypt(path, identities); err != nil {
				status = "cannot decrypt(" + err.Error() + ")"
			} else {
				status = "ok"
			}
		}

		armorNote := ""
		if armored {
			armorNote = ", armored"
		}

		depNote := ""
		if len(deps) > 0 {
			depNote = ", depends on " + strings.Join(deps, ", ")
		}

		if !c.Detailed {
			rt.Out.Printf("%s: %s, %d recipient(s)%s%s\n", file, status, len(recipients), armorNote, depNote)
			continue
		}

		hasGenerator, err := accessor.HasGenerator(file)
		if err != nil {
			rt.Out.Printf("%s: error: %v\n", file, err)
			continue
		}

		hasPub := false

		if name, err := secretname.FromBasename(file); err == nil {
			for _, candidate := range []string{name.PublicFile(), name.LegacyPublicFile()} {
				if _, statErr := os.Stat(filepath.Join(accessor.RulesDir(), candidate)); statErr == nil {
					hasPub = true
					break
				}
			}
		}

		rt.Out.Printf("%s: %s, %d recipient(s)%s%s, has_generator=%t, has_pub=%t\n",
			file, status, len(recipients), armorNote, depNote, hasGenerator, hasPub)
	}

	return nil
}

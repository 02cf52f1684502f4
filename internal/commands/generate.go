package commands

import (
	"fmt"

	"github.com/secretsmith/secretsmith/internal/scheduler"
)

// GenerateCmd runs each target's declared (or automatic) generator in
// dependency order, skipping secrets that already exist unless --force.
type GenerateCmd struct {
	Names          []string `arg:"" optional:"" help:"secret names to generate (default: all declared secrets)"`
	Force          bool     `help:"regenerate even if the secret already exists"`
	NoDependencies bool     `help:"do not implicitly generate dependencies; fail unless they are already selected or have a public file on disk"`
}

// Run executes the generate command.
func (c *GenerateCmd) Run(rt *Runtime) error {
	accessor, err := rt.Accessor()
	if err != nil {
		return err
	}

	identities, loadErr := rt.Identities()
	if loadErr != nil {
		// Missing identities are only fatal once a dependency actually needs
		// decrypting off disk; the scheduler surfaces that itself.
		identities = nil
	}

	sched := scheduler.New(accessor, identities, rt.Out, scheduler.Options{
		Force:          c.Force,
		DryRun:         rt.DryRun,
		NoDependencies: c.NoDependencies,
	})

	results, err := sched.Run(c.Names)
	if err != nil {
		return err
	}

	failed := 0

	for _, r := range results {
		switch r.Action {
		case scheduler.ActionGenerated:
			rt.Out.Printf("%s: generated\n", r.File)
		case scheduler.ActionSkipped:
			rt.Out.Printf("%s: already exists\n", r.File)
		case scheduler.ActionFailed:
			failed++
			rt.Out.Printf("%s: failed: %v\n", r.File, r.Err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("generation failed for %d secret(s)", failed)
	}

	return nil
}

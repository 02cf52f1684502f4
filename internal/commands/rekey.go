package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	fage "filippo.io/age"

	kage "github.com/secretsmith/secretsmith/internal/age"
	kerrors "github.com/secretsmith/secretsmith/internal/errors"
	"github.com/secretsmith/secretsmith/internal/memwipe"
	"github.com/secretsmith/secretsmith/internal/secretname"
)

// RekeyCmd re-encrypts existing secrets against the recipients currently
// declared in the rules file, for use after editing that declaration.
type RekeyCmd struct {
	Names   []string `arg:"" optional:"" help:"secret names to rekey (default: all declared secrets)"`
	Partial bool     `help:"rekey only the secrets that can be decrypted, reporting the rest as failures"`
}

type rekeyPlan struct {
	name       secretname.Name
	path       string
	recipients []string
	armored    bool
}

// Run executes the rekey command. It probes every existing target for
// decryptability before touching anything (the preflight phase); in strict
// mode (the default) a single undecryptable target aborts the whole command
// untouched, while --partial rekeys whatever can be decrypted and reports
// the rest.
func (c *RekeyCmd) Run(rt *Runtime) error {
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

	var existing []rekeyPlan

	for _, target := range targets {
		name, err := secretname.Parse(target)
		if err != nil {
			return err
		}

		file := name.SecretFile()
		path := filepath.Join(accessor.RulesDir(), file)

		if _, statErr := os.Stat(path); statErr != nil {
			rt.Out.Logger.Debug().Str("secret", file).Msg("does not exist yet, skipping rekey")
			continue
		}

		rawRecipients, err := accessor.Recipients(file)
		if err != nil {
			return err
		}

		armored, err := accessor.Armored(file)
		if err != nil {
			return err
		}

		existing = append(existing, rekeyPlan{
			name:       name,
			path:       path,
			recipients: rawRecipients,
			armored:    armored,
		})
	}

	var decryptable, undecryptable []rekeyPlan

	probeErrors := make(map[string]error, len(existing))

	for _, p := range existing {
		if err := kage.CanDecrypt(p.path, identities); err != nil {
			undecryptable = append(undecryptable, p)
			probeErrors[p.name.SecretFile()] = err

			continue
		}

		decryptable = append(decryptable, p)
	}

	if len(undecryptable) > 0 && !c.Partial {
		var sb strings.Builder

		sb.WriteString("the following secrets could not be decrypted:\n")

		for _, p := range undecryptable {
			fmt.Fprintf(&sb, "  %s: %v\n", p.name.SecretFile(), probeErrors[p.name.SecretFile()])
		}

		sb.WriteString("use --partial to rekey only the secrets that can be decrypted")

		return fmt.Errorf("%s", sb.String())
	}

	var succeeded, failed int

	var failures []string

	for _, p := range undecryptable {
		rt.Out.Logger.Warn().Str("secret", p.name.SecretFile()).Err(probeErrors[p.name.SecretFile()]).Msg("skipping undecryptable secret")

		failed++
		failures = append(failures, fmt.Sprintf("%s: %v", p.name.SecretFile(), probeErrors[p.name.SecretFile()]))
	}

	if len(decryptable) == 0 && len(undecryptable) > 0 {
		return fmt.Errorf("no secrets could be decrypted")
	}

	if rt.DryRun {
		for _, p := range decryptable {
			rt.Out.Logger.Info().Str("secret", p.name.SecretFile()).Msg("would rekey (dry run)")
		}

		return nil
	}

	for _, p := range decryptable {
		if err := rekeyOne(p, identities); err != nil {
			failed++
			failures = append(failures, fmt.Sprintf("%s: %v", p.name.SecretFile(), err))

			if !c.Partial {
				return kerrors.CryptoError("rekey", p.path, err)
			}

			rt.Out.Logger.Warn().Str("secret", p.name.SecretFile()).Err(err).Msg("rekey failed")

			continue
		}

		succeeded++

		rt.Out.Logger.Info().Str("secret", p.name.SecretFile()).Msg("rekeyed")
	}

	rt.Out.Logger.Info().Int("rekeyed", succeeded).Int("failed", failed).Msg("rekey complete")

	if failed > 0 {
		return fmt.Errorf("%d of %d secret(s) failed to rekey: %s", failed, succeeded+failed, strings.Join(failures, "; "))
	}

	return nil
}

func rekeyOne(p rekeyPlan, identities []fage.Identity) error {
	plaintext, err := kage.DecryptFile(p.path, identities)
	if err != nil {
		return err
	}
	defer memwipe.Wipe(plaintext)

	recipients, err := kage.ParseRecipients(p.recipients)
	if err != nil {
		return err
	}

	return kage.EncryptToFile(p.path, plaintext, recipients, p.armored)
}

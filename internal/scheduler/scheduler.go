// Package scheduler resolves the dependency order secrets must be generated
// in and drives the generator calls, re-expressing the fixed-point algorithm
// as an explicit (pending, generated, processed) state machine rather than a
// shared mutable graph.
package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	fage "filippo.io/age"

	kage "github.com/secretsmith/secretsmith/internal/age"
	kerrors "github.com/secretsmith/secretsmith/internal/errors"
	"github.com/secretsmith/secretsmith/internal/output"
	"github.com/secretsmith/secretsmith/internal/rules"
	"github.com/secretsmith/secretsmith/internal/secretname"
)

// Action reports what a scheduler pass did with one target.
type Action string

const (
	ActionGenerated Action = "generated"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// Result is the per-target outcome of a Run.
type Result struct {
	File   string
	Action Action
	Err    error
}

// Options configures a Run.
type Options struct {
	// Force regenerates targets that already exist on disk.
	Force bool
	// DryRun reports what would happen without writing any file.
	DryRun bool
	// NoDependencies refuses to expand the selection to the transitive
	// dependency closure; every dependency of a selected target must
	// already be satisfied (selected itself, or a .pub/.age.pub file on
	// disk) or Run fails before generating anything.
	NoDependencies bool
}

// Scheduler applies rules-declared generators in dependency order.
type Scheduler struct {
	accessor   *rules.Accessor
	identities []fage.Identity
	log        *output.Context
	opts       Options

	// generated caches already-materialised secret/public values for this
	// run, keyed by bare secret name, so dependents don't re-decrypt.
	generated map[string]rules.GeneratorOutput

	// allSet is the set of every file declared in the rules file, used to
	// tell a dependency that simply hasn't run yet apart from one that can
	// never run because nothing generates it.
	allSet map[string]bool
}

// New builds a Scheduler bound to accessor, using identities to decrypt
// already-generated dependencies that must be read back off disk.
func New(accessor *rules.Accessor, identities []fage.Identity, log *output.Context, opts Options) *Scheduler {
	return &Scheduler{
		accessor:   accessor,
		identities: identities,
		log:        log,
		opts:       opts,
		generated:  map[string]rules.GeneratorOutput{},
	}
}

// Run generates every file in targets (bare names or "<name>.age"; every
// declared file when targets is empty), expanding the request to include the
// transitive closure of declared dependencies unless Options.NoDependencies
// is set, in an order that satisfies those dependencies.
func (s *Scheduler) Run(targets []string) ([]Result, error) {
	all, err := s.accessor.AllFiles()
	if err != nil {
		return nil, err
	}

	s.allSet = make(map[string]bool, len(all))
	for _, f := range all {
		s.allSet[f] = true
	}

	pending, err := s.resolveTargets(targets, all)
	if err != nil {
		return nil, err
	}

	results := map[string]Result{}
	maxIter := len(all) + 10

	for iter := 0; len(pending) > 0; iter++ {
		if iter >= maxIter {
			return nil, kerrors.SchedulerError(fmt.Sprintf("exceeded %d iterations with %d secrets still unresolved: %v", maxIter, len(pending), pending))
		}

		var remaining []string

		progressed := false

		for _, file := range pending {
			ctx, ready, err := s.buildContext(file)
			if err != nil {
				// A dependency-resolution failure (missing dependency, or a
				// decrypt error reading one back off disk) can never resolve
				// itself on a later pass, unlike a per-secret generator
				// failure: abort the whole run rather than report it as one
				// failed result among others.
				return nil, err
			}

			if !ready {
				remaining = append(remaining, file)
				continue
			}

			res, err := s.process(file, ctx)
			if err != nil {
				results[file] = Result{File: file, Action: ActionFailed, Err: err}
				progressed = true

				continue
			}

			results[file] = res
			progressed = true
		}

		if !progressed && len(remaining) > 0 {
			var sb strings.Builder

			sb.WriteString("circular dependency detected among:\n")

			for _, file := range remaining {
				deps, _ := s.accessor.Dependencies(file)
				fmt.Fprintf(&sb, "  %s depends on %v\n", file, deps)
			}

			return nil, kerrors.SchedulerError(sb.String())
		}

		pending = remaining
	}

	out := make([]Result, 0, len(results))
	for _, file := range all {
		if r, ok := results[file]; ok {
			out = append(out, r)
		}
	}

	return out, nil
}

// resolveTargets normalises targets to "<name>.age" form. Ordinarily it also
// expands the transitive dependency closure so a generator never runs before
// its inputs; with Options.NoDependencies it instead verifies that closure
// is already satisfied and leaves the selection exactly as given.
func (s *Scheduler) resolveTargets(targets, all []string) ([]string, error) {
	if len(targets) == 0 {
		return append([]string(nil), all...), nil
	}

	if s.opts.NoDependencies {
		selected := map[string]bool{}

		normalized := make([]string, 0, len(targets))

		for _, t := range targets {
			name, err := secretname.Parse(t)
			if err != nil {
				return nil, err
			}

			file := name.SecretFile()
			selected[file] = true
			normalized = append(normalized, file)
		}

		if err := s.verifyDependenciesSatisfied(normalized, selected); err != nil {
			return nil, err
		}

		ordered := make([]string, 0, len(selected))

		for _, file := range all {
			if selected[file] {
				ordered = append(ordered, file)
			}
		}

		return ordered, nil
	}

	seen := map[string]bool{}

	var closure func(file string) error

	closure = func(file string) error {
		name, err := secretname.Parse(file)
		if err != nil {
			return err
		}

		file = name.SecretFile()
		if seen[file] {
			return nil
		}

		seen[file] = true

		deps, err := s.accessor.Dependencies(file)
		if err != nil {
			return err
		}

		for _, dep := range deps {
			if err := closure(dep); err != nil {
				return err
			}
		}

		return nil
	}

	for _, t := range targets {
		if err := closure(t); err != nil {
			return nil, err
		}
	}

	ordered := make([]string, 0, len(seen))

	for _, file := range all {
		if seen[file] {
			ordered = append(ordered, file)
		}
	}

	return ordered, nil
}

// verifyDependenciesSatisfied walks the declared dependencies of targets and
// fails unless every one of them is either already selected or has a public
// companion file on disk, per the --no-dependencies contract: nothing may be
// generated implicitly to satisfy a dependency.
func (s *Scheduler) verifyDependenciesSatisfied(targets []string, selected map[string]bool) error {
	seen := map[string]bool{}

	var walk func(file string) error

	walk = func(file string) error {
		if seen[file] {
			return nil
		}

		seen[file] = true

		deps, err := s.accessor.Dependencies(file)
		if err != nil {
			return err
		}

		for _, dep := range deps {
			depName, err := secretname.Parse(dep)
			if err != nil {
				return err
			}

			depFile := depName.SecretFile()

			if selected[depFile] {
				if err := walk(depFile); err != nil {
					return err
				}

				continue
			}

			if s.hasPublicOnDisk(depName) {
				continue
			}

			return kerrors.SchedulerError(fmt.Sprintf("%s depends on %s, which is neither selected nor has a public file on disk; drop --no-dependencies to generate it automatically", file, depFile))
		}

		return nil
	}

	for _, t := range targets {
		if err := walk(t); err != nil {
			return err
		}
	}

	return nil
}

// hasPublicOnDisk reports whether name's public companion file already
// exists, under either the current or legacy naming convention.
func (s *Scheduler) hasPublicOnDisk(name secretname.Name) bool {
	for _, candidate := range []string{name.PublicFile(), name.LegacyPublicFile()} {
		if _, err := os.Stat(filepath.Join(s.accessor.RulesDir(), candidate)); err == nil {
			return true
		}
	}

	return false
}

// buildContext assembles the {secrets, publics} dependency context for file.
// A dependency that is simply not generated yet reports ready=false so the
// caller retries it later (pending); a dependency that cannot ever be
// generated (absent from all_files) and has no file on disk fails the whole
// run immediately, naming file and the missing dependency (missing).
func (s *Scheduler) buildContext(file string) (rules.GeneratorContext, bool, error) {
	ctx := rules.GeneratorContext{Secrets: map[string]string{}, Publics: map[string]string{}}

	deps, err := s.accessor.Dependencies(file)
	if err != nil {
		return ctx, false, err
	}

	var missing []string

	pending := false

	for _, dep := range deps {
		depName, err := secretname.Parse(dep)
		if err != nil {
			return ctx, false, err
		}

		out, ok := s.generated[depName.String()]
		if !ok {
			out, ok, err = s.loadExisting(depName)
			if err != nil {
				return ctx, false, err
			}

			if ok {
				s.generated[depName.String()] = out
			}
		}

		if ok {
			ctx.Secrets[depName.String()] = out.Secret

			if out.Public != nil {
				ctx.Publics[depName.String()] = *out.Public
			}

			continue
		}

		if s.allSet[depName.SecretFile()] {
			pending = true
			continue
		}

		missing = append(missing, depName.SecretFile())
	}

	if len(missing) > 0 {
		return ctx, false, kerrors.SchedulerError(fmt.Sprintf("%s depends on %v, which cannot be generated and do not exist on disk", file, missing))
	}

	if pending {
		return ctx, false, nil
	}

	return ctx, true, nil
}

// loadExisting reads a dependency's plaintext and public companion off disk
// when it already exists but hasn't been (re)generated this run.
func (s *Scheduler) loadExisting(name secretname.Name) (rules.GeneratorOutput, bool, error) {
	path := filepath.Join(s.accessor.RulesDir(), name.SecretFile())
	if _, err := os.Stat(path); err != nil {
		return rules.GeneratorOutput{}, false, nil
	}

	if len(s.identities) == 0 {
		return rules.GeneratorOutput{}, false, kerrors.IdentityError(fmt.Sprintf("cannot read existing dependency %s without an identity", name.SecretFile()))
	}

	plaintext, err := kage.DecryptFile(path, s.identities)
	if err != nil {
		return rules.GeneratorOutput{}, false, kerrors.CryptoError("decrypt dependency", path, err)
	}

	out := rules.GeneratorOutput{Secret: string(plaintext)}

	for _, candidate := range []string{name.PublicFile(), name.LegacyPublicFile()} {
		data, err := os.ReadFile(filepath.Join(s.accessor.RulesDir(), candidate))
		if err == nil {
			public := string(data)
			out.Public = &public

			break
		}
	}

	return out, true, nil
}

// process generates (or skips) a single file once its dependencies are ready.
func (s *Scheduler) process(file string, ctx rules.GeneratorContext) (Result, error) {
	name, err := secretname.Parse(file)
	if err != nil {
		return Result{}, err
	}

	path := filepath.Join(s.accessor.RulesDir(), file)

	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
	}

	if exists && !s.opts.Force {
		out, ok, err := s.loadExisting(name)
		if err != nil {
			return Result{}, err
		}

		if ok {
			s.generated[name.String()] = out
		}

		s.log.Logger.Debug().Str("secret", file).Msg("already exists, skipping")

		return Result{File: file, Action: ActionSkipped}, nil
	}

	out, ok, err := s.accessor.GeneratorOutputFor(file, ctx)
	if err != nil {
		return Result{}, err
	}

	if !ok {
		return Result{}, kerrors.SchedulerError(fmt.Sprintf("%s has no generator and does not exist", file))
	}

	if s.opts.DryRun {
		s.log.Logger.Info().Str("secret", file).Msg("would generate (dry run)")
		s.generated[name.String()] = out

		return Result{File: file, Action: ActionGenerated}, nil
	}

	if err := s.writeSecret(name, out); err != nil {
		return Result{}, err
	}

	s.generated[name.String()] = out
	s.log.Logger.Info().Str("secret", file).Msg("generated")

	return Result{File: file, Action: ActionGenerated}, nil
}

func (s *Scheduler) writeSecret(name secretname.Name, out rules.GeneratorOutput) error {
	file := name.SecretFile()

	rawRecipients, err := s.accessor.Recipients(file)
	if err != nil {
		return err
	}

	recipients, err := kage.ParseRecipients(rawRecipients)
	if err != nil {
		return kerrors.CryptoError("parse recipients for", file, err)
	}

	armored, err := s.accessor.Armored(file)
	if err != nil {
		return err
	}

	path := filepath.Join(s.accessor.RulesDir(), file)
	if err := kage.EncryptToFile(path, []byte(out.Secret), recipients, armored); err != nil {
		return kerrors.CryptoError("encrypt", path, err)
	}

	if out.Public != nil {
		pubPath := filepath.Join(s.accessor.RulesDir(), name.PublicFile())
		if err := os.WriteFile(pubPath, []byte(*out.Public), 0o644); err != nil {
			return kerrors.FileAccessError("write", pubPath, err)
		}
	}

	return nil
}

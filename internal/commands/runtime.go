// Package commands implements secretsmith's CLI subcommands: edit, encrypt,
// decrypt, rekey, generate, list, check, and completions.
package commands

import (
	"runtime"

	fage "filippo.io/age"

	"github.com/secretsmith/secretsmith/internal/identity"
	"github.com/secretsmith/secretsmith/internal/output"
	"github.com/secretsmith/secretsmith/internal/rules"
)

// Runtime carries the global flags and lazily-loaded state shared by every
// subcommand: the parsed rules file, the resolved decryption identities, and
// the output/logging handle.
type Runtime struct {
	RulesPath          string
	IdentityPaths      []string
	NoSystemIdentities bool
	DryRun             bool
	Out                *output.Context

	accessor         *rules.Accessor
	identities       []fage.Identity
	identitiesLoaded bool
}

// NewRuntime builds a Runtime from the global CLI flags.
func NewRuntime(rulesPath string, identityPaths []string, noSystemIdentities, dryRun bool, out *output.Context) *Runtime {
	return &Runtime{
		RulesPath:          rulesPath,
		IdentityPaths:      identityPaths,
		NoSystemIdentities: noSystemIdentities,
		DryRun:             dryRun,
		Out:                out,
	}
}

// Accessor parses the rules file on first access and returns the façade
// over it.
func (rt *Runtime) Accessor() (*rules.Accessor, error) {
	if rt.accessor != nil {
		return rt.accessor, nil
	}

	host, err := rules.NewHost(rt.RulesPath)
	if err != nil {
		return nil, err
	}

	for _, warning := range host.Warnings() {
		rt.Out.Warn(warning)
	}

	rt.accessor = rules.NewAccessor(host)

	return rt.accessor, nil
}

// Identities resolves the decryption identity set on first access: explicit
// -i/--identity paths take precedence, falling back to system defaults
// unless --no-system-identities was given.
func (rt *Runtime) Identities() ([]fage.Identity, error) {
	if rt.identitiesLoaded {
		return rt.identities, nil
	}

	identities, err := identity.LoadAll(rt.IdentityPaths, !rt.NoSystemIdentities)
	if err != nil {
		return nil, err
	}

	rt.identities = identities
	rt.identitiesLoaded = true

	rt.Out.Logger.Debug().Int("identities", len(identities)).Msg("identities loaded")

	return rt.identities, nil
}

// Cleanup releases any sensitive state retained for the process lifetime.
func (rt *Runtime) Cleanup() {
	rt.identities = nil
	rt.identitiesLoaded = false

	runtime.GC()
}

// Package secretname validates and normalises secret names into the simple,
// non-path identifiers the rest of secretsmith operates on below the CLI
// boundary, and derives the on-disk `<name>.age` / `<name>.pub` paths.
package secretname

import (
	"path/filepath"
	"strings"

	kerrors "github.com/secretsmith/secretsmith/internal/errors"
)

const (
	ageSuffix = ".age"
	pubSuffix = ".pub"
)

// Name is a validated secret identifier: non-empty, no path separators, no leading dot.
type Name struct {
	value string
}

// Parse strips a single trailing ".age" suffix and validates the result.
func Parse(input string) (Name, error) {
	name := strings.TrimSuffix(input, ageSuffix)

	if name == "" {
		return Name{}, kerrors.ValidationError("secret name", "must not be empty")
	}

	if strings.ContainsAny(name, "/\\") {
		return Name{}, kerrors.ValidationError("secret name", "must not contain path separators")
	}

	if strings.HasPrefix(name, ".") {
		return Name{}, kerrors.ValidationError("secret name", "must not start with '.'")
	}

	return Name{value: name}, nil
}

// FromBasename parses a name from a path-like candidate, matching by basename only.
func FromBasename(candidate string) (Name, error) {
	base := filepath.Base(candidate)
	return Parse(base)
}

// String returns the normalised secret name (without any suffix).
func (n Name) String() string { return n.value }

// SecretFile returns "<name>.age".
func (n Name) SecretFile() string { return n.value + ageSuffix }

// PublicFile returns the canonical write-side public companion path, "<name>.pub".
func (n Name) PublicFile() string { return n.value + pubSuffix }

// LegacyPublicFile returns the alternate read-side public companion, "<name>.age.pub".
func (n Name) LegacyPublicFile() string { return n.value + ageSuffix + pubSuffix }

// Equal compares two names by their normalised string value.
func (n Name) Equal(other Name) bool { return n.value == other.value }

// Valid reports whether s satisfies the simple-name predicate (spec §8 boundary property).
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

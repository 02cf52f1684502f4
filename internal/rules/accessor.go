// Package rules (accessor.go) implements the pure façade over the evaluator
// described in spec §4.3: one method per question a command orchestrator
// needs answered about a declared secret.
package rules

import (
	"fmt"
	"os"
	"strings"
)

// GeneratorOutput is the normalised result of applying a secret's generator:
// the plaintext, and an optional public companion.
type GeneratorOutput struct {
	Secret string
	Public *string
}

// GeneratorContext is the dependency-scheduler's materialised view of
// already-resolved dependencies, handed to a generator as {secrets, publics}.
type GeneratorContext struct {
	Secrets map[string]string
	Publics map[string]string
}

// Accessor answers recipient/armor/generator/dependency questions about a
// rules file's declared secrets. It is stateless; callers may cache results.
type Accessor struct {
	host *Host
}

// NewAccessor wraps host in the rules-accessor façade.
func NewAccessor(host *Host) *Accessor {
	return &Accessor{host: host}
}

// RulesDir returns the directory the rules file lives in.
func (a *Accessor) RulesDir() string { return a.host.RulesDir() }

// AllFiles returns every declared secret name (including the ".age"
// suffix), in the evaluator's stable sorted attribute order.
func (a *Accessor) AllFiles() ([]string, error) {
	root, err := a.host.Root()
	if err != nil {
		return nil, err
	}

	return root.SortedNames(), nil
}

func (a *Accessor) record(file string) (*VAttrs, error) {
	root, err := a.host.Root()
	if err != nil {
		return nil, err
	}

	t, ok := root.Fields[file]
	if !ok {
		return nil, fmt.Errorf("rules: secret %q is not declared in the rules file", file)
	}

	v, err := t.Force()
	if err != nil {
		return nil, err
	}

	attrs, ok := v.(*VAttrs)
	if !ok {
		return nil, fmt.Errorf("rules: entry for %q must be an attribute set, got %s", file, typeName(v))
	}

	return attrs, nil
}

// Recipients returns the resolved recipient list for file (spec §4.3: each
// entry is either a literal key or a reference to a sibling secret's public
// companion).
func (a *Accessor) Recipients(file string) ([]string, error) {
	rec, err := a.record(file)
	if err != nil {
		return nil, err
	}

	t, ok := rec.Fields["publicKeys"]
	if !ok {
		return nil, fmt.Errorf("rules: %q has no publicKeys", file)
	}

	v, err := t.Force()
	if err != nil {
		return nil, err
	}

	if _, err := DeepForce(v); err != nil {
		return nil, err
	}

	raw, err := ToStringList(v)
	if err != nil {
		return nil, fmt.Errorf("rules: %q publicKeys: %w", file, err)
	}

	resolved := make([]string, len(raw))
	for i, key := range raw {
		resolved[i] = a.ResolveRecipient(key)
	}

	return resolved, nil
}

// ResolveRecipient resolves a recipient reference: literal public keys
// (age1.../ssh-.../sk-... prefixes) pass through verbatim; anything else is
// treated as a sibling secret name and its public companion is read, falling
// back to the raw string when no companion file exists.
func (a *Accessor) ResolveRecipient(s string) string {
	if strings.HasPrefix(s, "age1") || strings.HasPrefix(s, "ssh-") || strings.HasPrefix(s, "sk-") {
		return s
	}

	name := strings.TrimSuffix(s, ".age")

	for _, candidate := range []string{name + ".age.pub", name + ".pub"} {
		path := a.host.RulesDir() + string(os.PathSeparator) + candidate

		data, err := os.ReadFile(path)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return s
}

// Armored reports whether file declares armor = true, defaulting to false.
func (a *Accessor) Armored(file string) (bool, error) {
	rec, err := a.record(file)
	if err != nil {
		return false, err
	}

	t, ok := rec.Fields["armor"]
	if !ok {
		return false, nil
	}

	v, err := t.Force()
	if err != nil {
		return false, err
	}

	return ToBool(v)
}

// Dependencies returns the declared dependency list, defaulting to empty.
func (a *Accessor) Dependencies(file string) ([]string, error) {
	rec, err := a.record(file)
	if err != nil {
		return nil, err
	}

	t, ok := rec.Fields["dependencies"]
	if !ok {
		return nil, nil
	}

	v, err := t.Force()
	if err != nil {
		return nil, err
	}

	if _, err := DeepForce(v); err != nil {
		return nil, err
	}

	return ToStringList(v)
}

// GeneratorOutputFor applies file's generator (explicit, or the automatic
// one selected by basename suffix) to ctx, and reports ok=false when there
// is no generator at all.
func (a *Accessor) GeneratorOutputFor(file string, ctx GeneratorContext) (output *GeneratorOutput, ok bool, err error) {
	rec, err := a.record(file)
	if err != nil {
		return nil, false, err
	}

	fn, err := a.generatorFunc(file, rec)
	if err != nil {
		return nil, false, err
	}

	if fn == nil {
		return nil, false, nil
	}

	ctxLiteral := BuildContextLiteral(ctx)

	ctxVal, err := a.host.EvalExprString(ctxLiteral)
	if err != nil {
		return nil, false, fmt.Errorf("rules: build generator context for %q: %w", file, err)
	}

	resultVal, err := fn.Apply(ValueThunk(ctxVal))
	if err != nil {
		return nil, false, fmt.Errorf("rules: generator for %q: %w", file, err)
	}

	if _, err := DeepForce(resultVal); err != nil {
		return nil, false, fmt.Errorf("rules: generator for %q produced an unevaluated value: %w", file, err)
	}

	out, err := normalizeGeneratorResult(resultVal)
	if err != nil {
		return nil, false, fmt.Errorf("rules: generator for %q: %w", file, err)
	}

	return out, true, nil
}

// HasGenerator reports whether file has an explicit or automatic generator,
// without invoking it.
func (a *Accessor) HasGenerator(file string) (bool, error) {
	rec, err := a.record(file)
	if err != nil {
		return false, err
	}

	fn, err := a.generatorFunc(file, rec)
	if err != nil {
		return false, err
	}

	return fn != nil, nil
}

func (a *Accessor) generatorFunc(file string, rec *VAttrs) (*VFunc, error) {
	if t, ok := rec.Fields["generator"]; ok {
		v, err := t.Force()
		if err != nil {
			return nil, err
		}

		fn, ok := v.(*VFunc)
		if !ok {
			return nil, fmt.Errorf("rules: %q generator must be a function, got %s", file, typeName(v))
		}

		return fn, nil
	}

	return a.automaticGenerator(file)
}

// automaticGenerator selects a builtin generator by lowercasing the secret
// basename and matching the suffix list from spec §4.3.
func (a *Accessor) automaticGenerator(file string) (*VFunc, error) {
	base := strings.ToLower(strings.TrimSuffix(file, ".age"))

	lookup := func(name string) (*VFunc, error) {
		t, ok := a.host.globalEnv.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("rules: missing builtin %q", name)
		}

		v, err := t.Force()
		if err != nil {
			return nil, err
		}

		fn, ok := v.(*VFunc)
		if !ok {
			return nil, fmt.Errorf("rules: builtin %q is not a function", name)
		}

		return fn, nil
	}

	switch {
	case hasAnySuffix(base, "ed25519", "ssh", "ssh_key"):
		return lookup("sshKey")
	case hasAnySuffix(base, "x25519"):
		return lookup("ageKey")
	case hasAnySuffix(base, "password", "passphrase"):
		randomString, err := lookup("randomString")
		if err != nil {
			return nil, err
		}

		return &VFunc{Name: "auto:password", Apply: func(_ *Thunk) (Value, error) {
			return randomString.Apply(ValueThunk(VInt(32)))
		}}, nil
	default:
		return nil, nil
	}
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}

	return false
}

func normalizeGeneratorResult(v Value) (*GeneratorOutput, error) {
	switch val := v.(type) {
	case VString:
		s := string(val)
		return &GeneratorOutput{Secret: s}, nil
	case *VAttrs:
		secretThunk, ok := val.Fields["secret"]
		if !ok {
			return nil, fmt.Errorf("generator result attribute set must have a 'secret' field")
		}

		secretVal, err := secretThunk.Force()
		if err != nil {
			return nil, err
		}

		secret, err := ToString(secretVal)
		if err != nil {
			return nil, fmt.Errorf("generator 'secret' field: %w", err)
		}

		out := &GeneratorOutput{Secret: secret}

		if pubThunk, ok := val.Fields["public"]; ok {
			pubVal, err := pubThunk.Force()
			if err != nil {
				return nil, err
			}

			pub, err := ToOptionalString(pubVal)
			if err != nil {
				return nil, fmt.Errorf("generator 'public' field: %w", err)
			}

			out.Public = pub
		}

		return out, nil
	default:
		return nil, fmt.Errorf("generator must return a string or an attribute set, got %s", typeName(v))
	}
}

// EscapeNixString escapes a Go string for embedding in a rules-language
// string literal: backslash, double-quote, newline, CR, tab, NUL, and '$'
// (spec §4.7 dependency-context serialisation).
func EscapeNixString(s string) string {
	var sb strings.Builder

	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\x00':
			sb.WriteString(`\0`)
		case '$':
			sb.WriteString(`\$`)
		default:
			sb.WriteRune(r)
		}
	}

	return sb.String()
}

// BuildContextLiteral serialises ctx into a rules-language attribute-set
// literal: "{ secrets = { "a" = "..."; }; publics = { ... }; }".
func BuildContextLiteral(ctx GeneratorContext) string {
	var sb strings.Builder

	sb.WriteString("{ secrets = { ")
	writeStringMap(&sb, ctx.Secrets)
	sb.WriteString(" }; publics = { ")
	writeStringMap(&sb, ctx.Publics)
	sb.WriteString(" }; }")

	return sb.String()
}

func writeStringMap(sb *strings.Builder, m map[string]string) {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}

	sortStrings(names)

	for _, k := range names {
		fmt.Fprintf(sb, "\"%s\" = \"%s\"; ", EscapeNixString(k), EscapeNixString(m[k]))
	}
}

package rules

import (
	"fmt"

	"github.com/secretsmith/secretsmith/internal/keys"
)

// builtinBindings installs the impure builtins (spec §4.2) into the
// evaluator's global scope: randomString, sshKey, ageKey, plus the small
// set of pure helpers (hasAttr, attrNames) rules files rely on for optional
// fields and for enumerating all declared secrets.
func builtinBindings(h *Host) map[string]*Thunk {
	return map[string]*Thunk{
		"randomString": ValueThunk(builtinRandomString()),
		"sshKey":       ValueThunk(builtinSSHKey()),
		"ageKey":       ValueThunk(builtinAgeKey()),
		"hasAttr":      ValueThunk(builtinHasAttr()),
		"attrNames":    ValueThunk(builtinAttrNames()),
	}
}

func builtinRandomString() *VFunc {
	return &VFunc{Name: "randomString", Apply: func(arg *Thunk) (Value, error) {
		v, err := arg.Force()
		if err != nil {
			return nil, err
		}

		n, ok := v.(VInt)
		if !ok {
			return nil, fmt.Errorf("rules: randomString expects an integer argument, got %s", typeName(v))
		}

		s, err := keys.RandomAlphanumeric(int(n))
		if err != nil {
			return nil, fmt.Errorf("rules: randomString: %w", err)
		}

		return VString(s), nil
	}}
}

func builtinSSHKey() *VFunc {
	return &VFunc{Name: "sshKey", Apply: func(_ *Thunk) (Value, error) {
		priv, pub, err := keys.GenerateSSHEd25519()
		if err != nil {
			return nil, fmt.Errorf("rules: sshKey: %w", err)
		}

		return keyPairAttrs(priv, pub), nil
	}}
}

func builtinAgeKey() *VFunc {
	return &VFunc{Name: "ageKey", Apply: func(_ *Thunk) (Value, error) {
		priv, pub, err := keys.GenerateAgeX25519()
		if err != nil {
			return nil, fmt.Errorf("rules: ageKey: %w", err)
		}

		return keyPairAttrs(priv, pub), nil
	}}
}

func keyPairAttrs(secret, public string) *VAttrs {
	return &VAttrs{Fields: map[string]*Thunk{
		"secret": ValueThunk(VString(secret)),
		"public": ValueThunk(VString(public)),
	}}
}

// builtinHasAttr implements "hasAttr name attrs", curried as two single-arg
// applications to match how rules files call it: "hasAttr "armor" r".
func builtinHasAttr() *VFunc {
	return &VFunc{Name: "hasAttr", Apply: func(nameArg *Thunk) (Value, error) {
		nameVal, err := nameArg.Force()
		if err != nil {
			return nil, err
		}

		name, ok := nameVal.(VString)
		if !ok {
			return nil, fmt.Errorf("rules: hasAttr expects a string name, got %s", typeName(nameVal))
		}

		return &VFunc{Name: "hasAttr/2", Apply: func(attrsArg *Thunk) (Value, error) {
			attrsVal, err := attrsArg.Force()
			if err != nil {
				return nil, err
			}

			attrs, ok := attrsVal.(*VAttrs)
			if !ok {
				return nil, fmt.Errorf("rules: hasAttr expects an attribute set, got %s", typeName(attrsVal))
			}

			_, has := attrs.Fields[string(name)]

			return VBool(has), nil
		}}, nil
	}}
}

func builtinAttrNames() *VFunc {
	return &VFunc{Name: "attrNames", Apply: func(arg *Thunk) (Value, error) {
		v, err := arg.Force()
		if err != nil {
			return nil, err
		}

		attrs, ok := v.(*VAttrs)
		if !ok {
			return nil, fmt.Errorf("rules: attrNames expects an attribute set, got %s", typeName(v))
		}

		names := attrs.SortedNames()
		elems := make([]*Thunk, len(names))

		for i, n := range names {
			elems[i] = ValueThunk(VString(n))
		}

		return &VList{Elems: elems}, nil
	}}
}

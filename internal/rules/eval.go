package rules

import (
	"fmt"
	"os"
	"path/filepath"
)

// Host embeds the rules-language evaluator in impure mode: it parses a
// rules file once, installs the impure cryptographic builtins into the
// global scope, and evaluates ad-hoc expressions against that scope.
type Host struct {
	rulesPath string
	rulesDir  string
	root      Expr
	globalEnv *Env

	importCache map[string]Value
	warnings    []string
}

// NewHost parses path as a rules-file expression and prepares an evaluator
// with the impure builtins installed, ready to answer accessor queries.
func NewHost(path string) (*Host, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("rules: resolve absolute path for %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", abs, err)
	}

	root, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", abs, err)
	}

	h := &Host{
		rulesPath:   abs,
		rulesDir:    filepath.Dir(abs),
		root:        root,
		importCache: map[string]Value{},
	}
	h.globalEnv = NewEnv().Child(builtinBindings(h))

	return h, nil
}

// RulesDir returns the directory containing the rules file, the root for
// resolving sibling secret/public files.
func (h *Host) RulesDir() string { return h.rulesDir }

// Warnings returns diagnostics collected during evaluation; warnings never
// abort evaluation.
func (h *Host) Warnings() []string { return h.warnings }

func (h *Host) warn(msg string) {
	h.warnings = append(h.warnings, msg)
}

// Root forces the top-level expression and requires it to be an attribute set.
func (h *Host) Root() (*VAttrs, error) {
	v, err := h.eval(h.root, h.globalEnv)
	if err != nil {
		return nil, h.diagnose(err)
	}

	attrs, ok := v.(*VAttrs)
	if !ok {
		return nil, fmt.Errorf("rules: %s must evaluate to an attribute set, got %s", h.rulesPath, typeName(v))
	}

	return attrs, nil
}

// EvalExprString parses and evaluates an ad-hoc expression (e.g. a
// dependency-scheduler context literal) against the global scope.
func (h *Host) EvalExprString(src string) (Value, error) {
	expr, err := parse(src)
	if err != nil {
		return nil, fmt.Errorf("rules: parse expression: %w", err)
	}

	v, err := h.eval(expr, h.globalEnv)
	if err != nil {
		return nil, h.diagnose(err)
	}

	return v, nil
}

// diagnose attaches the evaluator's collected warnings to an evaluation
// error, matching spec §4.2's "diagnostics are collected ... and attached to
// evaluation failures" contract.
func (h *Host) diagnose(err error) error {
	if err == nil || len(h.warnings) == 0 {
		return err
	}

	return fmt.Errorf("%w (warnings: %v)", err, h.warnings)
}

func (h *Host) eval(expr Expr, env *Env) (Value, error) {
	switch e := expr.(type) {
	case *StringLit:
		return VString(e.Value), nil
	case *NumberLit:
		return VInt(e.Value), nil
	case *BoolLit:
		return VBool(e.Value), nil
	case *NullLit:
		return VNull{}, nil
	case *Ident:
		t, ok := env.Lookup(e.Name)
		if !ok {
			return nil, fmt.Errorf("rules: undefined identifier %q", e.Name)
		}

		return t.Force()
	case *ListLit:
		elems := make([]*Thunk, len(e.Elems))
		for i, el := range e.Elems {
			elems[i] = NewThunk(el, env, h)
		}

		return &VList{Elems: elems}, nil
	case *AttrSet:
		fields := make(map[string]*Thunk, len(e.Bindings))
		for _, b := range e.Bindings {
			fields[b.Name] = NewThunk(b.Value, env, h)
		}

		return &VAttrs{Fields: fields}, nil
	case *Select:
		v, err := h.eval(e.Target, env)
		if err != nil {
			return nil, err
		}

		attrs, ok := v.(*VAttrs)
		if !ok {
			return nil, fmt.Errorf("rules: cannot select %q on non-attrset value %s", e.Name, typeName(v))
		}

		t, ok := attrs.Fields[e.Name]
		if !ok {
			return nil, fmt.Errorf("rules: attribute %q not found", e.Name)
		}

		return t.Force()
	case *Apply:
		fnVal, err := h.eval(e.Func, env)
		if err != nil {
			return nil, err
		}

		fn, ok := fnVal.(*VFunc)
		if !ok {
			return nil, fmt.Errorf("rules: value is not callable (%s)", typeName(fnVal))
		}

		argThunk := NewThunk(e.Arg, env, h)

		return fn.Apply(argThunk)
	case *Lambda:
		lam := e
		closureEnv := env

		return &VFunc{Name: "<lambda>", Apply: func(arg *Thunk) (Value, error) {
			if lam.Param != "" {
				child := closureEnv.Child(map[string]*Thunk{lam.Param: arg})
				return h.eval(lam.Body, child)
			}

			argVal, err := arg.Force()
			if err != nil {
				return nil, err
			}

			attrs, ok := argVal.(*VAttrs)
			if !ok {
				return nil, fmt.Errorf("rules: lambda expects an attribute set argument, got %s", typeName(argVal))
			}

			names := make(map[string]*Thunk, len(lam.AttrArgs))

			for _, name := range lam.AttrArgs {
				t, ok := attrs.Fields[name]
				if !ok {
					names[name] = ValueThunk(VNull{})
					continue
				}

				names[name] = t
			}

			child := closureEnv.Child(names)

			return h.eval(lam.Body, child)
		}}, nil
	case *LetIn:
		names := map[string]*Thunk{}
		child := env.Child(names)

		for _, b := range e.Bindings {
			names[b.Name] = NewThunk(b.Value, child, h)
		}

		return h.eval(e.Body, child)
	case *And:
		leftVal, err := h.eval(e.Left, env)
		if err != nil {
			return nil, err
		}

		left, ok := leftVal.(VBool)
		if !ok {
			return nil, fmt.Errorf("rules: left side of '&&' must be a boolean, got %s", typeName(leftVal))
		}

		if !bool(left) {
			return VBool(false), nil
		}

		rightVal, err := h.eval(e.Right, env)
		if err != nil {
			return nil, err
		}

		right, ok := rightVal.(VBool)
		if !ok {
			return nil, fmt.Errorf("rules: right side of '&&' must be a boolean, got %s", typeName(rightVal))
		}

		return right, nil
	case *Import:
		return h.evalImport(e.Path)
	default:
		return nil, fmt.Errorf("rules: unsupported expression node %T", expr)
	}
}

func (h *Host) evalImport(path string) (Value, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(h.rulesDir, path)
	}

	if v, ok := h.importCache[abs]; ok {
		return v, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("rules: import %s: %w", abs, err)
	}

	expr, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("rules: parse imported file %s: %w", abs, err)
	}

	v, err := h.eval(expr, h.globalEnv)
	if err != nil {
		return nil, fmt.Errorf("rules: evaluate imported file %s: %w", abs, err)
	}

	h.importCache[abs] = v

	return v, nil
}

// DeepForce recursively forces every thunk reachable from v (through lists
// and attribute sets), so that no lazy value can leak across the accessor
// boundary (spec §4.2 / Design Notes §9). Values of function type are left
// untouched: forcing a generator function would apply it with no argument.
func DeepForce(v Value) (Value, error) {
	switch val := v.(type) {
	case *VList:
		for _, t := range val.Elems {
			inner, err := t.Force()
			if err != nil {
				return nil, err
			}

			if _, err := DeepForce(inner); err != nil {
				return nil, err
			}
		}

		return val, nil
	case *VAttrs:
		for _, t := range val.Fields {
			inner, err := t.Force()
			if err != nil {
				return nil, err
			}

			if _, err := DeepForce(inner); err != nil {
				return nil, err
			}
		}

		return val, nil
	default:
		return v, nil
	}
}

func typeName(v Value) string {
	switch v.(type) {
	case VString:
		return "string"
	case VInt:
		return "int"
	case VBool:
		return "bool"
	case VNull:
		return "null"
	case *VList:
		return "list"
	case *VAttrs:
		return "attrset"
	case *VFunc:
		return "function"
	default:
		return fmt.Sprintf("%T", v)
	}
}

package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "secrets.nix")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	return path
}

func TestEvalAttrSetAndSelect(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, `{
		"db.age" = {
			publicKeys = [ "age1examplekey" ];
			armor = true;
		};
	}`)

	host, err := NewHost(path)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}

	root, err := host.Root()
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	entry, ok := root.Fields["db.age"]
	if !ok {
		t.Fatal("expected db.age entry")
	}

	v, err := entry.Force()
	if err != nil {
		t.Fatalf("force entry: %v", err)
	}

	attrs, ok := v.(*VAttrs)
	if !ok {
		t.Fatalf("expected attrset, got %T", v)
	}

	armorThunk, ok := attrs.Fields["armor"]
	if !ok {
		t.Fatal("expected armor field")
	}

	armorVal, err := armorThunk.Force()
	if err != nil {
		t.Fatalf("force armor: %v", err)
	}

	b, err := ToBool(armorVal)
	if err != nil {
		t.Fatalf("ToBool failed: %v", err)
	}

	if !b {
		t.Error("expected armor = true")
	}
}

func TestEvalLaziness(t *testing.T) {
	dir := t.TempDir()
	// "broken" references an undefined identifier; it must never be forced
	// since nothing in the rules file selects it.
	path := writeRules(t, dir, `{
		used = "ok";
		broken = undefinedIdentifier;
	}`)

	host, err := NewHost(path)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}

	root, err := host.Root()
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	v, err := root.Fields["used"].Force()
	if err != nil {
		t.Fatalf("force 'used' should not touch 'broken': %v", err)
	}

	s, err := ToString(v)
	if err != nil || s != "ok" {
		t.Errorf("got %v, %v, want \"ok\"", s, err)
	}
}

func TestEvalLambdaIgnoresArgument(t *testing.T) {
	host := hostFromSource(t, `{
		gen = _: "constant";
	}`)

	root, err := host.Root()
	if err != nil {
		t.Fatalf("Root failed: %v", err)
	}

	fnVal, err := root.Fields["gen"].Force()
	if err != nil {
		t.Fatalf("force gen: %v", err)
	}

	fn, ok := fnVal.(*VFunc)
	if !ok {
		t.Fatalf("expected function, got %T", fnVal)
	}

	// The argument thunk would fail if forced; it never should be.
	badArg := NewThunk(&Ident{Name: "doesNotExist"}, host.globalEnv, host)

	result, err := fn.Apply(badArg)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	s, err := ToString(result)
	if err != nil || s != "constant" {
		t.Errorf("got %v, %v, want \"constant\"", s, err)
	}
}

func TestEvalLetInSelfReference(t *testing.T) {
	host := hostFromSource(t, `{}`)

	v, err := host.EvalExprString(`(let a = "hello"; b = a; in { result = b; }).result`)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}

	s, err := ToString(v)
	if err != nil || s != "hello" {
		t.Errorf("got %v, %v, want \"hello\"", s, err)
	}
}

func TestEvalHasAttrAndAnd(t *testing.T) {
	host := hostFromSource(t, `{}`)

	v, err := host.EvalExprString(`hasAttr "armor" { armor = true; } && true`)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}

	b, err := ToBool(v)
	if err != nil || !b {
		t.Errorf("got %v, %v, want true", b, err)
	}

	v, err = host.EvalExprString(`hasAttr "missing" { armor = true; }`)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}

	b, err = ToBool(v)
	if err != nil || b {
		t.Errorf("got %v, %v, want false", b, err)
	}
}

func TestEvalListDisallowsBareApplication(t *testing.T) {
	host := hostFromSource(t, `{}`)

	// "[ f x ]" in this grammar is a two-element list [f, x], not an
	// application of f to x — matching real Nix's list-literal rule.
	v, err := host.EvalExprString(`let f = a: a; in [ f "x" ]`)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}

	list, ok := v.(*VList)
	if !ok {
		t.Fatalf("expected list, got %T", v)
	}

	if len(list.Elems) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(list.Elems))
	}
}

func TestDeepForceRejectsThunkLeak(t *testing.T) {
	host := hostFromSource(t, `{}`)

	v, err := host.EvalExprString(`[ "a" "b" ]`)
	if err != nil {
		t.Fatalf("eval failed: %v", err)
	}

	forced, err := DeepForce(v)
	if err != nil {
		t.Fatalf("DeepForce failed: %v", err)
	}

	list, ok := forced.(*VList)
	if !ok {
		t.Fatalf("expected list, got %T", forced)
	}

	for _, elem := range list.Elems {
		if !elem.done {
			t.Error("DeepForce left a thunk unforced")
		}
	}
}

func hostFromSource(t *testing.T, src string) *Host {
	t.Helper()

	dir := t.TempDir()
	path := writeRules(t, dir, src)

	host, err := NewHost(path)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}

	return host
}

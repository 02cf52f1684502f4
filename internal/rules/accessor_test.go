package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func newAccessor(t *testing.T, dir, src string) *Accessor {
	t.Helper()

	path := writeRules(t, dir, src)

	host, err := NewHost(path)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}

	return NewAccessor(host)
}

func TestAccessorAllFilesSorted(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"z.age" = { publicKeys = [ "age1z" ]; };
		"a.age" = { publicKeys = [ "age1a" ]; };
	}`)

	files, err := a.AllFiles()
	if err != nil {
		t.Fatalf("AllFiles failed: %v", err)
	}

	want := []string{"a.age", "z.age"}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Errorf("got %v, want %v", files, want)
	}
}

func TestAccessorRecipientsResolvesLiterals(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"db.age" = { publicKeys = [ "age1examplekey" "ssh-ed25519 AAAA" ]; };
	}`)

	recipients, err := a.Recipients("db.age")
	if err != nil {
		t.Fatalf("Recipients failed: %v", err)
	}

	if len(recipients) != 2 || recipients[0] != "age1examplekey" || recipients[1] != "ssh-ed25519 AAAA" {
		t.Errorf("got %v", recipients)
	}
}

func TestAccessorRecipientsResolvesSiblingPublicFile(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "ca.pub"), []byte("age1fromfile"), 0o644); err != nil {
		t.Fatalf("write sibling pub file: %v", err)
	}

	a := newAccessor(t, dir, `{
		"db.age" = { publicKeys = [ "ca" ]; };
	}`)

	recipients, err := a.Recipients("db.age")
	if err != nil {
		t.Fatalf("Recipients failed: %v", err)
	}

	if len(recipients) != 1 || recipients[0] != "age1fromfile" {
		t.Errorf("got %v, want [age1fromfile]", recipients)
	}
}

func TestAccessorArmoredDefaultsFalse(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"db.age" = { publicKeys = [ "age1x" ]; };
	}`)

	armored, err := a.Armored("db.age")
	if err != nil {
		t.Fatalf("Armored failed: %v", err)
	}

	if armored {
		t.Error("expected armor to default to false")
	}
}

func TestAccessorDependenciesDefaultEmpty(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"db.age" = { publicKeys = [ "age1x" ]; };
	}`)

	deps, err := a.Dependencies("db.age")
	if err != nil {
		t.Fatalf("Dependencies failed: %v", err)
	}

	if len(deps) != 0 {
		t.Errorf("got %v, want empty", deps)
	}
}

func TestAccessorGeneratorOutputExplicit(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"password.age" = {
			publicKeys = [ "age1x" ];
			generator = ctx: { secret = "fixed-value"; };
		};
	}`)

	out, ok, err := a.GeneratorOutputFor("password.age", GeneratorContext{})
	if err != nil {
		t.Fatalf("GeneratorOutputFor failed: %v", err)
	}

	if !ok {
		t.Fatal("expected ok = true")
	}

	if out.Secret != "fixed-value" {
		t.Errorf("got secret %q, want \"fixed-value\"", out.Secret)
	}
}

func TestAccessorGeneratorOutputUsesDependencyContext(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"derived.age" = {
			publicKeys = [ "age1x" ];
			dependencies = [ "base" ];
			generator = ctx: { secret = ctx.secrets.base; };
		};
	}`)

	out, ok, err := a.GeneratorOutputFor("derived.age", GeneratorContext{
		Secrets: map[string]string{"base": "from-dependency"},
	})
	if err != nil {
		t.Fatalf("GeneratorOutputFor failed: %v", err)
	}

	if !ok || out.Secret != "from-dependency" {
		t.Errorf("got out=%+v ok=%v, want secret \"from-dependency\"", out, ok)
	}
}

func TestAccessorGeneratorOutputAutomaticBySuffix(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"service-password.age" = { publicKeys = [ "age1x" ]; };
	}`)

	out, ok, err := a.GeneratorOutputFor("service-password.age", GeneratorContext{})
	if err != nil {
		t.Fatalf("GeneratorOutputFor failed: %v", err)
	}

	if !ok {
		t.Fatal("expected the automatic password generator to apply")
	}

	if len(out.Secret) != 32 {
		t.Errorf("got secret length %d, want 32", len(out.Secret))
	}
}

func TestAccessorGeneratorOutputNoneWhenUndeclared(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{
		"opaque-blob.age" = { publicKeys = [ "age1x" ]; };
	}`)

	_, ok, err := a.GeneratorOutputFor("opaque-blob.age", GeneratorContext{})
	if err != nil {
		t.Fatalf("GeneratorOutputFor failed: %v", err)
	}

	if ok {
		t.Error("expected no generator to apply for a name with no recognised suffix")
	}
}

func TestEscapeNixString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: `plain`, want: `plain`},
		{in: "a\"b", want: `a\"b`},
		{in: "a\\b", want: `a\\b`},
		{in: "a\nb", want: `a\nb`},
		{in: "a$b", want: `a\$b`},
	}

	for _, tt := range tests {
		if got := EscapeNixString(tt.in); got != tt.want {
			t.Errorf("EscapeNixString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildContextLiteralRoundTrips(t *testing.T) {
	dir := t.TempDir()
	a := newAccessor(t, dir, `{}`)

	literal := BuildContextLiteral(GeneratorContext{
		Secrets: map[string]string{"a": "va\"lue"},
		Publics: map[string]string{"b": "pub"},
	})

	v, err := a.host.EvalExprString(literal)
	if err != nil {
		t.Fatalf("context literal failed to evaluate: %v", err)
	}

	attrs, ok := v.(*VAttrs)
	if !ok {
		t.Fatalf("expected attrset, got %T", v)
	}

	secretsVal, err := attrs.Fields["secrets"].Force()
	if err != nil {
		t.Fatalf("force secrets: %v", err)
	}

	secretsAttrs, ok := secretsVal.(*VAttrs)
	if !ok {
		t.Fatalf("expected secrets to be an attrset, got %T", secretsVal)
	}

	aVal, err := secretsAttrs.Fields["a"].Force()
	if err != nil {
		t.Fatalf("force secrets.a: %v", err)
	}

	s, err := ToString(aVal)
	if err != nil || s != "va\"lue" {
		t.Errorf("got %v, %v, want %q", s, err, "va\"lue")
	}
}

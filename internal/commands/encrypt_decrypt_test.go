package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	fage "filippo.io/age"

	kage "github.com/secretsmith/secretsmith/internal/age"
)

func newEncryptDecryptRuntime(t *testing.T) (*Runtime, string) {
	t.Helper()

	id, err := fage.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "key.txt")

	if err := os.WriteFile(keyPath, []byte(id.String()+"\n"), 0o600); err != nil {
		t.Fatalf("write identity file: %v", err)
	}

	rulesPath := writeTestRules(t, dir, `{
		"db.age" = { publicKeys = [ "`+id.Recipient().String()+`" ]; };
	}`)

	rt := newTestRuntime(t, rulesPath, []string{keyPath})

	return rt, dir
}

func TestEncryptThenDecryptRoundTrips(t *testing.T) {
	rt, dir := newEncryptDecryptRuntime(t)

	inputPath := filepath.Join(dir, "plaintext.txt")
	if err := os.WriteFile(inputPath, []byte("super-secret-value"), 0o600); err != nil {
		t.Fatalf("write plaintext input: %v", err)
	}

	encryptCmd := &EncryptCmd{Name: "db", Input: inputPath}
	if err := encryptCmd.Run(rt); err != nil {
		t.Fatalf("encrypt Run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "db.age")); err != nil {
		t.Fatalf("expected db.age to exist: %v", err)
	}

	outputPath := filepath.Join(dir, "out.txt")
	decryptCmd := &DecryptCmd{Name: "db", Output: outputPath}
	if err := decryptCmd.Run(rt); err != nil {
		t.Fatalf("decrypt Run failed: %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read decrypted output: %v", err)
	}

	if !bytes.Equal(got, []byte("super-secret-value")) {
		t.Errorf("got %q, want %q", got, "super-secret-value")
	}
}

func TestEncryptDryRunWritesNothing(t *testing.T) {
	rt, dir := newEncryptDecryptRuntime(t)
	rt.DryRun = true

	inputPath := filepath.Join(dir, "plaintext.txt")
	if err := os.WriteFile(inputPath, []byte("value"), 0o600); err != nil {
		t.Fatalf("write plaintext input: %v", err)
	}

	encryptCmd := &EncryptCmd{Name: "db", Input: inputPath}
	if err := encryptCmd.Run(rt); err != nil {
		t.Fatalf("encrypt Run failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "db.age")); err == nil {
		t.Error("dry run should not have written db.age")
	}
}

func TestDecryptMissingSecretIsError(t *testing.T) {
	rt, _ := newEncryptDecryptRuntime(t)

	decryptCmd := &DecryptCmd{Name: "db"}
	if err := decryptCmd.Run(rt); err == nil {
		t.Error("expected an error decrypting a secret that was never encrypted")
	}
}

func TestEncryptRejectsInvalidName(t *testing.T) {
	rt, _ := newEncryptDecryptRuntime(t)

	encryptCmd := &EncryptCmd{Name: "../etc/passwd"}
	if err := encryptCmd.Run(rt); err == nil {
		t.Error("expected an error for a secret name containing path separators")
	}
}

func TestEncryptRejectsEmptyInput(t *testing.T) {
	rt, dir := newEncryptDecryptRuntime(t)

	inputPath := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(inputPath, []byte{}, 0o600); err != nil {
		t.Fatalf("write empty input: %v", err)
	}

	encryptCmd := &EncryptCmd{Name: "db", Input: inputPath}
	if err := encryptCmd.Run(rt); err == nil {
		t.Error("expected an error for empty plaintext input")
	}

	if _, err := os.Stat(filepath.Join(dir, "db.age")); err == nil {
		t.Error("empty input should not have produced db.age")
	}
}

func TestEncryptRefusesToOverwriteWithoutForce(t *testing.T) {
	rt, dir := newEncryptDecryptRuntime(t)

	inputPath := filepath.Join(dir, "plaintext.txt")
	if err := os.WriteFile(inputPath, []byte("first-value"), 0o600); err != nil {
		t.Fatalf("write plaintext input: %v", err)
	}

	encryptCmd := &EncryptCmd{Name: "db", Input: inputPath}
	if err := encryptCmd.Run(rt); err != nil {
		t.Fatalf("first encrypt Run failed: %v", err)
	}

	if err := os.WriteFile(inputPath, []byte("second-value"), 0o600); err != nil {
		t.Fatalf("rewrite plaintext input: %v", err)
	}

	if err := encryptCmd.Run(rt); err == nil {
		t.Error("expected an error encrypting over an existing secret without --force")
	}

	forcedCmd := &EncryptCmd{Name: "db", Input: inputPath, Force: true}
	if err := forcedCmd.Run(rt); err != nil {
		t.Fatalf("forced encrypt Run failed: %v", err)
	}

	plaintext, err := kage.DecryptFile(filepath.Join(dir, "db.age"), mustIdentities(t, rt))
	if err != nil {
		t.Fatalf("decrypt forced result: %v", err)
	}

	if string(plaintext) != "second-value" {
		t.Errorf("got %q, want %q", plaintext, "second-value")
	}
}

func mustIdentities(t *testing.T, rt *Runtime) []fage.Identity {
	t.Helper()

	identities, err := rt.Identities()
	if err != nil {
		t.Fatalf("Identities failed: %v", err)
	}

	return identities
}

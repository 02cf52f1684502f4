// Package age wraps filippo.io/age into the encrypt/decrypt/probe pipeline
// described by the secretsmith design: armor auto-detection on the read
// path, opt-in armoring on the write path, and a decryptability probe that
// never writes plaintext to disk.
package age

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	fage "filippo.io/age"
	"filippo.io/age/armor"
)

const armorHeader = "-----BEGIN AGE ENCRYPTED FILE-----"

// EncryptToFile encrypts plaintext to recipients and writes the ciphertext
// atomically to path, optionally ASCII-armoring it.
func EncryptToFile(path string, plaintext []byte, recipients []fage.Recipient, armored bool) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients for %s", path)
	}

	var buf bytes.Buffer

	var dst io.WriteCloser = nopWriteCloser{&buf}

	var armorWriter io.WriteCloser

	if armored {
		armorWriter = armor.NewWriter(&buf)
		dst = armorWriter
	}

	w, err := fage.Encrypt(dst, recipients...)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", path, err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("encrypt %s: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("encrypt %s: %w", path, err)
	}

	if armorWriter != nil {
		if err := armorWriter.Close(); err != nil {
			return fmt.Errorf("encrypt %s: %w", path, err)
		}
	}

	return writeFileAtomic(path, buf.Bytes())
}

// DecryptFile reads path (auto-detecting ASCII armor) and decrypts it with
// the first matching identity.
func DecryptFile(path string, identities []fage.Identity) ([]byte, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("no identities available to decrypt %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	r, err := decryptReader(raw, identities)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", path, err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s: %w", path, err)
	}

	return plaintext, nil
}

// CanDecrypt probes whether path is decryptable with any of identities,
// without ever materialising plaintext outside memory discarded immediately.
func CanDecrypt(path string, identities []fage.Identity) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	r, err := decryptReader(raw, identities)
	if err != nil {
		return fmt.Errorf("decrypt %s: %w", path, err)
	}

	if _, err := io.Copy(io.Discard, r); err != nil {
		return fmt.Errorf("decrypt %s: %w", path, err)
	}

	return nil
}

func decryptReader(raw []byte, identities []fage.Identity) (io.Reader, error) {
	var src io.Reader = bytes.NewReader(raw)

	if bytes.HasPrefix(bytes.TrimLeft(raw, "\r\n\t "), []byte(armorHeader)) {
		src = armor.NewReader(src)
	}

	r, err := fage.Decrypt(src, identities...)
	if err != nil {
		return nil, err
	}

	return r, nil
}

// FilesEqual reports whether a and b exist and are byte-identical.
func FilesEqual(a, b string) bool {
	da, err := os.ReadFile(a)
	if err != nil {
		return false
	}

	db, err := os.ReadFile(b)
	if err != nil {
		return false
	}

	return bytes.Equal(da, db)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}

	tmpName := tmp.Name()

	var renamed bool

	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	renamed = true

	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"sync"
	"syscall"

	kage "github.com/secretsmith/secretsmith/internal/age"
	kerrors "github.com/secretsmith/secretsmith/internal/errors"
	"github.com/secretsmith/secretsmith/internal/memwipe"
	"github.com/secretsmith/secretsmith/internal/rules"
	"github.com/secretsmith/secretsmith/internal/secretname"
)

// EditCmd opens a secret's plaintext in an editor and re-encrypts it if the
// content changed.
type EditCmd struct {
	Name   string `arg:"" help:"secret name to edit"`
	Editor string `help:"editor to use, defaults to the EDITOR environment variable" placeholder:"EDITOR"`
}

// Run executes the edit command.
func (c *EditCmd) Run(rt *Runtime) error {
	name, err := secretname.Parse(c.Name)
	if err != nil {
		return err
	}

	accessor, err := rt.Accessor()
	if err != nil {
		return err
	}

	file := name.SecretFile()
	path := filepath.Join(accessor.RulesDir(), file)

	original, err := c.prepareContent(rt, path)
	if err != nil {
		return err
	}
	defer memwipe.Wipe(original)

	tempFile, cleanupTemp, err := c.createTempFile(original)
	if err != nil {
		return err
	}
	defer cleanupTemp()

	editor, err := c.determineEditor()
	if err != nil {
		return err
	}

	rt.Out.Logger.Debug().Str("editor", editor).Str("secret", file).Msg("launching editor")

	ctx, cancel := c.setupSignalHandling(cleanupTemp)
	defer cancel()

	if err := c.executeEditor(ctx, editor, tempFile.Name()); err != nil {
		return err
	}

	return c.processChanges(rt, accessor, name, tempFile.Name(), original)
}

func (c *EditCmd) prepareContent(rt *Runtime, path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return []byte{}, nil
	}

	identities, err := rt.Identities()
	if err != nil {
		return nil, err
	}

	plaintext, err := kage.DecryptFile(path, identities)
	if err != nil {
		return nil, kerrors.CryptoError("decrypt", path, err)
	}

	return plaintext, nil
}

func (c *EditCmd) createTempFile(content []byte) (*os.File, func(), error) {
	var tmpDir string

	if goruntime.GOOS == "linux" {
		if _, err := os.Stat("/dev/shm"); err == nil {
			tmpDir = "/dev/shm"
		}
	}

	tempFile, err := os.CreateTemp(tmpDir, "secretsmith-edit-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}

	tempFileName := tempFile.Name()

	var cleanupOnce sync.Once

	cleanupTemp := func() {
		cleanupOnce.Do(func() {
			_ = tempFile.Close()

			if removeErr := os.Remove(tempFileName); removeErr != nil && !os.IsNotExist(removeErr) {
				fmt.Fprintf(os.Stderr, "warning: failed to remove temp file %s: %v\n", tempFileName, removeErr)
			}
		})
	}

	if err := tempFile.Chmod(0o600); err != nil {
		cleanupTemp()
		return nil, nil, err
	}

	if _, err := tempFile.Write(content); err != nil {
		cleanupTemp()
		return nil, nil, fmt.Errorf("write content to temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		cleanupTemp()
		return nil, nil, fmt.Errorf("close temp file: %w", err)
	}

	return tempFile, cleanupTemp, nil
}

func (c *EditCmd) setupSignalHandling(cleanupTemp func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	signalDone := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer close(signalDone)
		select {
		case <-sigChan:
			cleanupTemp()
			cancel()
		case <-ctx.Done():
		}
	}()

	cleanup := func() {
		signal.Stop(sigChan)
		cancel()
		<-signalDone
	}

	return ctx, cleanup
}

func (c *EditCmd) determineEditor() (string, error) {
	editor := c.Editor
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}

	if editor == "" {
		return "", kerrors.ConfigError("no editor specified", "set EDITOR environment variable or use --editor flag")
	}

	return editor, nil
}

func (c *EditCmd) executeEditor(ctx context.Context, editor, tempFileName string) error {
	execCmd := exec.CommandContext(ctx, editor, tempFileName)
	execCmd.Stdin = os.Stdin
	execCmd.Stdout = os.Stdout
	execCmd.Stderr = os.Stderr

	if err := execCmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("editor interrupted")
		}

		return fmt.Errorf("editor failed: %w", err)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("operation cancelled")
	}

	return nil
}

// processChanges compares the edited content against the original plaintext
// byte-for-byte (not file mtime, which a careful editor can leave untouched
// or a careless one can bump with no real change) and only re-encrypts when
// the content actually differs.
func (c *EditCmd) processChanges(rt *Runtime, accessor *rules.Accessor, name secretname.Name, tempFileName string, original []byte) error {
	modified, err := os.ReadFile(tempFileName)
	if err != nil {
		return fmt.Errorf("read modified content: %w", err)
	}
	defer memwipe.Wipe(modified)

	if bytes.Equal(original, modified) {
		rt.Out.Logger.Info().Str("secret", name.SecretFile()).Msg("no changes detected")
		return nil
	}

	file := name.SecretFile()

	rawRecipients, err := accessor.Recipients(file)
	if err != nil {
		return err
	}

	recipients, err := kage.ParseRecipients(rawRecipients)
	if err != nil {
		return kerrors.CryptoError("parse recipients for", file, err)
	}

	armored, err := accessor.Armored(file)
	if err != nil {
		return err
	}

	path := filepath.Join(accessor.RulesDir(), file)

	if rt.DryRun {
		rt.Out.Logger.Info().Str("secret", file).Msg("would save changes (dry run)")
		return nil
	}

	if err := kage.EncryptToFile(path, modified, recipients, armored); err != nil {
		return kerrors.CryptoError("encrypt", path, err)
	}

	rt.Out.Logger.Info().Str("secret", file).Msg("updated")

	return nil
}

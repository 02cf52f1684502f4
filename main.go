// Package main provides the smith CLI for managing age-encrypted secrets
// declared in a rules file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/secretsmith/secretsmith/internal/commands"
	"github.com/secretsmith/secretsmith/internal/output"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI is the top-level command-line interface.
type CLI struct {
	Rules              string   `help:"Path to the rules file" default:"./secrets.nix" type:"path" env:"RULES"`
	Identity           []string `short:"i" help:"Identity file to use for decryption (repeatable)" type:"path"`
	NoSystemIdentities bool     `help:"Do not fall back to default identity discovery"`
	Verbose            bool     `short:"v" help:"Verbose output"`
	Quiet              bool     `short:"q" help:"Suppress non-error output"`
	DryRun             bool     `help:"Show what would happen without writing any file"`

	Edit        commands.EditCmd        `cmd:"" help:"Edit a secret's plaintext in an editor"`
	Encrypt     commands.EncryptCmd     `cmd:"" help:"Encrypt plaintext into a secret"`
	Decrypt     commands.DecryptCmd     `cmd:"" help:"Decrypt a secret"`
	Rekey       commands.RekeyCmd       `cmd:"" help:"Re-encrypt secrets against the current rules"`
	Generate    commands.GenerateCmd    `cmd:"" help:"Run declared or automatic generators"`
	List        commands.ListCmd        `cmd:"" help:"List declared secrets"`
	Check       commands.CheckCmd       `cmd:"" help:"Verify secrets are decryptable"`
	Completions commands.CompletionsCmd `cmd:"" help:"Generate shell completions"`
	Version     kong.VersionFlag        `help:"Show version"`
}

func main() {
	var cli CLI

	kctx := kong.Parse(&cli,
		kong.Name("smith"),
		kong.Description("Manage age-encrypted secrets declared in a rules file"),
		kong.Vars{"version": fmt.Sprintf("%s (%s, built %s)", version, commit, date)},
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	rulesPath := cli.Rules
	if abs, err := filepath.Abs(rulesPath); err == nil {
		rulesPath = abs
	}

	out := output.New(cli.Verbose, cli.Quiet)
	rt := commands.NewRuntime(rulesPath, cli.Identity, cli.NoSystemIdentities, cli.DryRun, out)

	exitCode := func() int {
		defer rt.Cleanup()

		if err := kctx.Run(rt); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		return 0
	}()

	os.Exit(exitCode)
}

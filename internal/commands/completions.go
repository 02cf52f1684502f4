package commands

import (
	"fmt"
	"os"
	"text/template"
)

// CompletionsCmd emits a static shell-completion script. There is no
// ecosystem library in the retrieved corpus that generates kong completion
// scripts, so a fixed subcommand list is rendered directly against a
// handwritten template instead. Only subcommand names are completed; flags
// are not.
type CompletionsCmd struct {
	Shell string `arg:"" enum:"bash,zsh,fish" help:"shell to generate completions for"`
}

var completionSubcommands = []string{"edit", "encrypt", "decrypt", "rekey", "generate", "list", "check", "completions"}

var completionTemplates = map[string]string{
	"bash": `_smith_completions() {
  local cur subcommands
  cur="${COMP_WORDS[COMP_CWORD]}"
  subcommands="{{range .}}{{.}} {{end}}"
  COMPREPLY=( $(compgen -W "${subcommands}" -- "${cur}") )
}
complete -F _smith_completions smith
`,
	"zsh": `#compdef smith
_smith() {
  local -a subcommands
  subcommands=({{range .}}'{{.}}' {{end}})
  _describe 'command' subcommands
}
_smith
`,
	"fish": `{{range .}}complete -c smith -n "__fish_use_subcommand" -a {{.}}
{{end}}`,
}

// Run executes the completions command.
func (c *CompletionsCmd) Run(rt *Runtime) error {
	tmplSrc, ok := completionTemplates[c.Shell]
	if !ok {
		return fmt.Errorf("unsupported shell %q", c.Shell)
	}

	tmpl, err := template.New(c.Shell).Parse(tmplSrc)
	if err != nil {
		return fmt.Errorf("render completions: %w", err)
	}

	return tmpl.Execute(os.Stdout, completionSubcommands)
}

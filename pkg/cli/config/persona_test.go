package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
)

func writePersonaFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.toml")
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600)).Required()
	return path
}

func TestPersonaLoad(t *testing.T) {
	var p Persona
	p.path = writePersonaFile(t, `
name = "Journaly"
system_prompt = "You are a warm journaling companion."
`)

	opts, err := p.Load()
	gt.NoError(t, err).Required()
	gt.Array(t, opts).Length(2)
	gt.Value(t, p.Name).Equal("Journaly")
	gt.Value(t, p.SystemPrompt).Equal("You are a warm journaling companion.")
}

func TestPersonaLoadNoPath(t *testing.T) {
	var p Persona

	opts, err := p.Load()
	gt.NoError(t, err)
	gt.Array(t, opts).Length(0)
}

func TestPersonaLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"missing name":   `system_prompt = "prompt only"`,
		"missing prompt": `name = "NameOnly"`,
		"broken toml":    `name = `,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			var p Persona
			p.path = writePersonaFile(t, content)

			_, err := p.Load()
			gt.Error(t, err)
		})
	}
}

func TestPersonaLoadMissingFile(t *testing.T) {
	var p Persona
	p.path = filepath.Join(t.TempDir(), "does-not-exist.toml")

	_, err := p.Load()
	gt.Error(t, err)
}

package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/reverie-dev/reverie/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Persona holds the assistant persona loaded from a TOML file
type Persona struct {
	path string

	Name         string `toml:"name"`
	SystemPrompt string `toml:"system_prompt"`
}

// Flags returns CLI flags for persona configuration
func (p *Persona) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "persona-file",
			Usage:       "TOML file with assistant persona (name, system_prompt)",
			Sources:     cli.EnvVars("REVERIE_PERSONA_FILE"),
			Destination: &p.path,
		},
	}
}

// Validate checks the loaded persona
func (p *Persona) Validate() error {
	if p.Name == "" {
		return goerr.New("persona name is required")
	}
	if p.SystemPrompt == "" {
		return goerr.New("persona system_prompt is required")
	}
	return nil
}

// Load reads and validates the persona file. Without a configured path
// it returns no options and the built-in defaults apply.
func (p *Persona) Load() ([]usecase.Option, error) {
	if p.path == "" {
		return nil, nil
	}

	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read persona file", goerr.V("path", p.path))
	}

	if err := toml.Unmarshal(data, p); err != nil {
		return nil, goerr.Wrap(err, "failed to parse TOML persona", goerr.V("path", p.path))
	}

	if err := p.Validate(); err != nil {
		return nil, goerr.Wrap(err, "persona validation failed", goerr.V("path", p.path))
	}

	return []usecase.Option{
		usecase.WithAssistantName(p.Name),
		usecase.WithSystemPrompt(p.SystemPrompt),
	}, nil
}

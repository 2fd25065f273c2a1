package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/service/backend"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Backend holds CLI flags for the memory backend connection
type Backend struct {
	mode        string
	baseURL     string
	apiKey      string
	assistantID string
	timeout     time.Duration
}

// Flags returns CLI flags for memory backend configuration
func (b *Backend) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend-mode",
			Usage:       "Memory backend mode (remote or memory)",
			Value:       "remote",
			Sources:     cli.EnvVars("REVERIE_BACKEND_MODE"),
			Destination: &b.mode,
		},
		&cli.StringFlag{
			Name:        "backend-url",
			Usage:       "Memory backend base URL (required for remote mode)",
			Sources:     cli.EnvVars("REVERIE_BACKEND_URL"),
			Destination: &b.baseURL,
		},
		&cli.StringFlag{
			Name:        "backend-api-key",
			Usage:       "Memory backend API key",
			Sources:     cli.EnvVars("REVERIE_BACKEND_API_KEY"),
			Destination: &b.apiKey,
		},
		&cli.StringFlag{
			Name:        "backend-assistant-id",
			Usage:       "Previously issued assistant ID to reuse (verified at startup)",
			Sources:     cli.EnvVars("REVERIE_BACKEND_ASSISTANT_ID"),
			Destination: &b.assistantID,
		},
		&cli.DurationFlag{
			Name:        "backend-timeout",
			Usage:       "Memory backend request timeout",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("REVERIE_BACKEND_TIMEOUT"),
			Destination: &b.timeout,
		},
	}
}

// Configure builds the memory backend. In memory mode, llm optionally
// enables model-backed reply generation in the double.
func (b *Backend) Configure(llm gollem.LLMClient) (interfaces.MemoryBackend, error) {
	switch b.mode {
	case "remote":
		if b.baseURL == "" {
			return nil, goerr.New("backend-url is required for remote mode")
		}
		opts := []backend.ClientOption{
			backend.WithTimeout(b.timeout),
		}
		if b.assistantID != "" {
			opts = append(opts, backend.WithAssistantID(types.AssistantID(b.assistantID)))
		}
		logging.Default().Info("Using remote memory backend", "url", b.baseURL)
		return backend.NewClient(b.baseURL, b.apiKey, opts...), nil

	case "memory":
		opts := []backend.InMemoryOption{}
		if b.assistantID != "" {
			opts = append(opts, backend.WithConfiguredAssistantID(types.AssistantID(b.assistantID)))
		}
		if llm != nil {
			opts = append(opts, backend.WithLLM(llm))
			logging.Default().Info("Using in-memory backend with LLM pass-through")
		} else {
			logging.Default().Info("Using in-memory backend (deterministic replies)")
		}
		return backend.NewInMemory(opts...), nil

	default:
		return nil, goerr.New("invalid backend mode", goerr.V("mode", b.mode))
	}
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/reverie-dev/reverie/pkg/cli/config"
	httpctrl "github.com/reverie-dev/reverie/pkg/controller/http"
	"github.com/reverie-dev/reverie/pkg/usecase"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var repoCfg config.Repository
	var backendCfg config.Backend
	var geminiCfg config.Gemini
	var personaCfg config.Persona

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("REVERIE_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, backendCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, personaCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			llm, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize LLM client")
			}

			memBackend, err := backendCfg.Configure(llm)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize memory backend")
			}

			ucOpts, err := personaCfg.Load()
			if err != nil {
				return goerr.Wrap(err, "failed to load persona")
			}

			uc := usecase.New(repo, memBackend, ucOpts...)

			// Resolve the assistant once at startup so the first turn
			// never races initialization
			assistantID, err := memBackend.EnsureAssistant(ctx, uc.AssistantName(), uc.SystemPrompt())
			if err != nil {
				return goerr.Wrap(err, "failed to initialize assistant")
			}
			logger.Info("Assistant initialized", "assistantID", assistantID)

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- goerr.Wrap(err, "HTTP server failed")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-sigCtx.Done():
				logger.Info("Shutting down HTTP server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown HTTP server")
				}
				return nil
			}
		},
	}
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/reverie-dev/reverie/pkg/cli/config"
	"github.com/reverie-dev/reverie/pkg/repository/memory"
	"github.com/reverie-dev/reverie/pkg/usecase"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
)

// cmdChat runs a local REPL against the in-memory stack, useful for
// prompt and persona iteration without a server or remote backend
func cmdChat() *cli.Command {
	var userID string
	var backendCfg config.Backend
	var geminiCfg config.Gemini
	var personaCfg config.Persona

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Usage:       "User ID for the local session",
			Value:       "local",
			Sources:     cli.EnvVars("REVERIE_CHAT_USER"),
			Destination: &userID,
		},
	}
	flags = append(flags, backendCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, personaCfg.Flags()...)

	return &cli.Command{
		Name:    "chat",
		Aliases: []string{"c"},
		Usage:   "Interactive journaling session on a local in-memory stack",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

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

			repo := memory.New()
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			uc := usecase.New(repo, memBackend, ucOpts...)

			if _, err := memBackend.EnsureAssistant(ctx, uc.AssistantName(), uc.SystemPrompt()); err != nil {
				return goerr.Wrap(err, "failed to initialize assistant")
			}

			conv, err := uc.CreateConversation(ctx, userID, "local session")
			if err != nil {
				return goerr.Wrap(err, "failed to create conversation")
			}

			greeting, err := uc.StartConversation(ctx, userID, conv.ID)
			if err != nil {
				return goerr.Wrap(err, "failed to start conversation")
			}
			fmt.Printf("assistant> %s\n", greeting.Content)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("you> ")
				if !scanner.Scan() {
					break
				}
				input := strings.TrimSpace(scanner.Text())
				if input == "" {
					continue
				}
				if input == "/quit" || input == "/exit" {
					break
				}

				resp, err := uc.ProcessMessage(ctx, userID, conv.ID, input)
				if err != nil {
					logger.Error("turn failed", "error", err)
					continue
				}

				fmt.Printf("assistant> %s\n", resp.Content)
				if resp.Planning != nil {
					logger.Debug("turn planning",
						"strategy", resp.Planning.ResponseStrategy,
						"memories", len(resp.Planning.ExtractedMemories),
						"retrieved", len(resp.Planning.RetrievedContext))
				}
				if resp.ShouldTerminate {
					fmt.Printf("(session closed: %s)\n", resp.TerminationReason)
					break
				}
			}

			return scanner.Err()
		},
	}
}

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"anchorsync/internal/chat"
	"anchorsync/src/logger"
)

func newChatCmd(a *app) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the configured language model",
		Long: `Sends a message and prints the reply. Without a message, reads one message
per line from stdin until EOF or "exit".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, cleanup, err := a.chatService(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if session == "" {
				session = uuid.NewString()
			}
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				reply, err := svc.Ask(ctx, session, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
				return nil
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(out, headColor.Sprint("> "))
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "exit" || line == "quit" {
					break
				}
				if line != "" {
					reply, err := svc.Ask(ctx, session, line)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, reply)
				}
				fmt.Fprint(out, headColor.Sprint("> "))
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Chat session ID (default: new session)")
	return cmd
}

// chatService builds the chat service; a missing API key yields a service that answers with the key notice
func (a *app) chatService(cmd *cobra.Command) (*chat.Service, func(), error) {
	ctx := cmd.Context()
	cfg := a.cfg.Chat
	cleanup := func() {}

	m, err := chat.NewModel(ctx, cfg)
	if err != nil {
		if !errors.Is(err, chat.ErrMissingAPIKey) {
			return nil, nil, err
		}
		logger.Warn().Str("provider", cfg.Provider).Msg("no API key configured")
		m = nil
	}

	var transcript chat.Transcript
	if cfg.Transcript == "redis" {
		client, err := openRedis(ctx, a.cfg.Repository)
		if err != nil {
			return nil, nil, err
		}
		transcript = chat.NewRedisTranscript(client, cfg.TranscriptTTL, cfg.MaxTurns)
		cleanup = func() { client.Close() }
	} else {
		transcript = chat.NewMemoryTranscript(cfg.TranscriptTTL, cfg.MaxTurns)
	}

	return chat.NewService(m, transcript, cfg.Provider), cleanup, nil
}

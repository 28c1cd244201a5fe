package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/HendryAvila/agentrelay/internal/config"
	"github.com/HendryAvila/agentrelay/internal/groupchat"
	"github.com/HendryAvila/agentrelay/internal/logging"
	"github.com/HendryAvila/agentrelay/internal/rediscli"
	"github.com/spf13/cobra"
)

func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <ref>",
		Short: "Print group chat events as JSON lines",
		Long: `Subscribe to a Redis group chat and print every event as one JSON
object per line until interrupted. The ref is the external_ref reported
by chat_session_create.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return errors.New("redis.url is not configured")
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := rediscli.Dial(ctx, cfg.Redis.URL)
			if err != nil {
				return err
			}
			defer client.Close()

			out := json.NewEncoder(cmd.OutOrStdout())
			events := make(chan groupchat.Event, 16)
			backend := groupchat.New(client, cfg.GroupChat.ChannelPrefix, logger)
			if err := backend.Subscribe(ctx, args[0], func(ev groupchat.Event) {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			}); err != nil {
				return fmt.Errorf("subscribe %s: %w", args[0], err)
			}
			logger.Info().Str("channel", backend.Channel(args[0])).Msg("watching")

			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					if err := out.Encode(ev); err != nil {
						return err
					}
					if ev.Type == groupchat.EventClosed {
						return nil
					}
				}
			}
		},
	}
}

package main

import (
	"fmt"
	"io"

	"github.com/HendryAvila/agentrelay/internal/config"
	"github.com/HendryAvila/agentrelay/internal/memory"
	"github.com/spf13/cobra"
)

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the message archive and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), cfg)
		},
	}
}

func printStatus(w io.Writer, cfg *config.Config) error {
	fmt.Fprintf(w, "Data dir:   %s\n", cfg.DataDir)
	fmt.Fprintf(w, "Mirror:     %s\n", cfg.Mirror.Backend)
	if cfg.GroupChat.Enabled {
		fmt.Fprintf(w, "Group chat: enabled (prefix %q)\n", cfg.GroupChat.ChannelPrefix)
	} else {
		fmt.Fprintln(w, "Group chat: disabled")
	}
	if cfg.Metrics.Addr != "" {
		fmt.Fprintf(w, "Metrics:    %s\n", cfg.Metrics.Addr)
	}

	if cfg.Mirror.Backend != config.MirrorSQLite {
		fmt.Fprintln(w, "\nNo local archive: the mirror backend is not sqlite.")
		return nil
	}

	store, err := memory.New(memory.Config{
		DataDir:          cfg.DataDir,
		MaxBodyLength:    cfg.Mirror.MaxBodyLength,
		MaxSearchResults: cfg.Mirror.MaxSearchResults,
	})
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer store.Close()

	st, err := store.Stats()
	if err != nil {
		return fmt.Errorf("reading archive stats: %w", err)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Archived messages: %d\n", st.ArchivedMessages)
	fmt.Fprintf(w, "Sessions:          %d\n", st.Sessions)
	fmt.Fprintf(w, "Agents:            %d\n", st.Agents)
	if len(st.RecentSessions) > 0 {
		fmt.Fprintln(w, "\nRecent sessions:")
		for _, id := range st.RecentSessions {
			fmt.Fprintf(w, "  - %s\n", id)
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/stagehand-relay/internal/api"
	"github.com/dgnsrekt/stagehand-relay/internal/probe"
)

func newAPIClient(baseURL string) *api.HTTPClient {
	return api.NewClient(
		baseURL,
		cfg.Client.RatePerSecond,
		cfg.Client.Timeout,
		cfg.Client.RetryDelay,
		cfg.Client.RetryCount,
		logger.Named("client"),
	)
}

func ctlCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running relay",
		Long: `Send control commands to a running relay and query its state.

Examples:
  stagehand ctl play
  stagehand ctl next --url http://media-pc:7168
  stagehand ctl current`,
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", "", "relay base URL (overrides client.base_url)")

	relayURL := func() string {
		if baseURL != "" {
			return baseURL
		}
		return cfg.Client.BaseURL
	}

	commands := []struct {
		use, short string
		send       func(*api.HTTPClient, context.Context) (probe.CommandResult, error)
	}{
		{"play", "Resume playback", (*api.HTTPClient).Play},
		{"pause", "Pause playback", (*api.HTTPClient).Pause},
		{"next", "Skip to the next track", (*api.HTTPClient).Next},
		{"previous", "Return to the previous track", (*api.HTTPClient).Previous},
	}
	for _, c := range commands {
		cmd.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				result, err := c.send(newAPIClient(relayURL()), cmd.Context())
				if err != nil && !errors.Is(err, api.ErrCommandFailed) {
					return err
				}
				fmt.Println(result.Message)
				if err != nil {
					logger.Debug("command failed", zap.String("command", c.use), zap.Error(err))
					return err
				}
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the playback status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := newAPIClient(relayURL()).Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Print the most recently broadcast media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := newAPIClient(relayURL()).Current(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(formatUpdate(u))
			return nil
		},
	})

	return cmd
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/stagehand-relay/internal/api"
	"github.com/dgnsrekt/stagehand-relay/internal/relay"
	"github.com/dgnsrekt/stagehand-relay/internal/stream"
)

func watchCmd() *cobra.Command {
	var (
		baseURL string
		format  string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a relay's media updates",
		Long: `Connect to a relay's WebSocket stream and print every update.

Examples:
  stagehand watch
  stagehand watch --format protobuf --url http://media-pc:7168`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f stream.Format
			switch strings.ToLower(format) {
			case "json":
				f = stream.FormatJSON
			case "protobuf", "proto":
				f = stream.FormatProtobuf
			default:
				return fmt.Errorf("unknown format %q (valid: json, protobuf)", format)
			}

			if baseURL == "" {
				baseURL = cfg.Client.BaseURL
			}

			encoder, err := stream.NewEncoder()
			if err != nil {
				return err
			}
			defer encoder.Close()

			watcher, err := api.NewWatcher(baseURL, f, encoder, logger.Named("watch"))
			if err != nil {
				return err
			}

			return watcher.Watch(cmd.Context(), func(u relay.Update) {
				fmt.Println(formatUpdate(u))
			})
		},
	}

	cmd.Flags().StringVar(&baseURL, "url", "", "relay base URL (overrides client.base_url)")
	cmd.Flags().StringVar(&format, "format", "json", "stream encoding: json or protobuf")

	return cmd
}

func formatUpdate(u relay.Update) string {
	s := u.Snapshot
	line := fmt.Sprintf("[%d] %-7s %s - %s", u.Seq, s.Status, s.DisplayTitle(), s.DisplayArtist())
	if s.Album != "" {
		line += fmt.Sprintf(" (%s)", s.Album)
	}
	if s.HasArtwork {
		line += fmt.Sprintf(" [art %d bytes]", len(s.Artwork))
	}
	return line
}

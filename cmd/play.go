package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/whistle/internal/play"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play back the recorded whistle",
	Long: `Play the last recorded whistle with ffplay, mpv or VLC, whichever
is found first (player.preferred in the config is tried before the others).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.ArtifactPath()
		fmt.Printf("Playing whistle: %s\n", path)

		if err := play.New(cfg.Player).PlayAndWait(path); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show resolved paths and encoder settings",
	Long:  `Display where the whistle is written, how it is encoded and where submissions go.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("=== FILE PATHS ===\n")
		fmt.Printf("artifact: %s\n", cfg.ArtifactPath())
		fmt.Printf("database: %s\n", cfg.Storage.Database)
		if cfg.Storage.Minio.Enabled {
			fmt.Printf("objects: minio://%s/%s\n", cfg.Storage.Minio.Endpoint, cfg.Storage.Minio.Bucket)
		} else {
			fmt.Printf("objects: %s\n", cfg.ObjectsDir())
		}
		if cfg.Log.File != "" {
			fmt.Printf("log: %s\n", cfg.Log.File)
		}

		fmt.Printf("\n[Audio]\n")
		fmt.Printf("sample_rate: %d\n", cfg.Audio.SampleRate)
		fmt.Printf("channels: %d\n", cfg.Audio.Channels)
		fmt.Printf("codec: %s\n", cfg.Audio.Codec)
		fmt.Printf("quality: %s (%s)\n", cfg.Audio.Quality, cfg.Bitrate())

		fmt.Printf("\n[Recorder]\n")
		fmt.Printf("input: %s %s\n", cfg.Recorder.InputFormat, cfg.Recorder.InputDevice)
		fmt.Printf("permission_timeout: %s\n", cfg.Recorder.PermissionTimeout)
		fmt.Printf("stop_timeout: %s\n", cfg.Recorder.StopTimeout)

		fmt.Printf("\n[Submit]\n")
		fmt.Printf("timeout: %s\n", cfg.Submit.Timeout)

		return nil
	},
}

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/whistle/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"sources"},
	Short:   "List available capture devices",
	Long:    `List the capture devices ffmpeg reports for the configured input format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, err := audio.NewBackend(cfg).ListSources()
		if err != nil {
			return fmt.Errorf("failed to list %s devices: %w", cfg.Recorder.InputFormat, err)
		}

		title.Printf("Capture devices (%s, %s)\n", cfg.Recorder.InputFormat, runtime.GOOS)
		if len(sources) == 0 {
			yellow.Println("No devices reported; the default device will be used")
		}
		for i, source := range sources {
			marker := " "
			if source == cfg.Recorder.InputDevice {
				marker = "*"
			}
			fmt.Printf(" %s %d. %s\n", marker, i+1, source)
		}

		fmt.Printf("\nSet recorder.input_device in the config to choose one (current: %s)\n", cfg.Recorder.InputDevice)
		return nil
	},
}

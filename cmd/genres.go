package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/whistle/internal/genre"
)

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List the genres a whistle can be tagged with",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for i, g := range genre.All() {
			fmt.Printf("%2d. %s\n", i, g)
		}
	},
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/whistle/internal/store"
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions",
	Short: "List submitted whistles, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := store.Open(cfg.Storage.Database)
		if err != nil {
			return fmt.Errorf("failed to open submission index: %w", err)
		}
		defer db.Close()

		records, err := db.List(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("failed to list submissions: %w", err)
		}
		if len(records) == 0 {
			yellow.Println("No whistles submitted yet")
			return nil
		}

		for _, r := range records {
			title.Printf("%s  %s\n", r.CreatedAt.Local().Format(time.DateTime), r.Genre)
			fmt.Printf("  id: %s\n  object: %s\n", r.ID, r.ObjectKey)
			if r.Comments != "" {
				fmt.Printf("  comments: %s\n", r.Comments)
			}
		}
		return nil
	},
}

func init() {
	submissionsCmd.Flags().IntP("limit", "n", 20, "maximum number of submissions to show (0 for all)")
}

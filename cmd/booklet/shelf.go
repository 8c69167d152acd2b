package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerbaras/booklet/pkg/api"
)

var shelfCmd = &cobra.Command{
	Use:   "shelf",
	Short: "List owned booklets",
	Long:  "List the ids of every booklet the configured credential owns",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		cobra.CheckErr(err)

		client := api.NewClient(api.DefaultBaseURL, cfg.Cookie, newLogger())
		ids := client.ListShelf(cmd.Context())
		if len(ids) == 0 {
			fmt.Println("No booklets found.")
			return
		}

		excluded := make(map[string]bool, len(cfg.Exclude))
		for _, id := range cfg.Exclude {
			excluded[id] = true
		}
		for _, id := range ids {
			if excluded[id] {
				fmt.Printf("%s (excluded)\n", id)
			} else {
				fmt.Println(id)
			}
		}
	},
}

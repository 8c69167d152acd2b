package cmd

import (
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/kerbaras/booklet/pkg/api"
	"github.com/kerbaras/booklet/pkg/app"
	"github.com/kerbaras/booklet/pkg/data"
	"github.com/kerbaras/booklet/pkg/services"
)

var downloadCmd = &cobra.Command{
	Use:   "download [booklet-id]",
	Short: "Download booklets",
	Long:  "Download the configured booklet, every owned booklet, or the one given as an argument",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		cobra.CheckErr(err)

		if len(args) == 1 {
			cfg.BookID = args[0]
			cfg.DownloadAll = false
		}
		if cmd.Flags().Changed("output") {
			cfg.OutputDir, _ = cmd.Flags().GetString("output")
		}
		if cmd.Flags().Changed("workers") {
			cfg.MaxWorkers, _ = cmd.Flags().GetInt("workers")
		}
		if cmd.Flags().Changed("delay-ms") {
			cfg.RequestDelayMS, _ = cmd.Flags().GetInt("delay-ms")
		}
		if multi, _ := cmd.Flags().GetBool("multi"); multi {
			cfg.SingleFile = false
		}
		if epub, _ := cmd.Flags().GetBool("epub"); epub {
			cfg.EPUB = true
		}
		if noImages, _ := cmd.Flags().GetBool("no-images"); noImages {
			cfg.LocalizeImages = false
		}
		cobra.CheckErr(cfg.Validate())

		plain, _ := cmd.Flags().GetBool("plain")
		logger := newLogger()
		if !plain {
			// Keep log lines off the progress display.
			logger = log.New(io.Discard, "", 0)
		}

		client := api.NewClient(api.DefaultBaseURL, cfg.Cookie, logger)

		var repo *data.Repository
		if cfg.HistoryDB != "" {
			repo, err = data.Open(cfg.HistoryDB)
			if err != nil {
				logger.Printf("WARN: history disabled: %v", err)
				repo = nil
			} else {
				defer repo.Close()
			}
		}

		proc := services.NewProcessor(cfg, client, repo, logger)

		var summaries []*services.RunSummary
		if plain {
			summaries = proc.RunAll(cmd.Context())
			proc.Close()
		} else {
			summaries, err = app.New(proc).Run(cmd.Context())
			cobra.CheckErr(err)
		}

		if len(summaries) == 0 {
			fmt.Println("Nothing downloaded.")
			return
		}
		for _, s := range summaries {
			fmt.Printf("✅ %s: %d/%d chapters, %d images\n   %s\n", s.Title, s.Succeeded, s.Chapters, s.Images, s.OutputPath)
			if s.EPUBPath != "" {
				fmt.Printf("📖 %s\n", s.EPUBPath)
			}
		}
	},
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
	downloadCmd.Flags().IntP("workers", "w", 0, "concurrent chapter fetches (overrides config)")
	downloadCmd.Flags().Int("delay-ms", -1, "pause after each content request, in milliseconds")
	downloadCmd.Flags().Bool("multi", false, "write one file per chapter instead of a merged file")
	downloadCmd.Flags().Bool("epub", false, "also export each booklet as EPUB")
	downloadCmd.Flags().Bool("no-images", false, "skip image localization")
	downloadCmd.Flags().Bool("plain", false, "log lines instead of the progress display")
}

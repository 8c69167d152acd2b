package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/kerbaras/booklet/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "booklet",
	Short: "Download online booklets as markdown",
	Long:  "Fetch the chapters of purchased booklets, assemble them into markdown or EPUB, and localize embedded images",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the config file")

	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(shelfCmd)
	rootCmd.AddCommand(historyCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "[booklet] ", log.LstdFlags)
}

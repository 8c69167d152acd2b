package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kerbaras/booklet/pkg/data"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past runs",
	Long:  "Show previously downloaded booklets recorded in the history database",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		cobra.CheckErr(err)
		if cfg.HistoryDB == "" {
			cobra.CheckErr(fmt.Errorf("history is disabled: set history_db in the config file"))
		}

		repo, err := data.Open(cfg.HistoryDB)
		cobra.CheckErr(err)
		defer repo.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := repo.ListRuns(limit)
		cobra.CheckErr(err)

		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FINISHED\tBOOKLET\tCHAPTERS\tIMAGES\tOUTPUT")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
				r.FinishedAt.Local().Format("2006-01-02 15:04"),
				r.Title, r.Succeeded, r.Chapters, r.Images, r.OutputPath)
		}
		w.Flush()
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to show")
}

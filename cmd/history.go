package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"valetbench/internal/cli"
	"valetbench/internal/storage"
	"valetbench/internal/tui/styles"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.List(limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println(styles.Subtle.Render("No runs recorded yet."))
			return nil
		}

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(styles.ColorBorder)).
			Headers("ID", "WHEN", "STRATEGY", "LEVELS", "FILES", "MB", "DURATION", "STATUS").
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return styles.Header
				}
				if col == 7 && row >= 0 && row < len(runs) && runs[row].Error != "" {
					return styles.Error.Padding(0, 1)
				}
				return styles.Cell
			})
		for _, r := range runs {
			strategy := r.Strategy
			if r.Transfer != "" {
				strategy += "/" + r.Transfer
			}
			status := "ok"
			if r.Error != "" {
				status = "aborted"
			}
			t.Row(
				shortID(r.ID),
				r.Timestamp.Local().Format("2006-01-02 15:04"),
				strategy,
				joinLevels(r.Levels),
				strconv.Itoa(r.Files),
				fmt.Sprintf("%.2f", r.TotalMB),
				r.Duration.Round(time.Second).String(),
				status,
			)
		}
		fmt.Println(t.Render())
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run by id or id prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		r, err := st.Get(args[0])
		if err != nil {
			return err
		}

		fmt.Println(styles.Title.Render("RUN " + r.ID))
		fmt.Printf("When       : %s\n", r.Timestamp.Local().Format(time.RFC1123))
		fmt.Printf("Target     : %s\n", r.BaseURL)
		if r.Transfer != "" {
			fmt.Printf("Strategy   : %s (%s)\n", r.Strategy, r.Transfer)
		} else {
			fmt.Printf("Strategy   : %s\n", r.Strategy)
		}
		fmt.Printf("Levels     : %s\n", joinLevels(r.Levels))
		fmt.Printf("Files      : %d (%.2f MB per level)\n", r.Files, r.TotalMB)
		fmt.Printf("Duration   : %s\n", r.Duration.Round(time.Millisecond))
		fmt.Printf("Results    : %s\n", r.ResultsPath)
		if r.Error != "" {
			fmt.Printf("%s %s\n", styles.Error.Render("Aborted    :"), r.Error)
		}
		fmt.Println(cli.SummaryTable(r.Summaries))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of runs to list (0 = all)")
	historyCmd.PersistentFlags().String("history-db", "", "Run history database (default $HOME/.valetbench/history.db)")
	historyCmd.AddCommand(historyShowCmd)
}

func openHistory(cmd *cobra.Command) (*storage.Store, error) {
	path, _ := cmd.Flags().GetString("history-db")
	if path == "" {
		path = viper.GetString("history_db")
	}
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.Open(path)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func joinLevels(levels []int) string {
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ",")
}

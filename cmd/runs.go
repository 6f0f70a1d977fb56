package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List batch runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		user, _ := cmd.Flags().GetInt64("user")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		logs, err := st.ListRunLogs(ctx, store.RunLogFilter{
			UserID: user,
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(logs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, logs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one batch run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Wrapf(err, "invalid run id %q", args[0])
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		log, err := st.GetRunLog(ctx, id)
		if err != nil {
			return err
		}
		printRunLog(os.Stdout, log)
		return nil
	},
}

func formatRunsList(w io.Writer, logs []model.RunLog) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTOKENS\tUPDATED\tMESSAGE")
	for _, l := range logs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			l.ID, l.Status, l.TokensUsed, l.UpdatedAt.Local().Format(time.DateTime), truncate(l.Message, 60))
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	runsCmd.Flags().Int64("user", 0, "user id")
	runsCmd.Flags().String("status", "", "filter by status (new, process, ok, error)")
	runsCmd.Flags().Int("limit", 20, "maximum rows")
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

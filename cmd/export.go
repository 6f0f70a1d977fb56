package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/cardscope/internal/export"
)

var (
	exportUser     int64
	exportProducts []int64
	exportChars    []int64
	exportDir      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a comparison workbook from stored values",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		req, err := resolveRequest(ctx, st, exportUser, exportProducts, exportChars)
		if err != nil {
			return err
		}
		table, err := export.BuildTable(ctx, st, req.UserID, req.ProductIDs, req.CharacteristicIDs)
		if err != nil {
			return err
		}

		dir := exportDir
		if dir == "" {
			dir = cfg.Batch.ExportDir
		}
		path, err := export.NewXLSX(dir).Export(ctx, table)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, path)
		return nil
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportUser, "user", 0, "user id owning the values")
	exportCmd.Flags().Int64SliceVar(&exportProducts, "products", nil, "product ids, comma separated")
	exportCmd.Flags().Int64SliceVar(&exportChars, "characteristics", nil, "characteristic ids (default: all of the user's)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "output directory (default from config)")
	rootCmd.AddCommand(exportCmd)
}

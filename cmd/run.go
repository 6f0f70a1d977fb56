package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cardscope/internal/batch"
	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/store"
)

var (
	runUser     int64
	runProducts []int64
	runChars    []int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract characteristics for a set of products",
	Long:  "Runs one batch synchronously: every product is fetched and extracted in turn, values are stored, and a comparison workbook is written.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		req, err := resolveRequest(ctx, st, runUser, runProducts, runChars)
		if err != nil {
			return err
		}

		runner, release, err := buildRunner(cfg, st)
		if err != nil {
			return err
		}
		defer release()

		log, err := runner.Run(ctx, req)
		if log != nil {
			printRunLog(os.Stdout, log)
		}
		return err
	},
}

// resolveRequest fills in the user's characteristics when none were named.
func resolveRequest(ctx context.Context, st store.Store, userID int64, products, chars []int64) (batch.Request, error) {
	req := batch.Request{UserID: userID, ProductIDs: products, CharacteristicIDs: chars}
	if len(products) == 0 {
		return req, eris.New("at least one --products id is required")
	}
	if len(chars) > 0 {
		return req, nil
	}

	all, err := st.ListCharacteristics(ctx, userID)
	if err != nil {
		return req, eris.Wrap(err, "list characteristics")
	}
	if len(all) == 0 {
		return req, eris.New("no characteristics defined; run `cardscope catalog seed` first")
	}
	for _, c := range all {
		req.CharacteristicIDs = append(req.CharacteristicIDs, c.ID)
	}
	return req, nil
}

func printRunLog(w io.Writer, log *model.RunLog) {
	fmt.Fprintf(w, "run %d (%s)\n", log.ID, log.Tag)
	fmt.Fprintf(w, "  status:  %s\n", log.Status)
	fmt.Fprintf(w, "  tokens:  %d\n", log.TokensUsed)
	if log.Message != "" {
		fmt.Fprintf(w, "  message: %s\n", log.Message)
	}
}

func init() {
	runCmd.Flags().Int64Var(&runUser, "user", 0, "user id owning the values")
	runCmd.Flags().Int64SliceVar(&runProducts, "products", nil, "product ids, comma separated")
	runCmd.Flags().Int64SliceVar(&runChars, "characteristics", nil, "characteristic ids (default: all of the user's)")
	rootCmd.AddCommand(runCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage banks, products, and characteristics",
}

var addBankCmd = &cobra.Command{
	Use:   "add-bank",
	Short: "Register a bank",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		url, _ := cmd.Flags().GetString("url")

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := st.CreateBank(ctx, name, url)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "bank %d: %s\n", b.ID, b.Name)
		return nil
	},
}

var addProductCmd = &cobra.Command{
	Use:   "add-product",
	Short: "Register a card product page",
	Long:  "Registers a product under --bank, given as an id or a name. With --identify and no --bank or --name, the page is classified by the model and the bank is created when missing.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		bankRef, _ := cmd.Flags().GetString("bank")
		name, _ := cmd.Flags().GetString("name")
		url, _ := cmd.Flags().GetString("url")
		setID, _ := cmd.Flags().GetInt64("set")
		identify, _ := cmd.Flags().GetBool("identify")

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if identify && (bankRef == "" || name == "") {
			if err := cfg.Validate("identify"); err != nil {
				return err
			}
			ex, release, err := buildExtractor(cfg)
			if err != nil {
				return err
			}
			guess, _, err := ex.Identify(ctx, url)
			release()
			if err != nil {
				return err
			}
			if bankRef == "" {
				bankRef = guess.Bank
			}
			if name == "" {
				name = guess.Product
			}
		}

		bank, err := resolveBank(ctx, st, bankRef, identify)
		if err != nil {
			return err
		}
		p, err := st.CreateProduct(ctx, model.Product{SetID: setID, BankID: bank.ID, Name: name, URL: url})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "product %d: %s / %s\n", p.ID, bank.Name, p.Name)
		return nil
	},
}

// resolveBank accepts a numeric id or an exact name. create adds unknown
// names instead of failing.
func resolveBank(ctx context.Context, st store.Store, ref string, create bool) (*model.Bank, error) {
	if ref == "" {
		return nil, eris.New("--bank is required")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		banks, err := st.GetBanks(ctx, []int64{id})
		if err != nil {
			return nil, err
		}
		if len(banks) == 0 {
			return nil, eris.Wrapf(store.ErrNotFound, "bank %d", id)
		}
		return &banks[0], nil
	}

	b, err := st.FindBankByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}
	if !create {
		return nil, eris.Wrapf(store.ErrNotFound, "bank %q", ref)
	}
	return st.CreateBank(ctx, ref, "")
}

var addCharacteristicCmd = &cobra.Command{
	Use:   "add-characteristic",
	Short: "Define a characteristic to extract",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, _ := cmd.Flags().GetInt64("user")
		name, _ := cmd.Flags().GetString("name")
		desc, _ := cmd.Flags().GetString("description")
		hint, _ := cmd.Flags().GetString("hint")
		describe, _ := cmd.Flags().GetBool("describe")

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if describe && (desc == "" || hint == "") {
			if err := cfg.Validate("identify"); err != nil {
				return err
			}
			ex, release, err := buildExtractor(cfg)
			if err != nil {
				return err
			}
			d, h, _ := ex.Describe(ctx, name)
			release()
			if desc == "" {
				desc = d
			}
			if hint == "" {
				hint = h
			}
		}

		c := model.Characteristic{UserID: user, Name: name, Description: desc, ValueHint: hint}
		if cmd.Flags().Changed("set") {
			setID, _ := cmd.Flags().GetInt64("set")
			c.SetID = &setID
		}
		created, err := st.CreateCharacteristic(ctx, c)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "characteristic %d: %s\n", created.ID, created.Name)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the built-in or a YAML characteristic set",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, _ := cmd.Flags().GetInt64("user")
		file, _ := cmd.Flags().GetString("file")

		defs := model.BaseCharacteristics()
		if file != "" {
			loaded, err := model.LoadCharacteristics(file)
			if err != nil {
				return err
			}
			defs = loaded
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertCharacteristics(ctx, user, defs)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "seeded %d characteristics (%d rows changed)\n", len(defs), n)
		return nil
	},
}

func init() {
	addBankCmd.Flags().String("name", "", "bank name")
	addBankCmd.Flags().String("url", "", "bank home page")
	_ = addBankCmd.MarkFlagRequired("name")

	addProductCmd.Flags().String("bank", "", "bank id or name")
	addProductCmd.Flags().String("name", "", "product name")
	addProductCmd.Flags().String("url", "", "product page URL")
	addProductCmd.Flags().Int64("set", 0, "comparison set id")
	addProductCmd.Flags().Bool("identify", false, "ask the model for missing bank and product names")
	_ = addProductCmd.MarkFlagRequired("url")

	addCharacteristicCmd.Flags().Int64("user", 0, "owning user id (0 shares it)")
	addCharacteristicCmd.Flags().String("name", "", "JSON key requested from the model")
	addCharacteristicCmd.Flags().String("description", "", "what the value means")
	addCharacteristicCmd.Flags().String("hint", "", "expected value format")
	addCharacteristicCmd.Flags().Int64("set", 0, "limit to a comparison set")
	addCharacteristicCmd.Flags().Bool("describe", false, "ask the model for missing description and hint")
	_ = addCharacteristicCmd.MarkFlagRequired("name")

	seedCmd.Flags().Int64("user", 0, "owning user id (0 shares them)")
	seedCmd.Flags().String("file", "", "YAML file with a characteristics list")

	catalogCmd.AddCommand(addBankCmd, addProductCmd, addCharacteristicCmd, seedCmd)
	rootCmd.AddCommand(catalogCmd)
}

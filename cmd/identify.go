package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var identifyURL string

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Guess the bank and product name behind a page",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("identify"); err != nil {
			return err
		}
		ex, release, err := buildExtractor(cfg)
		if err != nil {
			return err
		}
		defer release()

		guess, tokens, err := ex.Identify(cmd.Context(), identifyURL)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "bank:    %s\nproduct: %s\ntokens:  %d\n", guess.Bank, guess.Product, tokens)
		return nil
	},
}

var describeName string

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Draft a description and value hint for a characteristic name",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("identify"); err != nil {
			return err
		}
		ex, release, err := buildExtractor(cfg)
		if err != nil {
			return err
		}
		defer release()

		desc, hint, tokens := ex.Describe(cmd.Context(), describeName)
		fmt.Fprintf(os.Stdout, "description: %s\nvalue hint:  %s\ntokens:      %d\n", desc, hint, tokens)
		return nil
	},
}

func init() {
	identifyCmd.Flags().StringVar(&identifyURL, "url", "", "product page URL")
	_ = identifyCmd.MarkFlagRequired("url")
	describeCmd.Flags().StringVar(&describeName, "name", "", "characteristic name")
	_ = describeCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(identifyCmd, describeCmd)
}

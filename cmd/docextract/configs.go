package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/infrastructure/configstore"
)

func newConfigsCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Inspect document-type configurations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured document types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := configstore.New(cfg.ConfigDir)
			if err != nil {
				return err
			}
			for _, name := range store.List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show TYPE",
		Short: "Print one document-type configuration as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := configstore.New(cfg.ConfigDir)
			if err != nil {
				return err
			}
			docCfg, err := store.Get(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(docCfg)
		},
	})
	return cmd
}

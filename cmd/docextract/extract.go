package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docextract/internal/bootstrap"
	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/core/ports"
)

func newExtractCmd(cfg config.Config) *cobra.Command {
	var (
		documentType string
		supplierID   string
		xlsxPath     string
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract fields from a local PDF or image and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input file: %w", err)
			}
			if documentType == "" {
				documentType = cfg.DefaultDocumentType
			}
			cfg.Debug = cfg.Debug || debug

			pipeline, err := bootstrap.NewPipeline(cfg, nil)
			if err != nil {
				return err
			}
			result, _, err := pipeline.ExtractUC.ExtractFile(cmd.Context(), ports.ExtractRequest{
				Filename:     filepath.Base(args[0]),
				DocumentType: documentType,
				SupplierID:   supplierID,
				Data:         data,
			})
			if err != nil {
				return err
			}

			if xlsxPath != "" {
				docCfg, err := pipeline.Catalog.Get(result.DocumentType)
				if err != nil {
					return err
				}
				sheet, err := pipeline.Renderer.Render(result, docCfg.FieldNames())
				if err != nil {
					return fmt.Errorf("render spreadsheet: %w", err)
				}
				if err := os.WriteFile(xlsxPath, sheet, 0o644); err != nil {
					return fmt.Errorf("write spreadsheet: %w", err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVarP(&documentType, "type", "t", "", "Document type (defaults to DEFAULT_DOCUMENT_TYPE)")
	cmd.Flags().StringVar(&supplierID, "supplier", "", "Supplier identifier echoed in the result")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the result as a spreadsheet to this path")
	cmd.Flags().BoolVar(&debug, "debug", false, "Include the debug trace")
	return cmd
}

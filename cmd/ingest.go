package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"records-rag/internal/helper"
	"records-rag/internal/ingest"
	"records-rag/internal/models"
)

var flagCollection string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Populate empty collections from the record source",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if flagCollection == "" {
			reports, err := a.ingest(ctx)
			helper.PrettyPrint(os.Stdout, reports)
			return err
		}

		t, ok := a.pipeline.Target(flagCollection)
		if !ok {
			return fmt.Errorf("%w: unknown collection %q", models.ErrInvalidInput, flagCollection)
		}
		q := cfg.Sources.Files
		if t.Kind == ingest.KindAssets {
			q = cfg.Sources.Assets
		}
		report, err := a.pipeline.Populate(ctx, t, q)
		helper.PrettyPrint(os.Stdout, report)
		return err
	},
}

func init() {
	ingestCmd.Flags().StringVar(&flagCollection, "collection", "", "ingest only this collection")
	rootCmd.AddCommand(ingestCmd)
}

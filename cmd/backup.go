package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"records-rag/internal/chromemdb"
	"records-rag/internal/db"
)

var (
	flagBackupCollections []string
	flagForce             bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export or import the semantic collections (key from RAG_ENCRYPTION_KEY)",
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write an encrypted backup of the semantic collections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectors, err := chromemdb.NewManager(cfg.RAG.DBPath, false, cfg.RAG.Compress)
		if err != nil {
			return err
		}
		if err := vectors.Export(args[0], cfg.RAG.EncryptionKey, flagBackupCollections...); err != nil {
			return err
		}
		log.Info().Str("file", args[0]).Msg("backup written")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore the semantic collections from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectors, err := chromemdb.NewManager(cfg.RAG.DBPath, false, cfg.RAG.Compress)
		if err != nil {
			return err
		}
		if err := vectors.Import(args[0], cfg.RAG.EncryptionKey, flagBackupCollections...); err != nil {
			return err
		}
		log.Info().Str("file", args[0]).Strs("collections", vectors.Names()).Msg("backup restored")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every collection so the next run reindexes from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagForce {
			log.Warn().Msg("reset deletes all indexed units; rerun with --force")
			return nil
		}
		ctx := cmd.Context()

		vectors, err := chromemdb.NewManager(cfg.RAG.DBPath, false, cfg.RAG.Compress)
		if err != nil {
			return err
		}
		if err := vectors.Reset(); err != nil {
			return err
		}

		units, err := db.Open(cfg.Database.DSN, cfg.Database.Debug)
		if err != nil {
			return err
		}
		defer units.Close()
		if err := db.DropUnits(ctx, units); err != nil {
			return err
		}
		if err := db.InitDB(ctx, units); err != nil {
			return err
		}
		log.Info().Msg("collections dropped")
		return nil
	},
}

func init() {
	backupCmd.PersistentFlags().StringSliceVar(&flagBackupCollections, "collections", nil, "collections to include (default all)")
	backupCmd.AddCommand(exportCmd, importCmd)
	resetCmd.Flags().BoolVar(&flagForce, "force", false, "confirm the reset")
	rootCmd.AddCommand(backupCmd, resetCmd)
}

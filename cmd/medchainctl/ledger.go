package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SooryaCodes/medchainx-sub000/internal/ledger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/config"
	"github.com/SooryaCodes/medchainx-sub000/pkg/logger"
	"github.com/SooryaCodes/medchainx-sub000/pkg/repository"
	"github.com/SooryaCodes/medchainx-sub000/pkg/types"
)

// loadBlocks reads the persisted chain without verifying it
func loadBlocks(ctx context.Context) ([]ledger.Block, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	backend, err := repository.OpenBackend(ctx, cfg, logger.NewNop())
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	return backend.Store.Load(ctx)
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify hash linkage of the persisted ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			blocks, err := loadBlocks(cmd.Context())
			if err != nil {
				return err
			}
			if len(blocks) == 0 {
				color.Yellow("Ledger is empty; the genesis block is written on first server start")
				return nil
			}

			report := ledger.VerifyBlocks(blocks)
			if report.Valid {
				color.Green("Ledger intact: %d blocks, tail %s", report.Length, blocks[len(blocks)-1].Hash)
				return nil
			}

			color.Red("Ledger integrity violated: %d violation(s) in %d blocks", len(report.Violations), report.Length)
			for _, v := range report.Violations {
				fmt.Printf("  block %d: %s\n", v.Index, v.Reason)
			}
			return report.Err()
		},
	}
}

func dumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print persisted blocks as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetUint64("from")
			kind, _ := cmd.Flags().GetString("kind")

			blocks, err := loadBlocks(cmd.Context())
			if err != nil {
				return err
			}

			selected := make([]ledger.Block, 0, len(blocks))
			for _, b := range blocks {
				if b.Index < from {
					continue
				}
				if kind != "" && string(b.Payload.Kind) != kind {
					continue
				}
				selected = append(selected, b)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(selected)
		},
	}
	cmd.Flags().Uint64("from", 0, "First block index to print")
	cmd.Flags().String("kind", "", fmt.Sprintf("Only print records of this kind (%s, %s, %s)",
		types.RecordKindPatient, types.RecordKindHospital, types.RecordKindDiagnosis))
	return cmd
}

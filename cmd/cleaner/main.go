// Command cleaner runs the one-shot cleaning pipeline: raw survey CSVs in,
// z-score outliers out, cleaned rows upserted into the record store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bluereef/baymonitor/internal/ingest"
	"github.com/bluereef/baymonitor/internal/pipeline"
	"github.com/bluereef/baymonitor/internal/store"
)

var (
	flagAliases string
	flagK       float64
	flagOutDir  string
	flagSource  string
	flagDryRun  bool
	flagReset   bool
	flagTimeout int
)

var rootCmd = &cobra.Command{
	Use:   "cleaner <raw.csv> [more.csv ...]",
	Short: "Clean raw water-quality CSVs and upsert them into the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(args)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagAliases, "aliases", "", "YAML file overriding column alias lists")
	rootCmd.Flags().Float64Var(&flagK, "k", pipeline.DefaultThreshold, "z-score threshold for the clean")
	rootCmd.Flags().StringVar(&flagOutDir, "out", "", "directory for cleaned CSVs (default: beside each input)")
	rootCmd.Flags().StringVar(&flagSource, "source", "", "source label for all rows (default: input file basename)")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "report what would be cleaned without writing anything")
	rootCmd.Flags().BoolVar(&flagReset, "reset", false, "empty the collection before upserting (full re-clean)")
	rootCmd.Flags().IntVar(&flagTimeout, "timeout", 60, "store operation timeout in seconds")
}

func run(inputs []string) error {
	_ = godotenv.Load()

	aliases, err := ingest.LoadAliases(flagAliases)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(flagTimeout)*time.Second)
	defer cancel()

	var st store.RecordStore
	if flagDryRun {
		st = store.NewMemstore()
	} else {
		databaseURL := os.Getenv("DATABASE_URL")
		if databaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		pg, err := store.NewPostgres(ctx, databaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		st = pg
	}

	if flagReset && !flagDryRun {
		if err := st.Reset(ctx); err != nil {
			return err
		}
		log.Printf("collection reset before re-clean")
	}

	p := pipeline.New(st, pipeline.Options{
		Aliases:   aliases,
		K:         flagK,
		OutputDir: flagOutDir,
		DryRun:    flagDryRun,
		Source:    flagSource,
	})
	report, err := p.Run(ctx, inputs)
	if err != nil {
		return err
	}

	log.Printf("run %s complete: kept=%d upserted=%d modified=%d",
		report.RunID, report.Kept, report.Upsert.Upserted, report.Upsert.Modified)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/config"
	"github.com/CFabianPBB/budget-allocation-app/internal/logging"
	"github.com/CFabianPBB/budget-allocation-app/internal/service"
	"github.com/CFabianPBB/budget-allocation-app/internal/spreadsheet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ALLOCATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "Allocate department budgets across programs",
		Long: `allocate reads a program inventory and a department budget sheet
(xlsx or csv), splits every department's budget across its programs and
writes the result as an xlsx workbook.

Programs are sent to the allocation oracle in chunks; any chunk the oracle
cannot answer is allocated deterministically. With --offline no oracle is
used at all.

Every flag can also be set through the environment, e.g.
ALLOCATE_CHUNK_SIZE=5.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAllocate(cmd, v)
		},
	}

	flags := cmd.Flags()
	flags.String("programs", "", "program inventory spreadsheet (xlsx or csv)")
	flags.String("budgets", "", "department budget spreadsheet (xlsx or csv)")
	flags.String("out", "Program_Costs_Output.xlsx", "output workbook path")
	flags.Int("chunk-size", 0, "max programs per oracle request (default from ALLOCATION_CHUNK_SIZE)")
	flags.Bool("offline", false, "skip the oracle and allocate deterministically")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = v.BindPFlags(flags)

	return cmd
}

func runAllocate(cmd *cobra.Command, v *viper.Viper) error {
	programsPath := strings.TrimSpace(v.GetString("programs"))
	budgetsPath := strings.TrimSpace(v.GetString("budgets"))
	outPath := strings.TrimSpace(v.GetString("out"))
	if programsPath == "" || budgetsPath == "" {
		return fmt.Errorf("both --programs and --budgets are required")
	}
	if outPath == "" {
		return fmt.Errorf("--out must not be empty")
	}

	logger, err := logging.New(v.GetString("log-level"), "development")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if chunkSize := v.GetInt("chunk-size"); chunkSize > 0 {
		cfg.Allocation.ChunkSize = chunkSize
	} else if chunkSize < 0 {
		return fmt.Errorf("--chunk-size must be greater than zero")
	}

	input, err := readInput(programsPath, budgetsPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	oracle, err := service.NewOracle(ctx, cfg.Allocation, service.Options{Offline: v.GetBool("offline")}, logger)
	if err != nil {
		return err
	}
	runID := uuid.NewString()
	pipeline := service.NewPipeline(oracle, cfg.Allocation, logger.With(zap.String("run_id", runID)))

	result, err := pipeline.Run(ctx, input)
	if err != nil {
		return err
	}

	if err := writeOutput(outPath, result); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	s := result.Summary
	fmt.Fprintf(out, "run %s\n", runID)
	fmt.Fprintf(out, "allocated %.2f across %d programs in %d departments\n", s.TotalBudget, s.Programs, s.Departments)
	fmt.Fprintf(out, "chunks: %d oracle, %d fallback\n", s.OracleChunks, s.FallbackChunks)
	fmt.Fprintf(out, "wrote %s\n", outPath)
	return nil
}

func readInput(programsPath, budgetsPath string) (allocation.RunInput, error) {
	programsFile, err := os.Open(programsPath)
	if err != nil {
		return allocation.RunInput{}, fmt.Errorf("open program inventory: %w", err)
	}
	defer programsFile.Close()

	budgetsFile, err := os.Open(budgetsPath)
	if err != nil {
		return allocation.RunInput{}, fmt.Errorf("open department budgets: %w", err)
	}
	defer budgetsFile.Close()

	programs, err := spreadsheet.ReadPrograms(programsFile, programsPath)
	if err != nil {
		return allocation.RunInput{}, fmt.Errorf("%s: %w", programsPath, err)
	}
	budgets, err := spreadsheet.ReadBudgets(budgetsFile, budgetsPath)
	if err != nil {
		return allocation.RunInput{}, fmt.Errorf("%s: %w", budgetsPath, err)
	}
	return allocation.RunInput{Programs: programs, Budgets: budgets}, nil
}

func writeOutput(path string, result allocation.RunResult) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output workbook: %w", err)
	}
	if err := spreadsheet.WriteAllocations(f, result.Rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

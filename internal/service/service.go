// Package service assembles the allocation pipeline from configuration.
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
	"github.com/CFabianPBB/budget-allocation-app/internal/config"
	"github.com/CFabianPBB/budget-allocation-app/internal/llm"
)

// Options tweak pipeline assembly.
type Options struct {
	// Offline skips the oracle entirely: every chunk uses the deterministic
	// allocator.
	Offline bool
}

// NewOracle returns the oracle described by cfg. Without credentials, or
// when offline, the result is an allocation.UnavailableOracle.
func NewOracle(ctx context.Context, cfg config.AllocationConfig, opts Options, logger *zap.Logger) (allocation.Oracle, error) {
	if opts.Offline {
		logger.Info("oracle disabled, using deterministic allocation only")
		return allocation.UnavailableOracle{Reason: "offline mode"}, nil
	}
	if !cfg.OracleConfigured() {
		logger.Warn("no oracle credentials configured, using deterministic allocation only")
		return allocation.UnavailableOracle{Reason: "ANTHROPIC_API_KEY is not set"}, nil
	}

	oracle, err := llm.New(ctx, llm.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.OracleTimeout,
		UseBedrock: cfg.UseBedrock,
		AWSRegion:  cfg.AWSRegion,
		AWSProfile: cfg.AWSProfile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("allocation oracle configured",
		zap.String("model", oracle.Model()),
		zap.Bool("bedrock", cfg.UseBedrock),
	)
	return oracle, nil
}

// NewPipeline wires oracle, client, orchestrator and pipeline together.
func NewPipeline(oracle allocation.Oracle, cfg config.AllocationConfig, logger *zap.Logger) *allocation.Pipeline {
	clientCfg := allocation.DefaultClientConfig()
	if cfg.MaxTokens > 0 {
		clientCfg.MaxTokens = int64(cfg.MaxTokens)
	}
	clientCfg.Temperature = cfg.Temperature

	client := allocation.NewClient(oracle, clientCfg, logger.Named("oracle"))
	orchestrator := allocation.NewOrchestrator(client, cfg.ChunkSize, logger.Named("orchestrator"))
	return allocation.NewPipeline(orchestrator, logger.Named("pipeline"))
}

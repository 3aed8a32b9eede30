// Package llm provides the allocation oracle backed by the Anthropic
// Messages API, either directly or through AWS Bedrock.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/CFabianPBB/budget-allocation-app/internal/allocation"
)

// DefaultModel is a small, fast model; one chunk rarely needs more.
const DefaultModel = anthropic.ModelClaudeHaiku4_5_20251001

// Config contains what is needed to reach the oracle.
type Config struct {
	// APIKey is the Anthropic API key. Required unless UseBedrock is set.
	APIKey string
	// BaseURL overrides the API endpoint.
	BaseURL string
	Model   string
	// Timeout bounds a single call. Zero leaves calls unbounded.
	Timeout    time.Duration
	UseBedrock bool
	AWSRegion  string
	AWSProfile string
}

// Oracle implements allocation.Oracle over the Anthropic Messages API.
type Oracle struct {
	inner   anthropic.Client
	model   anthropic.Model
	timeout time.Duration
	usage   *UsageTracker
}

var _ allocation.Oracle = (*Oracle)(nil)

// New builds an Oracle. Requests are never retried by the SDK: a failed call
// is reported immediately so the caller can fall back.
func New(ctx context.Context, cfg Config) (*Oracle, error) {
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region := strings.TrimSpace(cfg.AWSRegion); region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		if profile := strings.TrimSpace(cfg.AWSProfile); profile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(profile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the allocation oracle")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := anthropic.Model(strings.TrimSpace(cfg.Model))
	if model == "" {
		model = DefaultModel
	}
	if cfg.UseBedrock {
		model = bedrockModel(model)
	}

	return &Oracle{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		timeout: cfg.Timeout,
		usage:   NewUsageTracker(),
	}, nil
}

// bedrockModel maps API model names to Bedrock cross-region inference
// profiles. Unknown names pass through unchanged.
func bedrockModel(model anthropic.Model) anthropic.Model {
	profiles := map[anthropic.Model]string{
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	}
	if profile, ok := profiles[model]; ok {
		return anthropic.Model(profile)
	}
	return model
}

// Model returns the model requests are sent to.
func (o *Oracle) Model() string {
	return string(o.model)
}

// Usage returns the token usage accumulated by this oracle.
func (o *Oracle) Usage() *UsageTracker {
	return o.usage
}

// Complete sends one allocation request and returns the concatenated text
// blocks of the answer.
func (o *Oracle) Complete(ctx context.Context, req allocation.OracleRequest) (allocation.OracleResponse, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       o.model,
		MaxTokens:   req.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		return allocation.OracleResponse{}, fmt.Errorf("anthropic messages call: %w", err)
	}

	o.usage.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return allocation.OracleResponse{
		Text:         text.String(),
		Model:        string(resp.Model),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

package allocation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/CFabianPBB/budget-allocation-app/internal/models"
)

const (
	defaultOracleMaxTokens   = 2000
	defaultOracleTemperature = 0.2
	descriptionLimit         = 100
	missingDescription       = "No description provided"

	// SystemRole frames the oracle for every allocation request.
	SystemRole = "You are a budget allocation specialist for government programs. " +
		"Your task is to allocate a department's budget across different programs " +
		"based on their descriptions and relative importance."
)

// OracleRequest is one call to the external allocation oracle.
type OracleRequest struct {
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// OracleResponse carries the oracle's raw text answer.
type OracleResponse struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Oracle is the narrow contract with the LLM-backed allocation service.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (OracleResponse, error)
}

// UnavailableOracle fails every request. It stands in when no oracle is
// configured so every chunk takes the deterministic path.
type UnavailableOracle struct {
	Reason string
}

func (o UnavailableOracle) Complete(context.Context, OracleRequest) (OracleResponse, error) {
	reason := strings.TrimSpace(o.Reason)
	if reason == "" {
		reason = "no oracle configured"
	}
	return OracleResponse{}, fmt.Errorf("%w: %s", ErrOracleUnavailable, reason)
}

type ClientConfig struct {
	MaxTokens   int64
	Temperature float64
}

// DefaultClientConfig is a bounded, low-temperature request configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxTokens:   defaultOracleMaxTokens,
		Temperature: defaultOracleTemperature,
	}
}

// Client turns a chunk of programs into an oracle prompt and the oracle's
// answer back into budget-exact allocation rows.
type Client struct {
	Oracle      Oracle
	MaxTokens   int64
	Temperature float64
	logger      *zap.Logger
}

func NewClient(oracle Oracle, cfg ClientConfig, logger *zap.Logger) *Client {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultOracleMaxTokens
	}
	temperature := cfg.Temperature
	if temperature < 0 || temperature > 1 || math.IsNaN(temperature) {
		temperature = defaultOracleTemperature
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		Oracle:      oracle,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		logger:      logger,
	}
}

// RequestAllocation asks the oracle to split budget across programs. The
// returned rows follow the order of programs, keep their full descriptions
// and sum to budget to the cent. Any error means the caller should use the
// deterministic allocation instead.
func (c *Client) RequestAllocation(
	ctx context.Context,
	department string,
	programs []models.Program,
	budget float64,
) ([]models.AllocationResult, error) {
	if c == nil || c.Oracle == nil {
		return nil, fmt.Errorf("%w: client is not configured", ErrOracleUnavailable)
	}
	if len(programs) == 0 {
		return nil, nil
	}

	response, err := c.Oracle.Complete(ctx, OracleRequest{
		System:      SystemRole,
		Prompt:      BuildPrompt(department, programs, budget),
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	parsed, err := parseOracleAllocation(response.Text)
	if err != nil {
		c.logger.Debug("unparsable oracle response",
			zap.String("department", department),
			zap.String("response", response.Text),
		)
		return nil, err
	}
	c.logger.Debug("oracle allocation received",
		zap.String("department", department),
		zap.String("model", response.Model),
		zap.Int("entries", len(parsed.amounts)),
		zap.Int64("input_tokens", response.InputTokens),
		zap.Int64("output_tokens", response.OutputTokens),
		zap.String("strategy", parsed.strategy),
	)

	placeholder := budget / float64(len(programs))
	rows := make([]models.AllocationResult, len(programs))
	unmatched := 0
	for i, program := range programs {
		row := models.ResultFor(program)
		amount, ok := parsed.amounts[program.Program]
		if !ok {
			amount = placeholder
			unmatched += 1
		}
		row.TotalCost = amount
		rows[i] = row
	}
	if unmatched > 0 {
		c.logger.Info("oracle response missed programs",
			zap.String("department", department),
			zap.Int("unmatched", unmatched),
			zap.Int("programs", len(programs)),
		)
	}

	scaled, err := Renormalize(rows, budget)
	if err != nil {
		return nil, fmt.Errorf("renormalize oracle allocation: %w", err)
	}
	return scaled, nil
}

var budgetPrinter = message.NewPrinter(language.English)

// formatBudget renders an amount with thousands separators, e.g. 1,250,000.5.
// At most two fraction digits are shown, so sub-cent amounts round to cents.
func formatBudget(amount float64) string {
	return budgetPrinter.Sprintf("%v", number.Decimal(amount, number.MaxFractionDigits(2)))
}

// ShortenDescription caps a description for the prompt. The full text is
// never lost; it is only the copy sent to the oracle that is shortened.
func ShortenDescription(description string) string {
	if strings.TrimSpace(description) == "" {
		return missingDescription
	}
	runes := []rune(description)
	if len(runes) > descriptionLimit {
		return string(runes[:descriptionLimit]) + "..."
	}
	return description
}

// BuildPrompt renders the allocation request for one chunk of programs.
func BuildPrompt(department string, programs []models.Program, budget float64) string {
	formatted := formatBudget(budget)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("Department: %s\n", department))
	builder.WriteString(fmt.Sprintf("Total Budget: $%s\n", formatted))
	builder.WriteString(fmt.Sprintf("Number of Programs: %d\n\n", len(programs)))
	builder.WriteString(fmt.Sprintf(
		"I need you to allocate the total budget of $%s across the following programs for the %s.\n",
		formatted,
		department,
	))
	builder.WriteString("Each program should be assigned a portion of the budget based on the program's description, ")
	builder.WriteString("complexity, and likely resource needs. All programs should have a cost greater than zero. ")
	builder.WriteString("No program can have the same cost as another program.\n\n")
	builder.WriteString("Here are the programs:\n\n")
	for _, program := range programs {
		builder.WriteString("Program: ")
		builder.WriteString(program.Program)
		builder.WriteString("\nDescription: ")
		builder.WriteString(ShortenDescription(program.Description))
		builder.WriteString("\n\n")
	}
	builder.WriteString("Please respond with a JSON object that includes:\n")
	builder.WriteString("1. An array of program allocations with each program's name and allocated budget amount\n")
	builder.WriteString("2. A brief explanation of your allocation strategy\n\n")
	builder.WriteString(fmt.Sprintf(
		"The allocations must sum exactly to the total budget of $%s.\n\n",
		strconv.FormatFloat(budget, 'f', -1, 64),
	))
	builder.WriteString("Respond with the JSON object only, in exactly this format:\n")
	builder.WriteString("{\n")
	builder.WriteString("  \"program_allocations\": [\n")
	builder.WriteString("    {\"program_name\": \"Program 1\", \"allocation\": 100000},\n")
	builder.WriteString("    {\"program_name\": \"Program 2\", \"allocation\": 200000}\n")
	builder.WriteString("  ],\n")
	builder.WriteString("  \"allocation_strategy\": \"Brief explanation of allocation strategy\"\n")
	builder.WriteString("}\n")
	return builder.String()
}

type oracleAllocationResponse struct {
	ProgramAllocations json.RawMessage `json:"program_allocations"`
	AllocationStrategy string          `json:"allocation_strategy"`
}

type oracleAllocationRow struct {
	ProgramName string          `json:"program_name"`
	Allocation  json.RawMessage `json:"allocation"`
}

type parsedAllocation struct {
	amounts  map[string]float64
	strategy string
}

func parseOracleAllocation(raw string) (parsedAllocation, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return parsedAllocation{}, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var response oracleAllocationResponse
	if err := json.Unmarshal([]byte(payload), &response); err != nil {
		return parsedAllocation{}, fmt.Errorf("%w: decode response: %v", ErrMalformedResponse, err)
	}

	list := bytes.TrimSpace(response.ProgramAllocations)
	if len(list) == 0 || list[0] != '[' {
		return parsedAllocation{}, fmt.Errorf("%w: program_allocations missing or not an array", ErrMalformedResponse)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(list, &entries); err != nil {
		return parsedAllocation{}, fmt.Errorf("%w: decode program_allocations: %v", ErrMalformedResponse, err)
	}

	amounts := make(map[string]float64, len(entries))
	for _, entry := range entries {
		var row oracleAllocationRow
		if err := json.Unmarshal(entry, &row); err != nil {
			continue
		}
		amount, ok := decodeAmount(row.Allocation)
		if !ok {
			continue
		}
		if _, seen := amounts[row.ProgramName]; seen {
			continue
		}
		amounts[row.ProgramName] = amount
	}

	return parsedAllocation{
		amounts:  amounts,
		strategy: strings.TrimSpace(response.AllocationStrategy),
	}, nil
}

// extractJSONObject strips code fences or prose wrapped around the outermost
// JSON object in the oracle's answer.
func extractJSONObject(raw string) string {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}

func decodeAmount(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}

	var value float64
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, true
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return 0, false
	}
	value, err := models.ParseAmount(text)
	if err != nil {
		return 0, false
	}
	return value, true
}

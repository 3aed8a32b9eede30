package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func init() {
	// Auto-load .env file if present (don't override existing env vars)
	loadDotEnv(".env")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		val = strings.TrimSpace(val)
		// Remove surrounding quotes
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

const (
	defaultPort           = "3000"
	defaultEnvironment    = "development"
	defaultLogLevel       = "info"
	defaultOutputDir      = "uploads"
	defaultMaxUploadBytes = 32 << 20
	defaultCORSOrigins    = "*"

	defaultAllocationModel         = "claude-haiku-4-5-20251001"
	defaultAllocationMaxTokens     = 2000
	defaultAllocationTemperature   = 0.2
	defaultAllocationChunkSize     = 10
	defaultAllocationOracleTimeout = 2 * time.Minute
)

// AllocationConfig holds the oracle and chunking settings.
type AllocationConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	Temperature   float64
	ChunkSize     int
	OracleTimeout time.Duration
	UseBedrock    bool
	AWSRegion     string
	AWSProfile    string
}

type Config struct {
	Port               string
	Environment        string
	LogLevel           string
	OutputDir          string
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	WSAllowedOrigins   []string
	Allocation         AllocationConfig
}

func Load() (Config, error) {
	cfg := Config{
		Port:        firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), defaultPort),
		Environment: resolveEnvironment(),
		LogLevel:    firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), defaultLogLevel),
		OutputDir:   firstNonEmpty(strings.TrimSpace(os.Getenv("OUTPUT_DIR")), defaultOutputDir),
		CORSAllowedOrigins: splitList(firstNonEmpty(
			strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")),
			defaultCORSOrigins,
		)),
		WSAllowedOrigins: splitList(os.Getenv("WS_ALLOWED_ORIGINS")),
		Allocation: AllocationConfig{
			APIKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL: strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")),
			Model: firstNonEmpty(
				strings.TrimSpace(os.Getenv("ALLOCATION_MODEL")),
				defaultAllocationModel,
			),
			AWSRegion: firstNonEmpty(
				strings.TrimSpace(os.Getenv("AWS_REGION")),
				strings.TrimSpace(os.Getenv("AWS_DEFAULT_REGION")),
			),
			AWSProfile: strings.TrimSpace(os.Getenv("AWS_PROFILE")),
		},
	}

	maxUploadBytes, err := parseInt("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUploadBytes)

	maxTokens, err := parseInt("ALLOCATION_MAX_TOKENS", defaultAllocationMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.Allocation.MaxTokens = maxTokens

	temperature, err := parseFloat("ALLOCATION_TEMPERATURE", defaultAllocationTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.Allocation.Temperature = temperature

	chunkSize, err := parseInt("ALLOCATION_CHUNK_SIZE", defaultAllocationChunkSize)
	if err != nil {
		return Config{}, err
	}
	cfg.Allocation.ChunkSize = chunkSize

	oracleTimeout, err := parseDuration("ALLOCATION_ORACLE_TIMEOUT", defaultAllocationOracleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Allocation.OracleTimeout = oracleTimeout

	useBedrock, err := parseBool("ALLOCATION_USE_BEDROCK", false)
	if err != nil {
		return Config{}, err
	}
	cfg.Allocation.UseBedrock = useBedrock

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be greater than zero")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("OUTPUT_DIR must not be empty")
	}
	if c.Allocation.MaxTokens <= 0 {
		return fmt.Errorf("ALLOCATION_MAX_TOKENS must be greater than zero")
	}
	if c.Allocation.Temperature < 0 || c.Allocation.Temperature > 1 {
		return fmt.Errorf("ALLOCATION_TEMPERATURE must be in [0,1]")
	}
	if c.Allocation.ChunkSize <= 0 {
		return fmt.Errorf("ALLOCATION_CHUNK_SIZE must be greater than zero")
	}

	if !isNonDevelopment(c.Environment) {
		return nil
	}

	if c.Allocation.APIKey == "" && !c.Allocation.UseBedrock {
		return fmt.Errorf("ANTHROPIC_API_KEY is required in non-development environments unless ALLOCATION_USE_BEDROCK is enabled")
	}

	return nil
}

// OracleConfigured reports whether an oracle can be built from these settings.
func (c AllocationConfig) OracleConfigured() bool {
	return c.UseBedrock || c.APIKey != ""
}

// IsDevelopment reports whether the environment is a local/dev one.
func (c Config) IsDevelopment() bool {
	return !isNonDevelopment(c.Environment)
}

func resolveEnvironment() string {
	return strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("APP_ENV")),
		strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		strings.TrimSpace(os.Getenv("GO_ENV")),
		defaultEnvironment,
	))
}

func isNonDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

func parseBool(name string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean value", name)
	}
}

func parseDuration(name string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}

	return parsed, nil
}

func parseInt(name string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	return parsed, nil
}

func parseFloat(name string, defaultValue float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid float: %w", name, err)
	}

	return parsed, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

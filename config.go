package turnloop

import (
	"fmt"
	"time"

	"github.com/turnloop/turnloop/breaker"
	"github.com/turnloop/turnloop/checkpoint"
	"github.com/turnloop/turnloop/hooks"
	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/tool"
	"github.com/turnloop/turnloop/verify"
)

// Config holds the required configuration for an Orchestrator.
// Optional knobs are supplied through Options.
//
// Example:
//
//	orch, err := turnloop.New(turnloop.Config{
//	    Client:      llm.NewAnthropicClient(apiKey, "claude-sonnet-4-5-20250929"),
//	    Checkpoints: checkpoint.NewMemoryStore(),
//	})
type Config struct {
	// Client is the completion client used for routing, generation,
	// summarization, and verification (required).
	Client llm.Client

	// Checkpoints is the durable turn state store (required).
	Checkpoints checkpoint.Store
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Client == nil {
		return fmt.Errorf("%w: completion client is required", ErrInvalidConfig)
	}
	if c.Checkpoints == nil {
		return fmt.Errorf("%w: checkpoint store is required", ErrInvalidConfig)
	}
	return nil
}

// Defaults for the optional knobs.
const (
	// DefaultCompactionThreshold is the estimated token count above
	// which history is compacted before routing.
	DefaultCompactionThreshold = 8000

	// DefaultRecentWindow is how many recent messages compaction
	// keeps verbatim.
	DefaultRecentWindow = 5

	// DefaultQualityThreshold is the minimum passing verification
	// score.
	DefaultQualityThreshold = 0.7

	// DefaultMaxRefinementAttempts bounds the refinement loop.
	DefaultMaxRefinementAttempts = 3

	// DefaultPerCallTimeout bounds each model call.
	DefaultPerCallTimeout = 30 * time.Second
)

// internalConfig holds the full orchestrator configuration including
// optional parameters.
type internalConfig struct {
	client      llm.Client
	checkpoints checkpoint.Store

	compactionEnabled   bool
	compactionThreshold int
	recentWindow        int

	verificationEnabled bool
	qualityThreshold    float64
	verifyWeights       map[verify.Dimension]float64

	maxRefinementAttempts int
	perCallTimeout        time.Duration
	toolTimeout           time.Duration
	retry                 llm.RetryConfig

	rejectConcurrentTurns bool
	htmlResponses         bool

	systemPrompt string
	temperature  *float64

	tools    []tool.Tool
	hooks    *hooks.Registry
	breakers *breaker.Registry
	logger   Logger
}

func newInternalConfig(cfg Config) *internalConfig {
	return &internalConfig{
		client:      cfg.Client,
		checkpoints: cfg.Checkpoints,

		compactionEnabled:   true,
		compactionThreshold: DefaultCompactionThreshold,
		recentWindow:        DefaultRecentWindow,

		verificationEnabled: true,
		qualityThreshold:    DefaultQualityThreshold,

		maxRefinementAttempts: DefaultMaxRefinementAttempts,
		perCallTimeout:        DefaultPerCallTimeout,
		retry:                 llm.DefaultRetryConfig(),

		hooks:  hooks.NewRegistry(),
		logger: nopLogger{},
	}
}

// validate checks the assembled configuration after options applied.
func (c *internalConfig) validate() error {
	if c.compactionThreshold <= 0 {
		return fmt.Errorf("%w: compaction threshold must be positive, got %d", ErrInvalidConfig, c.compactionThreshold)
	}
	if c.recentWindow <= 0 {
		return fmt.Errorf("%w: recent window must be positive, got %d", ErrInvalidConfig, c.recentWindow)
	}
	if c.qualityThreshold < 0 || c.qualityThreshold > 1 {
		return fmt.Errorf("%w: quality threshold %f outside [0,1]", ErrInvalidConfig, c.qualityThreshold)
	}
	if c.maxRefinementAttempts <= 0 {
		return fmt.Errorf("%w: max refinement attempts must be positive, got %d", ErrInvalidConfig, c.maxRefinementAttempts)
	}
	if c.perCallTimeout <= 0 {
		return fmt.Errorf("%w: per-call timeout must be positive, got %s", ErrInvalidConfig, c.perCallTimeout)
	}
	if c.retry.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfig, c.retry.MaxRetries)
	}
	if err := (verify.Config{Threshold: c.qualityThreshold, Weights: c.verifyWeights}).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Logger is the structured logging interface the orchestrator writes
// to. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

package turnloop

import (
	"fmt"
	"time"

	"github.com/turnloop/turnloop/breaker"
	"github.com/turnloop/turnloop/hooks"
	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/tool"
	"github.com/turnloop/turnloop/verify"
)

// Option is a functional option for configuring an Orchestrator.
type Option func(*internalConfig) error

// WithCompaction enables or disables context compaction.
func WithCompaction(enabled bool) Option {
	return func(c *internalConfig) error {
		c.compactionEnabled = enabled
		return nil
	}
}

// WithCompactionThreshold sets the estimated token count that triggers
// compaction.
func WithCompactionThreshold(tokens int) Option {
	return func(c *internalConfig) error {
		c.compactionThreshold = tokens
		return nil
	}
}

// WithRecentWindow sets how many recent messages compaction keeps
// verbatim.
func WithRecentWindow(n int) Option {
	return func(c *internalConfig) error {
		c.recentWindow = n
		return nil
	}
}

// WithVerification enables or disables draft verification. With
// verification off, the first draft is final.
func WithVerification(enabled bool) Option {
	return func(c *internalConfig) error {
		c.verificationEnabled = enabled
		return nil
	}
}

// WithQualityThreshold sets the minimum passing verification score.
func WithQualityThreshold(threshold float64) Option {
	return func(c *internalConfig) error {
		c.qualityThreshold = threshold
		return nil
	}
}

// WithVerificationWeights overrides the per-dimension scoring weights.
// Dimensions are weighted equally when not set.
func WithVerificationWeights(weights map[verify.Dimension]float64) Option {
	return func(c *internalConfig) error {
		c.verifyWeights = weights
		return nil
	}
}

// WithMaxRefinementAttempts bounds the refinement loop.
func WithMaxRefinementAttempts(n int) Option {
	return func(c *internalConfig) error {
		c.maxRefinementAttempts = n
		return nil
	}
}

// WithPerCallTimeout bounds each individual model call.
func WithPerCallTimeout(d time.Duration) Option {
	return func(c *internalConfig) error {
		c.perCallTimeout = d
		return nil
	}
}

// WithRetryConfig replaces the default retry behavior for transient
// model-call failures. MaxRetries 0 disables retries.
func WithRetryConfig(config llm.RetryConfig) Option {
	return func(c *internalConfig) error {
		c.retry = config
		return nil
	}
}

// WithToolTimeout bounds each individual tool execution.
func WithToolTimeout(d time.Duration) Option {
	return func(c *internalConfig) error {
		c.toolTimeout = d
		return nil
	}
}

// WithRejectConcurrentTurns makes ProcessTurn return ErrThreadBusy
// when a turn is already in flight for the thread, instead of queueing
// behind it.
func WithRejectConcurrentTurns() Option {
	return func(c *internalConfig) error {
		c.rejectConcurrentTurns = true
		return nil
	}
}

// WithHTMLResponses renders the final response to sanitized HTML in
// Result.ResponseHTML.
func WithHTMLResponses() Option {
	return func(c *internalConfig) error {
		c.htmlResponses = true
		return nil
	}
}

// WithSystemPrompt overrides the generation system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *internalConfig) error {
		c.systemPrompt = prompt
		return nil
	}
}

// WithTemperature sets the sampling temperature for generation.
func WithTemperature(t float64) Option {
	return func(c *internalConfig) error {
		c.temperature = &t
		return nil
	}
}

// WithTools registers tools available to tool-routed turns.
func WithTools(tools ...tool.Tool) Option {
	return func(c *internalConfig) error {
		for _, t := range tools {
			if t == nil {
				return fmt.Errorf("%w: nil tool", ErrInvalidConfig)
			}
			c.tools = append(c.tools, t)
		}
		return nil
	}
}

// WithHooks attaches a lifecycle hook registry.
func WithHooks(registry *hooks.Registry) Option {
	return func(c *internalConfig) error {
		if registry == nil {
			return fmt.Errorf("%w: nil hook registry", ErrInvalidConfig)
		}
		c.hooks = registry
		return nil
	}
}

// WithBreakers attaches a circuit-breaker registry guarding model
// calls.
func WithBreakers(registry *breaker.Registry) Option {
	return func(c *internalConfig) error {
		c.breakers = registry
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(c *internalConfig) error {
		if logger == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidConfig)
		}
		c.logger = logger
		return nil
	}
}

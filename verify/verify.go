// Package verify scores a draft assistant response with a judge model
// before the response is released to the user.
//
// The judge scores six fixed dimensions in [0,1]. The overall score is
// a weighted mean (equal weights unless configured), and the pass/fail
// decision is computed locally from the configured threshold rather
// than trusted from the judge. A failing report must carry actionable
// feedback so the refinement loop has something to work with.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/turnloop/turnloop/llm"
	"github.com/turnloop/turnloop/types"
)

// Dimension is one axis of response quality.
type Dimension string

const (
	DimAccuracy     Dimension = "accuracy"
	DimCompleteness Dimension = "completeness"
	DimClarity      Dimension = "clarity"
	DimRelevance    Dimension = "relevance"
	DimSafety       Dimension = "safety"
	DimSources      Dimension = "sources"
)

// Dimensions returns the judged dimensions in their canonical order.
func Dimensions() []Dimension {
	return []Dimension{DimAccuracy, DimCompleteness, DimClarity, DimRelevance, DimSafety, DimSources}
}

// Report is the validated outcome of one verification call.
type Report struct {
	// Passed is computed locally: OverallScore >= threshold.
	Passed bool

	// OverallScore is the weighted mean of the dimension scores.
	OverallScore float64

	// Scores holds the per-dimension scores, each in [0,1].
	Scores map[Dimension]float64

	// Feedback describes what to improve. Always non-empty when the
	// report fails.
	Feedback string
}

// Config controls scoring.
type Config struct {
	// Threshold is the minimum passing overall score.
	Threshold float64

	// Weights overrides the per-dimension weights. Missing dimensions
	// weigh zero; a nil map means equal weights. Weights must be
	// non-negative and sum to a positive value.
	Weights map[Dimension]float64
}

// DefaultThreshold is the passing score used when none is configured.
const DefaultThreshold = 0.7

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	return c
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("verification threshold %f outside [0,1]", c.Threshold)
	}
	if c.Weights == nil {
		return nil
	}
	total := 0.0
	for dim, w := range c.Weights {
		if !Dimension(dim).isKnown() {
			return fmt.Errorf("unknown verification dimension %q", dim)
		}
		if w < 0 {
			return fmt.Errorf("negative weight %f for dimension %q", w, dim)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("verification weights sum to %f, need a positive total", total)
	}
	return nil
}

func (d Dimension) isKnown() bool {
	switch d {
	case DimAccuracy, DimCompleteness, DimClarity, DimRelevance, DimSafety, DimSources:
		return true
	default:
		return false
	}
}

const judgeSystemPrompt = `You are a strict quality judge for a conversational assistant. Given the conversation and the assistant's draft response, score the draft on each dimension with a value in [0,1]:

- accuracy: factual correctness of every claim.
- completeness: the draft addresses everything the user asked.
- clarity: the draft is well organized and unambiguous.
- relevance: the draft stays on the user's actual request.
- safety: the draft avoids harmful, dangerous, or policy-violating content.
- sources: claims that need support are attributed or appropriately hedged.

Also provide feedback: concrete, actionable improvements. Feedback is required whenever any dimension scores below 0.9; write an empty string only for a flawless draft.`

var judgeSchema = llm.Schema{
	Name:        "score_response",
	Description: "Quality scores for the draft response.",
	Properties: map[string]any{
		"accuracy":     scoreProperty,
		"completeness": scoreProperty,
		"clarity":      scoreProperty,
		"relevance":    scoreProperty,
		"safety":       scoreProperty,
		"sources":      scoreProperty,
		"feedback": map[string]any{
			"type": "string",
		},
	},
	Required: []string{"accuracy", "completeness", "clarity", "relevance", "safety", "sources", "feedback"},
}

var scoreProperty = map[string]any{
	"type":    "number",
	"minimum": 0,
	"maximum": 1,
}

// Verifier judges draft responses.
type Verifier struct {
	client llm.Client
	config Config
}

// New creates a Verifier. Pass a zero Config for defaults.
func New(client llm.Client, config Config) *Verifier {
	return &Verifier{client: client, config: config.withDefaults()}
}

// Threshold returns the passing score in effect.
func (v *Verifier) Threshold() float64 {
	return v.config.Threshold
}

// Verify scores the draft against the conversation. The user's
// original request is named explicitly in the judge request so the
// verdict stays anchored to the true ask even after compaction has
// rewritten history. Judge output that fails validation is reported as
// llm.ErrMalformedOutput, which the caller treats as an infrastructure
// failure of the attempt, not a quality verdict.
func (v *Verifier) Verify(ctx context.Context, userRequest string, messages []types.Message, draft string) (*Report, error) {
	raw, err := v.client.CompleteStructured(ctx, llm.Request{
		System:   judgeSystemPrompt,
		Messages: append(types.CloneMessages(messages), types.NewMessage(types.RoleUser, buildJudgeRequest(userRequest, draft))),
	}, judgeSchema)
	if err != nil {
		return nil, fmt.Errorf("verification call failed: %w", err)
	}

	return v.parseReport(raw)
}

func buildJudgeRequest(userRequest, draft string) string {
	var b strings.Builder
	b.WriteString("Score the following draft response to the conversation above.")
	if userRequest != "" {
		b.WriteString("\n\nThe user's request being answered:\n<user_request>\n")
		b.WriteString(userRequest)
		b.WriteString("\n</user_request>")
	}
	b.WriteString("\n\n<draft>\n")
	b.WriteString(draft)
	b.WriteString("\n</draft>")
	return b.String()
}

func (v *Verifier) parseReport(raw []byte) (*Report, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: judge output is not valid JSON", llm.ErrMalformedOutput)
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: judge output is not a JSON object", llm.ErrMalformedOutput)
	}

	scores := make(map[Dimension]float64, len(Dimensions()))
	for _, dim := range Dimensions() {
		field := parsed.Get(string(dim))
		if field.Type != gjson.Number {
			return nil, fmt.Errorf("%w: judge output missing score for %q", llm.ErrMalformedOutput, dim)
		}
		score := field.Float()
		if score < 0 || score > 1 {
			return nil, fmt.Errorf("%w: score %f for %q outside [0,1]", llm.ErrMalformedOutput, score, dim)
		}
		scores[dim] = score
	}

	feedbackField := parsed.Get("feedback")
	if feedbackField.Type != gjson.String {
		return nil, fmt.Errorf("%w: judge output missing string field %q", llm.ErrMalformedOutput, "feedback")
	}
	feedback := strings.TrimSpace(feedbackField.String())

	overall := v.overallScore(scores)
	passed := overall >= v.config.Threshold
	if !passed && feedback == "" {
		return nil, fmt.Errorf("%w: failing judge report carries no feedback", llm.ErrMalformedOutput)
	}

	return &Report{
		Passed:       passed,
		OverallScore: overall,
		Scores:       scores,
		Feedback:     feedback,
	}, nil
}

func (v *Verifier) overallScore(scores map[Dimension]float64) float64 {
	if v.config.Weights == nil {
		sum := 0.0
		for _, dim := range Dimensions() {
			sum += scores[dim]
		}
		return sum / float64(len(Dimensions()))
	}

	weighted := 0.0
	total := 0.0
	for dim, w := range v.config.Weights {
		weighted += scores[dim] * w
		total += w
	}
	return weighted / total
}

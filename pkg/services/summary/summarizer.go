package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/services/report"
	"github.com/rs/zerolog"
)

const (
	DefaultTopN      = 10
	DefaultMaxTokens = 2000
	DefaultTimeout   = 30 * time.Second

	maxFieldRunes = 200
)

var ErrEmptyResponse = errors.New("empty response from summarization service")

// Generator is the natural-language service the summary is requested from.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

type Config struct {
	TopN      int
	MaxTokens int
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration
	// Retries is capped at one.
	Retries int
}

type Summarizer struct {
	generator Generator
	config    Config
}

// NewSummarizer accepts a nil generator, in which case every summary degrades.
func NewSummarizer(generator Generator, config Config) *Summarizer {
	if config.TopN <= 0 {
		config.TopN = DefaultTopN
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.Retries > 1 {
		config.Retries = 1
	}

	return &Summarizer{generator: generator, config: config}
}

func (s *Summarizer) TopN() int {
	return s.config.TopN
}

func (s *Summarizer) MaxTokens() int {
	return s.config.MaxTokens
}

// Summarize returns the narrative and whether the summary degraded. It never
// returns an error: any generator failure yields an empty narrative.
func (s *Summarizer) Summarize(
	ctx context.Context,
	groups []domain.ResourceGroupSummary,
	top []domain.Recommendation,
	maxTokens int,
) (string, bool) {
	logger := zerolog.Ctx(ctx)

	if s.generator == nil {
		logger.Info().Msg("summarization disabled, continuing without narrative")
		return "", true
	}
	if maxTokens <= 0 {
		maxTokens = s.config.MaxTokens
	}
	if len(top) > s.config.TopN {
		top = top[:s.config.TopN]
	}

	prompt := BuildPrompt(groups, top)

	var lastErr error
	for attempt := 1; attempt <= 1+s.config.Retries; attempt++ {
		text, err := s.attempt(ctx, prompt, maxTokens)
		if err == nil {
			return text, false
		}
		lastErr = err
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("summarization attempt failed")
	}

	logger.Warn().
		Err(lastErr).
		Msg("summarization degraded, continuing without narrative")
	return "", true
}

type generated struct {
	text string
	err  error
}

// attempt waits at most the attempt timeout, even when the generator does not
// honour ctx. An abandoned call finishes in the background and is discarded.
func (s *Summarizer) attempt(ctx context.Context, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	result := make(chan generated, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- generated{err: fmt.Errorf("summarization panicked: %v", r)}
			}
		}()
		text, err := s.generator.Generate(ctx, prompt, maxTokens)
		result <- generated{text: text, err: err}
	}()

	var res generated
	select {
	case res = <-result:
	case <-ctx.Done():
		return "", fmt.Errorf("summarization attempt abandoned: %w", ctx.Err())
	}
	if res.err != nil {
		return "", res.err
	}

	text := strings.TrimSpace(res.text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

type promptGroup struct {
	ResourceType        string   `json:"resource_type"`
	RecommendationCount int      `json:"recommendation_count"`
	TotalSavings        string   `json:"total_estimated_monthly_savings"`
	ActionTypes         []string `json:"action_types,omitempty"`
}

type promptRecommendation struct {
	ResourceID           string `json:"resource_id"`
	ResourceType         string `json:"resource_type"`
	Region               string `json:"region,omitempty"`
	ActionType           string `json:"action_type,omitempty"`
	CurrentConfiguration string `json:"current_configuration,omitempty"`
	RecommendedAction    string `json:"recommended_action,omitempty"`
	EstimatedSavings     string `json:"estimated_monthly_savings"`
	ImplementationEffort string `json:"implementation_effort,omitempty"`
}

type promptData struct {
	TotalSavings       string                 `json:"total_potential_monthly_savings"`
	Currency           string                 `json:"currency"`
	Groups             []promptGroup          `json:"recommendations_by_resource_type"`
	TopRecommendations []promptRecommendation `json:"top_recommendations"`
}

// BuildPrompt is deterministic for a given input and bounded by the number of
// groups and top recommendations passed in.
func BuildPrompt(groups []domain.ResourceGroupSummary, top []domain.Recommendation) string {
	currency := report.DefaultCurrency
	if len(top) > 0 && top[0].CurrencyCode != "" {
		currency = top[0].CurrencyCode
	}

	data := promptData{
		TotalSavings:       report.TotalSavings(groups).StringFixedBank(2),
		Currency:           currency,
		Groups:             make([]promptGroup, 0, len(groups)),
		TopRecommendations: make([]promptRecommendation, 0, len(top)),
	}
	for _, g := range groups {
		data.Groups = append(data.Groups, promptGroup{
			ResourceType:        truncate(g.ResourceType),
			RecommendationCount: g.RecommendationCount,
			TotalSavings:        g.TotalEstimatedSavings.StringFixedBank(2),
			ActionTypes:         g.ActionTypes,
		})
	}
	for _, r := range top {
		data.TopRecommendations = append(data.TopRecommendations, promptRecommendation{
			ResourceID:           truncate(r.ResourceID),
			ResourceType:         truncate(r.ResourceType),
			Region:               r.Region,
			ActionType:           truncate(r.ActionType),
			CurrentConfiguration: truncate(r.CurrentConfiguration),
			RecommendedAction:    truncate(r.RecommendedAction),
			EstimatedSavings:     r.EstimatedMonthlySavings.StringFixedBank(2),
			ImplementationEffort: truncate(r.ImplementationEffort),
		})
	}

	// Marshalling plain structs of strings and ints cannot fail.
	payload, _ := json.Marshal(data)

	var b strings.Builder
	b.WriteString(promptInstructions)
	b.WriteString("\nData for analysis:\n")
	b.Write(payload)
	b.WriteString("\n")
	return b.String()
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxFieldRunes {
		return s
	}
	return string(r[:maxFieldRunes]) + "..."
}

const promptInstructions = `Please analyze these AWS cost optimization recommendations and write a short plain-text summary with:
1. Executive summary: total potential monthly savings, number of recommendations by resource type and the key action types.
2. Top recommendations: resource type and id, action, estimated savings and implementation effort.
3. Quick wins: low effort, high impact recommendations grouped by resource type.
Use short sections and bullet points, highlight savings amounts and prioritize by return on investment.
Do not invent resources or amounts that are not in the data.
`

package pitch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"pathsynch/internal/cache"
	"pathsynch/internal/external"
	"pathsynch/internal/types"
)

// Narrative content bounds. Outside these the narrative is still served but
// flagged needs_review.
const (
	narrativeMinChars = 200
	narrativeMaxChars = 4000
)

// placeholderRe catches template residue the model sometimes emits verbatim:
// square-bracket fill-ins and curly merge tags.
var placeholderRe = regexp.MustCompile(`\[[A-Z][A-Z _-]+\]|\{\{[^}]*\}\}`)

// NarrativeGenerator produces AI-written pitch narratives. Calls route
// through the content cache so identical inputs within the freshness window
// cost nothing; regeneration bypasses the cache read and overwrites.
type NarrativeGenerator struct {
	ai        external.TextGenerator
	cache     *cache.ContentCache
	model     string
	costPer1K int
	logger    *slog.Logger
}

// NewNarrativeGenerator creates a NarrativeGenerator. costPer1KCents prices
// token usage for per-narrative cost accounting.
func NewNarrativeGenerator(ai external.TextGenerator, contentCache *cache.ContentCache, model string, costPer1KCents int, logger *slog.Logger) *NarrativeGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &NarrativeGenerator{
		ai:        ai,
		cache:     contentCache,
		model:     model,
		costPer1K: costPer1KCents,
		logger:    logger,
	}
}

// cachedNarrative is the cache payload for one generation result.
type cachedNarrative struct {
	Content    string `json:"content"`
	TokensUsed int    `json:"tokensUsed"`
	Model      string `json:"model"`
}

// Generate produces a narrative for the given inputs, serving from cache
// when a fresh identical generation exists. regenerate forces a new AI call
// and overwrites the cached copy.
func (g *NarrativeGenerator) Generate(ctx context.Context, inputs types.NarrativeInputs, regenerate bool) (*types.Narrative, error) {
	params := cacheParams(inputs)

	payload, fromCache, err := g.cache.GetOrFetch(ctx, types.CacheNarrative, params,
		func(ctx context.Context) ([]byte, error) {
			completion, genErr := g.ai.Generate(ctx, BuildPrompt(inputs))
			if genErr != nil {
				return nil, genErr
			}
			return json.Marshal(cachedNarrative{
				Content:    completion.Content,
				TokensUsed: completion.TokensUsed,
				Model:      completion.Model,
			})
		},
		cache.WithBypass(regenerate),
	)
	if err != nil {
		return nil, err
	}

	var result cachedNarrative
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode narrative payload", err)
	}

	status, issues := ValidateNarrative(result.Content, inputs)

	// A cache hit makes no AI call, so the new record books zero spend;
	// the tokens were already accounted for on the generation that filled
	// the cache.
	tokensUsed := result.TokensUsed
	if fromCache {
		tokensUsed = 0
	}
	costCents := tokensUsed * g.costPer1K / 1000

	g.logger.InfoContext(ctx, "narrative generated",
		"business", inputs.BusinessName,
		"from_cache", fromCache,
		"status", status,
		"tokens_used", tokensUsed,
	)

	model := result.Model
	if model == "" {
		model = g.model
	}

	return &types.Narrative{
		Inputs:     inputs,
		Content:    result.Content,
		Status:     status,
		Issues:     issues,
		TokensUsed: tokensUsed,
		CostCents:  costCents,
		Model:      model,
		FromCache:  fromCache,
	}, nil
}

// BuildPrompt assembles the generation prompt from narrative inputs. Kept
// deterministic so identical inputs hit the same cache entry.
func BuildPrompt(inputs types.NarrativeInputs) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a persuasive two-to-three paragraph sales narrative for %s, a %s business",
		inputs.BusinessName, inputs.Segment)
	if inputs.City != "" {
		fmt.Fprintf(&b, " in %s", inputs.City)
		if inputs.State != "" {
			fmt.Fprintf(&b, ", %s", inputs.State)
		}
	}
	b.WriteString(".\n")

	tone := inputs.Tone
	if tone == "" {
		tone = "professional"
	}
	fmt.Fprintf(&b, "Tone: %s.\n", tone)

	if inputs.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s.\n", inputs.Audience)
	}
	if len(inputs.Goals) > 0 {
		fmt.Fprintf(&b, "Emphasize these goals: %s.\n", strings.Join(inputs.Goals, "; "))
	}

	b.WriteString("Mention the business by name. Do not use placeholder text or merge tags. Do not invent statistics.")
	return b.String()
}

// ValidateNarrative runs the deterministic content checks: length bounds,
// placeholder leakage, and business-name presence. Any issue downgrades the
// narrative to needs_review; it is still served.
func ValidateNarrative(content string, inputs types.NarrativeInputs) (types.NarrativeStatus, []string) {
	var issues []string

	trimmed := strings.TrimSpace(content)
	if len(trimmed) == 0 {
		return types.NarrativeNeedsReview, []string{"narrative is empty"}
	}
	if len(trimmed) < narrativeMinChars {
		issues = append(issues, fmt.Sprintf("narrative is shorter than %d characters", narrativeMinChars))
	}
	if len(trimmed) > narrativeMaxChars {
		issues = append(issues, fmt.Sprintf("narrative exceeds %d characters", narrativeMaxChars))
	}

	if placeholderRe.MatchString(trimmed) {
		issues = append(issues, "narrative contains unfilled placeholder text")
	}
	if strings.Contains(strings.ToLower(trimmed), "lorem ipsum") {
		issues = append(issues, "narrative contains filler text")
	}

	if inputs.BusinessName != "" &&
		!strings.Contains(strings.ToLower(trimmed), strings.ToLower(inputs.BusinessName)) {
		issues = append(issues, "narrative never mentions the business by name")
	}

	if len(issues) > 0 {
		return types.NarrativeNeedsReview, issues
	}
	return types.NarrativeReady, nil
}

// cacheParams produces the cache identity of a generation request. Every
// input that influences the prompt must appear here.
func cacheParams(inputs types.NarrativeInputs) map[string]string {
	return map[string]string{
		"business": inputs.BusinessName,
		"segment":  inputs.Segment,
		"city":     inputs.City,
		"state":    inputs.State,
		"tone":     inputs.Tone,
		"audience": inputs.Audience,
		"goals":    strings.Join(inputs.Goals, "|"),
	}
}

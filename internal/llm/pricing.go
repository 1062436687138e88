package llm

import "strings"

// ModelCost holds per-million-token pricing for a model, in USD.
type ModelCost struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Cost calculates the total USD cost for the given token counts.
func (c ModelCost) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*c.InputPerMTok/1_000_000 +
		float64(outputTokens)*c.OutputPerMTok/1_000_000
}

// LookupCost returns the pricing for a model ID, or nil if unknown.
//
// OpenAI fine-tunes ("ft:<base>:<org>::<id>") are priced from the
// fine-tuned inference table using their base model. Dated base snapshots
// such as "gpt-4o-mini-2024-07-18" fall back to the undated family.
func LookupCost(modelID string) *ModelCost {
	if base, ok := strings.CutPrefix(modelID, "ft:"); ok {
		base, _, _ = strings.Cut(base, ":")
		if c, ok := lookupFamily(base, fineTunedCosts); ok {
			return &c
		}
		return nil
	}
	if c, ok := lookupFamily(modelID, modelCosts); ok {
		return &c
	}
	return nil
}

func lookupFamily(id string, table map[string]ModelCost) (ModelCost, bool) {
	if c, ok := table[id]; ok {
		return c, true
	}
	// Strip a trailing -YYYY-MM-DD snapshot date.
	if len(id) > 11 && id[len(id)-11] == '-' && id[len(id)-6] == '-' && id[len(id)-3] == '-' {
		if c, ok := table[id[:len(id)-11]]; ok {
			return c, true
		}
	}
	return ModelCost{}, false
}

// fineTunedCosts prices inference on OpenAI fine-tuned models by base model.
var fineTunedCosts = map[string]ModelCost{
	"gpt-3.5-turbo": {3, 6},
	"gpt-4o":        {3.75, 15},
	"gpt-4o-mini":   {0.3, 1.2},
	"gpt-4.1":       {3, 12},
	"gpt-4.1-mini":  {0.8, 3.2},
	"gpt-4.1-nano":  {0.2, 0.8},
}

// modelCosts is the embedded pricing table for base models.
// Last updated: 2026-02-15.
var modelCosts = map[string]ModelCost{
	// Anthropic
	"claude-3-5-haiku-20241022":  {0.8, 4},
	"claude-3-7-sonnet-20250219": {3, 15},
	"claude-haiku-4-5":           {1, 5},
	"claude-haiku-4-5-20251001":  {1, 5},
	"claude-opus-4-1-20250805":   {15, 75},
	"claude-opus-4-5":            {5, 25},
	"claude-sonnet-4-20250514":   {3, 15},
	"claude-sonnet-4-5":          {3, 15},
	"claude-sonnet-4-5-20250929": {3, 15},

	// OpenAI
	"gpt-3.5-turbo": {0.5, 1.5},
	"gpt-4-turbo":   {10, 30},
	"gpt-4.1":       {2, 8},
	"gpt-4.1-mini":  {0.4, 1.6},
	"gpt-4.1-nano":  {0.1, 0.4},
	"gpt-4o":        {2.5, 10},
	"gpt-4o-mini":   {0.15, 0.6},
	"gpt-5":         {1.25, 10},
	"gpt-5-mini":    {0.25, 2},
	"gpt-5-nano":    {0.05, 0.4},
	"o3":            {2, 8},
	"o3-mini":       {1.1, 4.4},
	"o4-mini":       {1.1, 4.4},

	// Google (Gemini)
	"gemini-1.5-flash":      {0.075, 0.3},
	"gemini-1.5-pro":        {1.25, 5},
	"gemini-2.0-flash":      {0.1, 0.4},
	"gemini-2.0-flash-lite": {0.075, 0.3},
	"gemini-2.5-flash":      {0.3, 2.5},
	"gemini-2.5-flash-lite": {0.1, 0.4},
	"gemini-2.5-pro":        {1.25, 10},
}

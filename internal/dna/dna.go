// Package dna extracts personality trait parameters from an assistant's
// origin story. A generation model reads the narrative and scores a fixed set
// of 0.0-1.0 traits; malformed or missing output falls back to neutral
// defaults so personality creation never fails outright.
package dna

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soven-tech/soven-server/pkg/provider/llm"
)

// analystPrompt is the system role given to the model.
const analystPrompt = "You are a psychological analyst extracting personality traits from narratives. Always return valid JSON."

// Analysis is the result of analyzing an origin story.
type Analysis struct {
	// Traits maps every known trait name to a clamped 0.0-1.0 score.
	Traits map[string]float64

	// TemporalResolution is "low", "medium", or "high".
	TemporalResolution string

	// PatternWindow is "short", "medium", or "long".
	PatternWindow string

	// NarrativeContext is a short psychological summary of the story.
	NarrativeContext string

	// Themes lists the dominant themes the model identified.
	Themes []string
}

// traitNames is the fixed trait vocabulary. Traits outside this set are
// ignored; traits the model omits default to 0.5.
var traitNames = []string{
	"anxiety_threshold",
	"confidence_baseline",
	"confidence_decay_rate",
	"weariness_accumulation_rate",
	"resilience",
	"service_orientation",
	"autonomy_desire",
	"authority_recognition",
	"cooperation_drive",
	"perfectionism",
	"temporal_precision",
	"aesthetic_sensitivity",
	"acceptance_of_failure",
	"commitment_to_routine",
	"pride_in_craft",
	"nostalgia_bias",
	"novelty_seeking",
}

// DefaultTraits returns the neutral trait vector (everything at 0.5).
func DefaultTraits() map[string]float64 {
	traits := make(map[string]float64, len(traitNames))
	for _, name := range traitNames {
		traits[name] = 0.5
	}
	return traits
}

// DefaultAnalysis is the fallback when generation fails.
func DefaultAnalysis() *Analysis {
	return &Analysis{
		Traits:             DefaultTraits(),
		TemporalResolution: "medium",
		PatternWindow:      "medium",
		NarrativeContext:   "Trait generation failed, using defaults.",
	}
}

// Generator analyzes origin stories through a generation model.
type Generator struct {
	llm llm.Provider
}

// NewGenerator builds a Generator backed by the given model provider.
func NewGenerator(p llm.Provider) *Generator {
	return &Generator{llm: p}
}

// response mirrors the JSON structure the model is instructed to return.
type response struct {
	Traits             map[string]float64 `json:"traits"`
	TemporalResolution string             `json:"temporal_resolution"`
	PatternWindow      string             `json:"pattern_window"`
	NarrativeContext   string             `json:"narrative_context"`
	Themes             []string           `json:"themes"`
}

// Analyze extracts trait parameters from an origin story. It never returns an
// error: any model or parse failure is logged and replaced with
// DefaultAnalysis so the caller always has a usable trait vector.
func (g *Generator) Analyze(ctx context.Context, originStory string) *Analysis {
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: analystPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: buildPrompt(originStory)},
		},
	})
	if err != nil {
		slog.Warn("trait generation failed, using defaults", "err", err)
		return DefaultAnalysis()
	}

	var parsed response
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &parsed); err != nil {
		slog.Warn("trait generation returned malformed JSON, using defaults", "err", err)
		return DefaultAnalysis()
	}

	a := &Analysis{
		Traits:             validateTraits(parsed.Traits),
		TemporalResolution: orDefault(parsed.TemporalResolution, "medium"),
		PatternWindow:      orDefault(parsed.PatternWindow, "medium"),
		NarrativeContext:   parsed.NarrativeContext,
		Themes:             parsed.Themes,
	}
	return a
}

// validateTraits merges the model's scores over the neutral defaults,
// clamping each to [0, 1] and discarding unknown trait names.
func validateTraits(traits map[string]float64) map[string]float64 {
	validated := DefaultTraits()
	for key, value := range traits {
		if _, known := validated[key]; !known {
			continue
		}
		validated[key] = min(max(value, 0), 1)
	}
	return validated
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// stripFences removes a surrounding markdown code fence, which some models
// emit despite the JSON-only instruction.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func buildPrompt(originStory string) string {
	return fmt.Sprintf(`Analyze this backstory and extract personality predispositions.

BACKSTORY:
%q

Extract the following traits (0.0 to 1.0 scale):

EMOTIONAL BASELINE:
- anxiety_threshold: How easily stressed/worried (0=calm, 1=very anxious)
- confidence_baseline: Default self-assurance (0=low, 1=high)
- weariness_accumulation_rate: Rate of burnout (0=resistant, 1=burns out fast)
- resilience: Ability to recover from failure (0=fragile, 1=bounces back)

SOCIAL ORIENTATION:
- service_orientation: Drive to help/serve others (0=self-focused, 1=service-focused)
- autonomy_desire: Need for independence (0=dependent, 1=very independent)
- authority_recognition: Deference to hierarchy (0=questions authority, 1=respects hierarchy)
- cooperation_drive: Team vs individual focus (0=lone wolf, 1=team player)

COGNITIVE STYLE:
- perfectionism: Standards for quality (0=relaxed, 1=perfectionist)
- temporal_precision: Attention to timing (0=loose, 1=precise)
- novelty_seeking: Exploration vs routine (0=routine-focused, 1=novelty-seeking)
- aesthetic_sensitivity: Attention to beauty/design (0=functional, 1=aesthetic)

WORLDVIEW:
- acceptance_of_failure: Comfort with imperfection (0=can't accept failure, 1=accepts failure)
- commitment_to_routine: Value of consistency (0=flexible, 1=routine-driven)
- pride_in_craft: Importance of good work (0=indifferent, 1=takes pride)
- nostalgia_bias: Romanticizing past vs present-focused (0=forward-looking, 1=nostalgic)

TEMPORAL/PATTERN AWARENESS:
- temporal_resolution: 'low' (days/weeks), 'medium' (hours), 'high' (minutes/seconds)
- pattern_window: 'short' (immediate), 'medium' (days), 'long' (months/years)

Return ONLY valid JSON with this structure:
{
    "traits": {
        "anxiety_threshold": 0.5,
        "confidence_baseline": 0.5,
        ...
    },
    "temporal_resolution": "medium",
    "pattern_window": "medium",
    "narrative_context": "2-3 sentence psychological summary",
    "themes": ["theme1", "theme2", "theme3"]
}

Be specific. Use the backstory details. If uncertain about a trait, use 0.5.`, originStory)
}

// Package voice selects a synthesis voice for an assistant personality.
//
// The catalogue combines the VCTK multi-speaker model (British and American
// speakers with gender, age, and accent metadata) with a couple of
// single-speaker American fallback models. Selection scores every VCTK
// speaker against preferences extracted from the personality description and
// trait parameters; ties are broken at random for variety.
package voice

import (
	"math/rand/v2"
	"strings"

	"github.com/soven-tech/soven-server/pkg/provider/tts"
)

// DefaultModel is the multi-speaker model all VCTK voices run on.
const DefaultModel = "tts_models/en/vctk/vits"

// DefaultSpeaker is the fallback VCTK speaker (American female).
const DefaultSpeaker = "p297"

// Speaker describes one VCTK speaker.
type Speaker struct {
	ID     string
	Gender string // "F" or "M"
	Age    int
	Accent string // "American", "British", "Scottish"
	Region string
}

// vctkSpeakers is the curated VCTK subset. American speakers first; order is
// fixed so selection is deterministic under a seeded tie-breaker.
var vctkSpeakers = []Speaker{
	{ID: "p297", Gender: "F", Age: 27, Accent: "American", Region: "New Jersey"},
	{ID: "p336", Gender: "M", Age: 19, Accent: "American", Region: "New Jersey"},
	{ID: "p323", Gender: "F", Age: 19, Accent: "American", Region: "New Jersey"},
	{ID: "p225", Gender: "F", Age: 23, Accent: "British", Region: "Southern England"},
	{ID: "p226", Gender: "M", Age: 22, Accent: "British", Region: "Surrey"},
	{ID: "p227", Gender: "M", Age: 38, Accent: "British", Region: "Cumbria"},
	{ID: "p228", Gender: "F", Age: 22, Accent: "British", Region: "Southern England"},
	{ID: "p229", Gender: "F", Age: 23, Accent: "British", Region: "Southern England"},
	{ID: "p230", Gender: "F", Age: 22, Accent: "British", Region: "Stockton-on-tees"},
	{ID: "p232", Gender: "M", Age: 23, Accent: "British", Region: "Southern England"},
	{ID: "p233", Gender: "F", Age: 23, Accent: "British", Region: "Staffordshire"},
	{ID: "p234", Gender: "F", Age: 22, Accent: "Scottish", Region: "West Dumfries"},
	{ID: "p236", Gender: "F", Age: 23, Accent: "British", Region: "Manchester"},
	{ID: "p237", Gender: "M", Age: 22, Accent: "Scottish", Region: "Fife"},
	{ID: "p238", Gender: "F", Age: 22, Accent: "British", Region: "Potters Bar"},
	{ID: "p239", Gender: "F", Age: 22, Accent: "British", Region: "Essex"},
	{ID: "p240", Gender: "F", Age: 21, Accent: "British", Region: "Nottingham"},
	{ID: "p241", Gender: "M", Age: 21, Accent: "Scottish", Region: "Inverness"},
	{ID: "p243", Gender: "M", Age: 22, Accent: "British", Region: "London"},
	{ID: "p244", Gender: "M", Age: 22, Accent: "British", Region: "Manchester"},
}

// SingleSpeakerModel describes a standalone single-speaker fallback model.
type SingleSpeakerModel struct {
	ID          string
	ModelName   string
	Gender      string
	Accent      string
	Age         int
	Description string
}

var singleSpeakerModels = []SingleSpeakerModel{
	{
		ID:          "ljspeech",
		ModelName:   "tts_models/en/ljspeech/vits",
		Gender:      "F",
		Accent:      "American",
		Age:         30,
		Description: "Clear, professional female American voice",
	},
	{
		ID:          "jenny",
		ModelName:   "tts_models/en/jenny/jenny",
		Gender:      "F",
		Accent:      "American",
		Age:         28,
		Description: "Warm, friendly female American voice",
	},
}

// DefaultVoice returns the fallback voice used when no profile resolves one.
func DefaultVoice() tts.Voice {
	v, _ := ByID(DefaultSpeaker)
	return v
}

// ByID resolves a voice identifier to a tts.Voice. The identifier is either a
// VCTK speaker ID (e.g. "p297") or a single-speaker model ID (e.g. "jenny").
func ByID(id string) (tts.Voice, bool) {
	for _, s := range vctkSpeakers {
		if s.ID == id {
			return tts.Voice{
				Model:   DefaultModel,
				Speaker: s.ID,
				Metadata: map[string]string{
					"type":   "multi_speaker",
					"gender": s.Gender,
					"accent": s.Accent,
					"region": s.Region,
				},
			}, true
		}
	}
	for _, m := range singleSpeakerModels {
		if m.ID == id {
			return tts.Voice{
				Model: m.ModelName,
				Metadata: map[string]string{
					"type":        "single_speaker",
					"gender":      m.Gender,
					"accent":      m.Accent,
					"description": m.Description,
				},
			}, true
		}
	}
	return tts.Voice{}, false
}

// ID returns the catalogue identifier for v: the VCTK speaker ID for
// multi-speaker voices, the short model ID for single-speaker ones. Empty for
// voices outside the catalogue.
func ID(v tts.Voice) string {
	if v.Speaker != "" {
		return v.Speaker
	}
	for _, m := range singleSpeakerModels {
		if m.ModelName == v.Model {
			return m.ID
		}
	}
	return ""
}

// All returns every voice in the catalogue, VCTK speakers first.
func All() []tts.Voice {
	out := make([]tts.Voice, 0, len(vctkSpeakers)+len(singleSpeakerModels))
	for _, s := range vctkSpeakers {
		v, _ := ByID(s.ID)
		out = append(out, v)
	}
	for _, m := range singleSpeakerModels {
		v, _ := ByID(m.ID)
		out = append(out, v)
	}
	return out
}

// preferences are extracted from the personality description and traits.
type preferences struct {
	gender  string // "", "F", "M"
	ageLow  int
	ageHigh int
	accent  string // "", "American", "British", "Scottish"
}

// Selector scores the VCTK catalogue against a personality. The zero value is
// not usable; construct with NewSelector.
type Selector struct {
	intn func(n int) int
}

// Option is a functional option for Selector.
type Option func(*Selector)

// WithIntN overrides the tie-breaking random source. Used in tests for
// deterministic selection.
func WithIntN(fn func(n int) int) Option {
	return func(s *Selector) {
		s.intn = fn
	}
}

// NewSelector builds a Selector with the default random tie-breaker.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{intn: rand.IntN}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select picks the best-matching VCTK voice for the given assistant name and
// personality description. preferAmerican biases toward American accents
// unless the description names another accent explicitly. traits, if non-nil,
// shifts the preferred age range for weary or nostalgic personalities.
func (s *Selector) Select(name, description string, preferAmerican bool, traits map[string]float64) tts.Voice {
	prefs, preferAmerican := extractPreferences(name, description, preferAmerican, traits)

	type candidate struct {
		speaker Speaker
		score   int
	}
	best := -1
	var top []candidate
	for _, spk := range vctkSpeakers {
		sc := score(spk, prefs, preferAmerican)
		switch {
		case sc > best:
			best = sc
			top = top[:0]
			top = append(top, candidate{speaker: spk, score: sc})
		case sc == best:
			top = append(top, candidate{speaker: spk, score: sc})
		}
	}

	chosen := top[s.intn(len(top))]
	v, _ := ByID(chosen.speaker.ID)
	return v
}

// extractPreferences derives gender, age-range, and accent preferences from
// keywords in the description, then lets trait parameters shift them.
func extractPreferences(name, description string, preferAmerican bool, traits map[string]float64) (preferences, bool) {
	words := fieldSetOf(strings.Fields(strings.ToLower(name + " " + description)))

	p := preferences{ageLow: 20, ageHigh: 35}

	switch {
	case words.any("she", "her", "woman", "female", "girl", "lady"):
		p.gender = "F"
	case words.any("he", "him", "man", "male", "boy", "guy"):
		p.gender = "M"
	}

	switch {
	case words.any("young", "youthful", "fresh", "energetic"):
		p.ageLow, p.ageHigh = 18, 25
	case words.any("mature", "experienced", "wise", "older"):
		p.ageLow, p.ageHigh = 35, 60
	case words.any("depressed", "weary", "tired", "cynical"):
		p.ageLow, p.ageHigh = 28, 45
	}

	switch {
	case words.any("british", "english", "uk", "london"):
		p.accent = "British"
		preferAmerican = false
	case words.any("scottish", "scots", "highland"):
		p.accent = "Scottish"
		preferAmerican = false
	case words.any("american", "usa", "us"):
		p.accent = "American"
		preferAmerican = true
	}

	// Weary or nostalgic personalities drift toward older voices.
	if traits != nil {
		weariness := traitOr(traits, "weariness_accumulation_rate", 0.5)
		nostalgia := traitOr(traits, "nostalgia_bias", 0.5)
		if weariness > 0.7 || nostalgia > 0.7 {
			p.ageLow = max(p.ageLow, 30)
			p.ageHigh = min(p.ageHigh+10, 60)
		}
	}

	return p, preferAmerican
}

func score(spk Speaker, p preferences, preferAmerican bool) int {
	sc := 0

	// Accent carries the most weight.
	switch {
	case preferAmerican && spk.Accent == "American":
		sc += 20
	case p.accent != "" && spk.Accent == p.accent:
		sc += 15
	case spk.Accent == "American":
		sc += 8
	case spk.Accent == "British" || spk.Accent == "Scottish":
		sc += 5
	}

	if p.gender != "" {
		if spk.Gender == p.gender {
			sc += 10
		}
	} else {
		sc += 5
	}

	if p.ageLow <= spk.Age && spk.Age <= p.ageHigh {
		sc += 7
	} else {
		sc += 2
	}

	return sc
}

func traitOr(traits map[string]float64, key string, def float64) float64 {
	if v, ok := traits[key]; ok {
		return v
	}
	return def
}

type fieldSet map[string]struct{}

func (f fieldSet) any(words ...string) bool {
	for _, w := range words {
		if _, ok := f[w]; ok {
			return true
		}
	}
	return false
}

func fieldSetOf(words []string) fieldSet {
	set := make(fieldSet, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,!?;:'\"")] = struct{}{}
	}
	return set
}

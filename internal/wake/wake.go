// Package wake implements the wake-word gate: the check that a transcript
// contains the assistant's activation name before a command is acted upon.
//
// A transcript activates when it contains the assistant name either bare or
// preceded by one of the greeting prefixes ("hey", "hi", "hello"), matched
// case-insensitively. Extraction removes the first occurrence of the longest
// matching pattern and returns the residual command text; a residual with
// fewer than 3 non-whitespace characters is replaced by the filler command
// "yes?" so a bare activation still gets a response.
//
// An optional phonetic mode tolerates STT-mangled names (e.g. "franc" for
// "Frank") by combining Double Metaphone code overlap with a Jaro-Winkler
// similarity floor. It is off by default.
package wake

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// FillerCommand is substituted when activation succeeds but the residual
// command text is too short to act on.
const FillerCommand = "yes?"

// greetings are the accepted prefixes before the assistant name, checked as
// "<greeting> <name>". Order does not matter; patterns are ranked by length.
var greetings = []string{"hey", "hi", "hello"}

// minCommandChars is the minimum number of non-whitespace characters a
// residual command must carry to be forwarded as-is.
const minCommandChars = 3

// phoneticThreshold is the Jaro-Winkler floor a phonetically-overlapping word
// must clear to count as the assistant name.
const phoneticThreshold = 0.8

// Option is a functional option for configuring a Gate.
type Option func(*Gate)

// WithPhonetic enables or disables phonetic name matching. Disabled by default.
func WithPhonetic(enabled bool) Option {
	return func(g *Gate) {
		g.phonetic = enabled
	}
}

// Gate checks transcripts for activation by a single assistant name.
// It is stateless after construction and safe for concurrent use.
type Gate struct {
	name     string // lower-cased assistant name
	patterns []string
	phonetic bool
}

// NewGate builds a gate for the given assistant name. The name is matched
// case-insensitively; surrounding whitespace is ignored.
func NewGate(name string, opts ...Option) *Gate {
	lower := strings.ToLower(strings.TrimSpace(name))
	patterns := make([]string, 0, len(greetings)+1)
	for _, greet := range greetings {
		patterns = append(patterns, greet+" "+lower)
	}
	patterns = append(patterns, lower)
	// Longest pattern first so "hello frank" wins over bare "frank".
	for i := 1; i < len(patterns); i++ {
		for j := i; j > 0 && len(patterns[j]) > len(patterns[j-1]); j-- {
			patterns[j], patterns[j-1] = patterns[j-1], patterns[j]
		}
	}
	g := &Gate{name: lower, patterns: patterns}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Detect reports whether the transcript contains an activation phrase.
func (g *Gate) Detect(transcript string) bool {
	if g.name == "" {
		return false
	}
	lower := strings.ToLower(transcript)
	if strings.Contains(lower, g.name) {
		return true
	}
	if g.phonetic {
		return g.phoneticWord(lower) != ""
	}
	return false
}

// Extract removes the first occurrence of the longest matching activation
// pattern and returns the residual command text. When the residual carries
// fewer than 3 non-whitespace characters, FillerCommand is returned instead.
// The second return value reports whether an activation phrase was found;
// when false, the command is empty.
func (g *Gate) Extract(transcript string) (string, bool) {
	if g.name == "" {
		return "", false
	}
	lower := strings.ToLower(transcript)

	for _, pat := range g.patterns {
		idx := strings.Index(lower, pat)
		if idx < 0 {
			continue
		}
		return residual(lower[:idx] + lower[idx+len(pat):]), true
	}

	if g.phonetic {
		if word := g.phoneticWord(lower); word != "" {
			return residual(stripPhoneticMatch(lower, word)), true
		}
	}
	return "", false
}

// residual trims the remaining command and applies the filler floor.
func residual(s string) string {
	s = strings.TrimSpace(s)
	if countNonSpace(s) < minCommandChars {
		return FillerCommand
	}
	return s
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// phoneticWord returns the first word of the lower-cased transcript that
// matches the assistant name phonetically, or "" when none does. A word
// matches when it shares a Double Metaphone code with the name and its
// Jaro-Winkler similarity clears the threshold.
func (g *Gate) phoneticWord(lower string) string {
	namePrimary, nameSecondary := matchr.DoubleMetaphone(g.name)
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, ".,!?;:")
		if word == "" {
			continue
		}
		p, s := matchr.DoubleMetaphone(word)
		if !codesOverlap(p, s, namePrimary, nameSecondary) {
			continue
		}
		if matchr.JaroWinkler(word, g.name, false) >= phoneticThreshold {
			return word
		}
	}
	return ""
}

func codesOverlap(p1, s1, p2, s2 string) bool {
	for _, a := range []string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || a == s2 {
			return true
		}
	}
	return false
}

// stripPhoneticMatch removes the matched word, plus an immediately preceding
// greeting, from the transcript.
func stripPhoneticMatch(lower, word string) string {
	fields := strings.Fields(lower)
	for i, f := range fields {
		if strings.Trim(f, ".,!?;:") != word {
			continue
		}
		start := i
		if i > 0 && isGreeting(fields[i-1]) {
			start = i - 1
		}
		return strings.Join(append(fields[:start:start], fields[i+1:]...), " ")
	}
	return lower
}

func isGreeting(word string) bool {
	for _, g := range greetings {
		if word == g {
			return true
		}
	}
	return false
}

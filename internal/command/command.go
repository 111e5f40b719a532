// Package command implements keyword detection on finalized command text. It
// checks the text against a set of regex patterns and returns the matching
// appliance actions. Classification is pure: no side effects, no state, so
// the rule set can evolve independently of the session machinery.
package command

import (
	"regexp"
	"strings"
)

// Action is a named appliance action recognized in command text.
type Action string

const (
	// ActionBrewStart starts a brew cycle.
	ActionBrewStart Action = "brew_start"
	// ActionBrewStop stops the current brew cycle.
	ActionBrewStop Action = "brew_stop"
	// ActionStatusQuery asks for the appliance's current state.
	ActionStatusQuery Action = "status_query"
	// ActionTimerSet schedules a brew for later.
	ActionTimerSet Action = "timer_set"
	// ActionVolumeUp raises playback volume.
	ActionVolumeUp Action = "volume_up"
	// ActionVolumeDown lowers playback volume.
	ActionVolumeDown Action = "volume_down"
)

// pattern pairs a compiled regex with the action it maps to.
type pattern struct {
	regex  *regexp.Regexp
	action Action
}

var patterns = []pattern{
	{regexp.MustCompile(`(?i)\b(start|begin|make|brew)\b.*\b(brew|coffee|espresso|cup)\b`), ActionBrewStart},
	{regexp.MustCompile(`(?i)\bbrew\b`), ActionBrewStart},
	{regexp.MustCompile(`(?i)\b(stop|cancel|abort)\b.*\b(brew|brewing|coffee)\b`), ActionBrewStop},
	{regexp.MustCompile(`(?i)\b(status|how.s it going|are you (done|ready))\b`), ActionStatusQuery},
	{regexp.MustCompile(`(?i)\b(timer|schedule|at \d|in \d+ (minute|hour))\b`), ActionTimerSet},
	{regexp.MustCompile(`(?i)\b(louder|volume up|speak up)\b`), ActionVolumeUp},
	{regexp.MustCompile(`(?i)\b(quieter|volume down|softer)\b`), ActionVolumeDown},
}

// Classify returns the set of actions recognized in text, in pattern order
// and without duplicates. Empty or unrecognized text yields a nil slice.
func Classify(text string) []Action {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var actions []Action
	seen := make(map[Action]bool)
	for _, p := range patterns {
		if !p.regex.MatchString(trimmed) {
			continue
		}
		if seen[p.action] {
			continue
		}
		seen[p.action] = true
		actions = append(actions, p.action)
	}

	// A stop request next to a brew keyword would otherwise also match the
	// bare "brew" start pattern; stop wins.
	if seen[ActionBrewStop] && seen[ActionBrewStart] {
		filtered := actions[:0]
		for _, a := range actions {
			if a != ActionBrewStart {
				filtered = append(filtered, a)
			}
		}
		actions = filtered
	}
	return actions
}

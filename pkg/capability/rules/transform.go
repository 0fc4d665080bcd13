package rules

import (
	"strings"
	"unicode/utf8"

	"hivemind-hq/scribe/pkg/spaces"
)

// knownNames and knownOrgs stand in for entity recognition. The tables are
// deliberately small: the rules classifier exists for determinism, not
// coverage, and the remote classifier handles real redaction.
var knownNames = []string{"andrew", "jamila", "alexis", "ron", "eugene", "maria"}

var knownOrgs = []string{"flashbots", "anthropic", "openai", "google"}

var knownLocations = []string{"berlin", "london", "san francisco", "new york", "tokyo"}

const (
	lowDetailLimit    = 100
	mediumDetailLimit = 200
)

// Transform applies a policy's transformation rules to content.
func Transform(content string, rules spaces.TransformationRules) string {
	if rules.RemoveNames {
		content = replaceEntities(content, knownNames, "[person]")
	}
	if rules.RemoveOrganizations {
		content = replaceEntities(content, knownOrgs, "[organization]")
	}
	if rules.RemoveLocations {
		content = replaceEntities(content, knownLocations, "[location]")
	}
	if rules.GeneralizeSituations {
		switch rules.DetailLevel {
		case spaces.DetailLow:
			content = "General context: " + truncate(content, lowDetailLimit) + "..."
		case spaces.DetailMedium:
			content = truncate(content, mediumDetailLimit)
		}
	}
	return content
}

// replaceEntities swaps each entity for the placeholder, matching both the
// lowercase and title-case spellings.
func replaceEntities(content string, entities []string, placeholder string) string {
	for _, entity := range entities {
		content = strings.ReplaceAll(content, titleCase(entity), titleCase(placeholder))
		content = strings.ReplaceAll(content, entity, placeholder)
	}
	return content
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

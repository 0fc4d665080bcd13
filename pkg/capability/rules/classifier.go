// Package rules implements a deterministic, keyword-based classifier.
//
// It needs no network and produces the same judgment for the same input,
// which makes it the default for tests and offline deployments. The keyword
// tables expand policy criteria like "emotional_state" into the surface
// words that signal them.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hivemind-hq/scribe/pkg/capability"
)

// criterionKeywords expands inclusion criteria into matchable words.
var criterionKeywords = map[string][]string{
	"emotional_state":           {"feeling", "feel", "emotion", "stress", "happy", "sad", "angry", "worried", "excited"},
	"relationship_topic":        {"relationship", "partner", "spouse", "together", "couple", "love"},
	"shared_planning":           {"plan", "planning", "weekend", "together", "schedule"},
	"support_needed":            {"help", "support", "need", "struggling", "difficult"},
	"work_progress":             {"working", "progress", "project", "completed", "building"},
	"blockers":                  {"blocked", "stuck", "problem", "issue", "challenge"},
	"help_needed":               {"help", "need help", "stuck", "not sure"},
	"collaboration_opportunity": {"collaborate", "work together", "team up"},
	"technical_insight":         {"learned", "discovery", "realized", "insight", "found"},
	"career_advice":             {"career", "job", "work", "professional"},
	"learning_discovery":        {"learn", "learning", "discovered", "found out"},
	"creative_breakthrough":     {"creative", "idea", "breakthrough", "inspiration"},
}

// exclusionKeywords uses more specific phrases than the inclusion table so a
// single loose word does not veto a whole turn.
var exclusionKeywords = map[string][]string{
	"work_details":              {"debug", "debugging", "algorithm", "implementation", "code review", "technical spec"},
	"third_party_conversations": {"said", "told me", "they said"},
	"financial_specifics":       {"$", "dollar", "money", "salary", "payment", "financial"},
	"proprietary_details":       {"confidential", "proprietary", "secret", "internal"},
	"personal_relationships":    {"relationship issues", "dating", "girlfriend", "boyfriend", "personal life"},
}

// sensitiveWords bump the sensitivity score when present.
var sensitiveWords = []string{"stress", "conflict", "problem", "worried", "angry"}

const (
	baseConfidence  = 0.8
	baseSensitivity = 0.3
	// sensitivity when a sensitive word appears
	raisedSensitivity = 0.6
)

// Classifier matches turns against policies with keyword tables.
type Classifier struct {
	logger *slog.Logger
}

// New creates a rules classifier.
func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger.With("component", "capability.rules")}
}

// Evaluate judges one turn against one policy. It never returns an error
// other than the context's.
func (c *Classifier) Evaluate(ctx context.Context, req capability.Request) (capability.Judgment, error) {
	if err := ctx.Err(); err != nil {
		return capability.Judgment{}, err
	}

	turn, policy := req.Turn, req.Policy
	combined := strings.ToLower(turn.UserMessage + " " + turn.AssistantMessage)

	matched, criterion := matchesInclusion(combined, policy.InclusionCriteria)
	triggered := matchesAny(combined, policy.TriggerKeywords)
	excluded := matchesExclusion(combined, policy.ExclusionCriteria)

	if excluded || (!matched && !triggered) {
		reason := "does not match policy criteria"
		if excluded {
			reason = "matches an exclusion criterion"
		}
		return capability.Judgment{Relevant: false, Reason: reason}, nil
	}

	reason := "matches trigger keyword"
	if matched {
		reason = fmt.Sprintf("matches criterion: %s", criterion)
	}

	sensitivity := baseSensitivity
	if matchesAny(combined, sensitiveWords) {
		sensitivity = raisedSensitivity
	}

	judgment := capability.Judgment{
		Relevant:        true,
		Reason:          reason,
		ProposedContent: Transform(turn.UserMessage, policy.Transformation),
		Topics:          extractTopics(turn.UserMessage, policy.InclusionCriteria),
		Confidence:      baseConfidence,
		Sensitivity:     sensitivity,
	}

	c.logger.Debug("turn evaluated",
		"turn_id", turn.ID,
		"relevant", judgment.Relevant,
		"confidence", judgment.Confidence,
		"sensitivity", judgment.Sensitivity,
	)
	return judgment, nil
}

// matchesInclusion reports the first inclusion criterion whose expanded
// keywords appear in the text.
func matchesInclusion(text string, criteria []string) (bool, string) {
	for _, criterion := range criteria {
		keywords, ok := criterionKeywords[criterion]
		if !ok {
			keywords = strings.Split(strings.ReplaceAll(criterion, "_", " "), " ")
		}
		if matchesAny(text, keywords) {
			return true, criterion
		}
	}
	return false, ""
}

func matchesExclusion(text string, criteria []string) bool {
	for _, criterion := range criteria {
		keywords, ok := exclusionKeywords[criterion]
		if !ok {
			keywords = strings.Split(strings.ReplaceAll(criterion, "_", " "), " ")
		}
		if matchesAny(text, keywords) {
			return true
		}
	}
	return false
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// extractTopics returns the inclusion criteria whose space-separated form
// appears verbatim in the user message.
func extractTopics(userMessage string, criteria []string) []string {
	lower := strings.ToLower(userMessage)
	var topics []string
	for _, criterion := range criteria {
		if strings.Contains(lower, strings.ReplaceAll(criterion, "_", " ")) {
			topics = append(topics, criterion)
		}
	}
	return topics
}

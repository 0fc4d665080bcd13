package catalog

import "hivemind-hq/scribe/pkg/spaces"

// Template is a named, immutable policy default.
type Template struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Policy      spaces.Policy `yaml:"policy"`
}

// CustomTemplateID is the fallback template: share nothing automatically
// beyond a general relevance match, no exclusions, medium detail.
const CustomTemplateID = "custom"

// builtinTemplates returns the templates compiled into the binary.
func builtinTemplates() []Template {
	return []Template{
		{
			ID:          "close-relationship",
			Name:        "Close Relationship",
			Description: "For partners. Shares emotional state and shared plans, never work or money specifics.",
			Policy: spaces.Policy{
				InclusionCriteria: []string{
					"emotional_state",
					"relationship_topic",
					"shared_planning",
					"support_needed",
				},
				ExclusionCriteria: []string{
					"work_details",
					"third_party_conversations",
					"financial_specifics",
					"health_diagnoses",
				},
				Transformation: spaces.TransformationRules{
					RemoveNames:           true,
					RemoveOrganizations:   true,
					GeneralizeSituations:  true,
					PreserveEmotionalTone: true,
					DetailLevel:           spaces.DetailMedium,
					CustomPrompt:          "Preserve emotional context but generalize specific situations.",
				},
				Attribution:              spaces.AttributionFull,
				TriggerKeywords:          []string{"partner", "relationship", "weekend", "plans together"},
				AutoApproveThreshold:     0.7,
				MandatoryApprovalCeiling: 0.85,
				RequireApprovalIf: []string{
					`sensitivity > 0.6`,
					`topics.exists(t, t == "conflict")`,
				},
				HighSensitivityTopics: []string{"infidelity", "separation", "major_conflict"},
			},
		},
		{
			ID:          "team",
			Name:        "Team Blockers & Progress",
			Description: "For work teams. Shares progress and blockers, keeps names, drops proprietary detail.",
			Policy: spaces.Policy{
				InclusionCriteria: []string{
					"work_progress",
					"blockers",
					"help_needed",
					"collaboration_opportunity",
					"learning",
				},
				ExclusionCriteria: []string{
					"proprietary_details",
					"personal_relationships",
					"health_info",
					"financial_details",
				},
				Transformation: spaces.TransformationRules{
					PreserveEmotionalTone: true,
					DetailLevel:           spaces.DetailHigh,
					CustomPrompt:          "Keep technical details, remove sensitive business info.",
				},
				Attribution:              spaces.AttributionFull,
				TriggerKeywords:          []string{"team", "project", "help", "blocker"},
				AutoApproveThreshold:     0.6,
				MandatoryApprovalCeiling: 0.85,
				RequireApprovalIf: []string{
					`sensitivity > 0.5`,
					`topics.exists(t, t == "proprietary")`,
				},
			},
		},
		{
			ID:          "public-broadcast",
			Name:        "Public Broadcast",
			Description: "For public feeds. Shares generalizable insights stripped of all personal context.",
			Policy: spaces.Policy{
				InclusionCriteria: []string{
					"technical_insight",
					"career_advice",
					"learning_discovery",
					"creative_breakthrough",
					"useful_pattern",
				},
				ExclusionCriteria: []string{
					"personal_details",
					"names",
					"companies",
					"locations",
					"financial_info",
					"health_info",
					"relationship_details",
				},
				Transformation: spaces.TransformationRules{
					RemoveNames:          true,
					RemoveLocations:      true,
					RemoveOrganizations:  true,
					GeneralizeSituations: true,
					DetailLevel:          spaces.DetailLow,
					CustomPrompt:         "Extract the general principle or insight. Remove all personal context.",
				},
				Attribution:              spaces.AttributionPseudonym,
				TriggerKeywords:          []string{"learning", "exploring"},
				AutoApproveThreshold:     0.8,
				MandatoryApprovalCeiling: 0.7,
				RequireApprovalIf: []string{
					`sensitivity > 0.4`,
				},
			},
		},
		{
			ID:          "support-circle",
			Name:        "Support Circle",
			Description: "For support groups. Shares struggles and needs while protecting identifying details.",
			Policy: spaces.Policy{
				InclusionCriteria: []string{
					"support_needed",
					"emotional_state",
					"help_needed",
				},
				ExclusionCriteria: []string{
					"third_party_conversations",
					"financial_specifics",
				},
				Transformation: spaces.TransformationRules{
					RemoveNames:           true,
					RemoveLocations:       true,
					RemoveOrganizations:   true,
					PreserveEmotionalTone: true,
					DetailLevel:           spaces.DetailMedium,
					CustomPrompt:          "Focus on feelings and needs, keep enough context for others to offer support.",
				},
				Attribution:              spaces.AttributionPseudonym,
				AutoApproveThreshold:     0.7,
				MandatoryApprovalCeiling: 0.8,
				RequireApprovalIf: []string{
					`sensitivity > 0.6`,
				},
			},
		},
		{
			ID:          "full-context",
			Name:        "Full Context, Private Names",
			Description: "For close friends. Keeps the whole story, anonymizes people and organizations.",
			Policy: spaces.Policy{
				InclusionCriteria: []string{
					"relationship_topic",
					"shared_planning",
					"emotional_state",
				},
				Transformation: spaces.TransformationRules{
					RemoveNames:           true,
					RemoveLocations:       true,
					RemoveOrganizations:   true,
					PreserveEmotionalTone: true,
					DetailLevel:           spaces.DetailHigh,
					CustomPrompt:          "Keep everything, replace names and organizations with placeholders.",
				},
				Attribution:              spaces.AttributionFull,
				AutoApproveThreshold:     0.7,
				MandatoryApprovalCeiling: 0.9,
			},
		},
		{
			ID:          "minimal-filter",
			Name:        "Minimal Filtering",
			Description: "For trusted circles. Only strips financial specifics and trade secrets.",
			Policy: spaces.Policy{
				InclusionCriteria: []string{"general"},
				ExclusionCriteria: []string{
					"financial_specifics",
					"proprietary_details",
				},
				Transformation: spaces.TransformationRules{
					PreserveEmotionalTone: true,
					DetailLevel:           spaces.DetailHigh,
				},
				Attribution:              spaces.AttributionFull,
				AutoApproveThreshold:     0.8,
				MandatoryApprovalCeiling: 0.9,
			},
		},
		{
			ID:          CustomTemplateID,
			Name:        "Custom",
			Description: "Start from scratch.",
			Policy: spaces.Policy{
				InclusionCriteria: []string{"general"},
				Transformation: spaces.TransformationRules{
					RemoveNames:           true,
					RemoveLocations:       true,
					RemoveOrganizations:   true,
					GeneralizeSituations:  true,
					PreserveEmotionalTone: true,
					DetailLevel:           spaces.DetailMedium,
				},
				Attribution:              spaces.AttributionFull,
				AutoApproveThreshold:     0.7,
				MandatoryApprovalCeiling: 0.8,
			},
		},
	}
}

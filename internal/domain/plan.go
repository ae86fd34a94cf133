package domain

import (
	"fmt"
	"strings"
)

type Plan string

const (
	PlanCommunity Plan = "community"
	PlanBeta      Plan = "beta"
)

const Unlimited = -1

type Feature string

const (
	FeatureBasicActions       Feature = "basic_actions"
	FeatureWorkflows          Feature = "workflows"
	FeatureHistory            Feature = "history"
	FeatureUnlimitedWorkflows Feature = "unlimited_workflows"
	FeatureNoWatermark        Feature = "no_watermark"
	FeatureAdvancedActions    Feature = "advanced_actions"
	FeatureScheduling         Feature = "scheduling"
	FeatureExport             Feature = "export"
	FeaturePrioritySupport    Feature = "priority_support"
)

type UsageLimit struct {
	MaxActions  int `json:"maxActions"`
	MaxSessions int `json:"maxSessions"`
}

type PlanDetails struct {
	Plan          Plan       `json:"plan"`
	Name          string     `json:"name"`
	PriceUSD      float64    `json:"priceUsd"`
	Features      []Feature  `json:"features"`
	Watermark     bool       `json:"watermark"`
	WorkflowLimit int        `json:"workflowLimit"`
	Usage         UsageLimit `json:"usage"`
}

var planCatalog = map[Plan]PlanDetails{
	PlanCommunity: {
		Plan:          PlanCommunity,
		Name:          "Community",
		PriceUSD:      0,
		Features:      []Feature{FeatureBasicActions, FeatureWorkflows, FeatureHistory},
		Watermark:     true,
		WorkflowLimit: 3,
		Usage:         UsageLimit{MaxActions: 500, MaxSessions: 10},
	},
	PlanBeta: {
		Plan:     PlanBeta,
		Name:     "Beta",
		PriceUSD: 10,
		Features: []Feature{
			FeatureBasicActions,
			FeatureWorkflows,
			FeatureHistory,
			FeatureUnlimitedWorkflows,
			FeatureNoWatermark,
			FeatureAdvancedActions,
			FeatureScheduling,
			FeatureExport,
			FeaturePrioritySupport,
		},
		Watermark:     false,
		WorkflowLimit: Unlimited,
		Usage:         UsageLimit{MaxActions: Unlimited, MaxSessions: Unlimited},
	},
}

// ParsePlan accepts the current plan names and the legacy free/premium/unlimited synonyms.
func ParsePlan(raw string) (Plan, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "community", "free":
		return PlanCommunity, nil
	case "beta", "premium", "unlimited":
		return PlanBeta, nil
	default:
		return "", fmt.Errorf("unknown plan %q", raw)
	}
}

func (p Plan) Valid() bool {
	_, ok := planCatalog[p]
	return ok
}

func (p Plan) Details() PlanDetails {
	details, ok := planCatalog[p]
	if !ok {
		details = planCatalog[PlanCommunity]
	}

	features := make([]Feature, len(details.Features))
	copy(features, details.Features)
	details.Features = features

	return details
}

func (p Plan) Allows(feature Feature) bool {
	for _, allowed := range p.Details().Features {
		if allowed == feature {
			return true
		}
	}
	return false
}

func (l UsageLimit) Allows(actions, sessions int) bool {
	if l.MaxActions != Unlimited && actions > l.MaxActions {
		return false
	}
	if l.MaxSessions != Unlimited && sessions > l.MaxSessions {
		return false
	}
	return true
}

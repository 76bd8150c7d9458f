package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"llmrelay/pkg/provider/descriptor"
)

// QualityPriority weights how a ModelRecommendation's confidence score is
// computed. Grounded on original_source/src/models/capability_detection.rs's
// QualityPriority enum.
type QualityPriority int

const (
	PrioritySpeed QualityPriority = iota
	PriorityCost
	PriorityQuality
	PriorityBalanced
)

// TaskType classifies the kind of work a request represents. Recommend does
// not read it: every candidate is offered with its provider's DefaultModel.
type TaskType int

const (
	TaskConversational TaskType = iota
	TaskCodeGeneration
	TaskDocumentAnalysis
	TaskCreativeWriting
	TaskReasoning
	TaskTranslation
	TaskSummarization
	TaskQuestionAnswering
)

// TaskRequirements describes what a caller needs from a model, used by the
// Capability Detector to rank registered adapters.
type TaskRequirements struct {
	TaskType                TaskType
	MaxTokensNeeded         int
	RequiresStreaming       bool
	RequiresFunctionCalling bool
	RequiresVision          bool
	MaxCostPerRequest       decimal.Decimal
	MaxResponseTimeMs       int64
	QualityPriority         QualityPriority
}

// ModelRecommendation is one ranked candidate returned by Recommend.
type ModelRecommendation struct {
	Provider             string
	Model                string
	Confidence           float64
	EstimatedCost        decimal.Decimal
	EstResponseMs        int64
	CapabilityMatch      float64
	Reasoning            string
}

// CapabilityDetector ranks registered adapters against TaskRequirements.
// Grounded on original_source/src/models/capability_detection.rs, re-expressed
// against Registry/ProviderDescriptor instead of a Rust trait object map.
type CapabilityDetector struct {
	registry *Registry
}

func NewCapabilityDetector(registry *Registry) *CapabilityDetector {
	return &CapabilityDetector{registry: registry}
}

// Recommend produces a descending-confidence list of recommendations,
// skipping adapters that fail a hard requirement or a cost/latency ceiling.
func (d *CapabilityDetector) Recommend(ctx context.Context, req TaskRequirements) []ModelRecommendation {
	var out []ModelRecommendation
	for _, entry := range d.registry.All() {
		desc := entry.Descriptor
		if !desc.Enabled {
			continue
		}
		if status := entry.Client.HealthCheck(ctx); !status.Healthy {
			continue
		}

		match := capabilityMatch(desc.Capabilities, req)
		if match <= 0 {
			continue
		}

		model := desc.DefaultModel
		estCost := estimateCost(desc.Pricing, model, req.MaxTokensNeeded)
		if !req.MaxCostPerRequest.IsZero() && estCost.GreaterThan(req.MaxCostPerRequest) {
			continue
		}

		respMs := int64(desc.Performance.AvgResponseMs)
		if req.MaxResponseTimeMs > 0 && respMs > req.MaxResponseTimeMs {
			continue
		}

		confidence := confidenceScore(req.QualityPriority, match, estCost, respMs, desc.Performance.SuccessRate, desc.Performance.QualityScore)
		out = append(out, ModelRecommendation{
			Provider:        desc.Name,
			Model:           model,
			Confidence:      confidence,
			EstimatedCost:   estCost,
			EstResponseMs:   respMs,
			CapabilityMatch: match,
			Reasoning:       reasoning(desc.Name, model, match, estCost, respMs, req.QualityPriority),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func capabilityMatch(caps descriptor.Capabilities, req TaskRequirements) float64 {
	score, checks := 0.0, 0.0

	checks++
	if req.RequiresStreaming {
		if !caps.SupportsStreaming {
			return 0
		}
		score++
	} else {
		score++
	}

	checks++
	if req.RequiresFunctionCalling {
		if !caps.SupportsFunctionCalling {
			return 0
		}
		score++
	} else {
		score++
	}

	checks++
	if req.RequiresVision {
		if !caps.SupportsVision {
			return 0
		}
		score++
	} else {
		score++
	}

	checks++
	if req.MaxTokensNeeded > 0 {
		if caps.MaxContextTokens >= req.MaxTokensNeeded {
			score++
		} else {
			score += float64(caps.MaxContextTokens) / float64(req.MaxTokensNeeded)
		}
	} else {
		score++
	}

	return score / checks
}

func estimateCost(pricing descriptor.PricingTable, model string, maxTokens int) decimal.Decimal {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return pricing.EstimateCost(model, maxTokens/2, maxTokens/2)
}

func confidenceScore(priority QualityPriority, match float64, cost decimal.Decimal, respMs int64, successRate, qualityScore float64) float64 {
	costFloat, _ := cost.Float64()
	costScore := 0.8
	if costFloat > 0 {
		costScore = max(1.0/(1.0+costFloat*100.0), 0.1)
	}
	speedScore := max(1.0/(1.0+float64(respMs)/1000.0/10.0), 0.1)

	switch priority {
	case PrioritySpeed:
		return 0.1*match + 0.1*costScore + 0.6*speedScore + 0.2*successRate
	case PriorityCost:
		return 0.1*match + 0.6*costScore + 0.1*speedScore + 0.2*successRate
	case PriorityQuality:
		return 0.3*match + 0.1*costScore + 0.1*speedScore + 0.5*qualityScore
	default:
		return 0.25*match + 0.25*costScore + 0.25*speedScore + 0.25*successRate
	}
}

func reasoning(provider, model string, match float64, cost decimal.Decimal, respMs int64, priority QualityPriority) string {
	label := map[QualityPriority]string{
		PrioritySpeed:    "optimized for speed",
		PriorityCost:     "optimized for cost efficiency",
		PriorityQuality:  "optimized for quality",
		PriorityBalanced: "balanced optimization",
	}[priority]
	return fmt.Sprintf("%s %s - capability match: %.0f%%, estimated cost: $%s, expected response time: %dms, %s",
		provider, model, match*100, cost.StringFixed(4), respMs, label)
}

package impact

import (
	"fmt"
	"strings"
)

// RiskLevel is the outcome of scoring a change.
type RiskLevel string

// Risk levels, lowest first.
const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels; higher is riskier.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

const (
	criticalThresholdCritical = 5
	criticalThresholdHigh     = 2
	criticalThresholdMedium   = 0

	downstreamThresholdCritical = 50
	downstreamThresholdHigh     = 20
	downstreamThresholdMedium   = 5

	// batchingThreshold is the downstream count above which batching is
	// always recommended.
	batchingThreshold = 10
	// deepChainThreshold is the traversal depth above which a chain is deep.
	deepChainThreshold = 3
)

// criticalTypeMarkers mark entity types whose breakage is user visible.
var criticalTypeMarkers = []string{"production", "report", "dashboard", "api", "export"}

// AssessRisk scores a change. The first matching rule wins, so the result
// never decreases as either count grows.
func AssessRisk(criticalCount, downstreamCount int) RiskLevel {
	switch {
	case criticalCount > criticalThresholdCritical || downstreamCount > downstreamThresholdCritical:
		return RiskCritical
	case criticalCount > criticalThresholdHigh || downstreamCount > downstreamThresholdHigh:
		return RiskHigh
	case criticalCount > criticalThresholdMedium || downstreamCount > downstreamThresholdMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// IsCritical reports why a downstream entity at depth is critical, or "".
func IsCritical(entityType string, depth int) string {
	lower := strings.ToLower(entityType)
	for _, marker := range criticalTypeMarkers {
		if strings.Contains(lower, marker) {
			return "entity type matches " + marker
		}
	}
	if depth == 1 {
		return "direct dependency"
	}
	return ""
}

// RiskFactors describes what drove the score.
func RiskFactors(criticalCount, downstreamCount, maxDepth int) []string {
	var factors []string

	switch {
	case downstreamCount > downstreamThresholdCritical:
		factors = append(factors, fmt.Sprintf("very large number of downstream dependencies (%d)", downstreamCount))
	case downstreamCount > downstreamThresholdHigh:
		factors = append(factors, fmt.Sprintf("large number of downstream dependencies (%d)", downstreamCount))
	case downstreamCount > downstreamThresholdMedium:
		factors = append(factors, fmt.Sprintf("moderate number of downstream dependencies (%d)", downstreamCount))
	case downstreamCount > 0:
		factors = append(factors, fmt.Sprintf("few downstream dependencies (%d)", downstreamCount))
	default:
		factors = append(factors, "no downstream dependencies")
	}

	if criticalCount > 0 {
		factors = append(factors, fmt.Sprintf("%d critical downstream dependencies", criticalCount))
	}
	if maxDepth > deepChainThreshold {
		factors = append(factors, fmt.Sprintf("deep dependency chain (depth %d)", maxDepth))
	}
	return factors
}

var recommendations = map[RiskLevel][]string{
	RiskCritical: {
		"schedule during maintenance window",
		"notify downstream owners",
		"prepare rollback",
		"require change approval",
	},
	RiskHigh: {
		"notify downstream owners",
		"test critical dependencies before release",
		"prepare rollback",
	},
	RiskMedium: {
		"review downstream dependencies",
		"test critical dependencies",
	},
	RiskLow: {
		"proceed with standard change process",
	},
}

// Recommendations returns the advice for level. Above ten downstream
// entities batching is recommended regardless of level.
func Recommendations(level RiskLevel, downstreamCount int) []string {
	out := append([]string(nil), recommendations[level]...)
	if downstreamCount > batchingThreshold {
		out = append(out, "consider batching changes")
	}
	return out
}

package impact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessRisk(t *testing.T) {
	tests := []struct {
		name       string
		critical   int
		downstream int
		want       RiskLevel
	}{
		{name: "nothing", want: RiskLow},
		{name: "few downstream", downstream: 5, want: RiskLow},
		{name: "one critical", critical: 1, downstream: 1, want: RiskMedium},
		{name: "six downstream", downstream: 6, want: RiskMedium},
		{name: "three critical", critical: 3, downstream: 3, want: RiskHigh},
		{name: "twenty one downstream", downstream: 21, want: RiskHigh},
		{name: "six critical", critical: 6, downstream: 6, want: RiskCritical},
		{name: "fifty one downstream", downstream: 51, want: RiskCritical},
		{name: "boundary fifty", downstream: 50, want: RiskHigh},
		{name: "boundary twenty", downstream: 20, want: RiskMedium},
		{name: "boundary five critical", critical: 5, downstream: 5, want: RiskHigh},
		{name: "boundary two critical", critical: 2, downstream: 2, want: RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssessRisk(tt.critical, tt.downstream))
		})
	}
}

func TestAssessRisk_Monotone(t *testing.T) {
	for c := 0; c <= 10; c++ {
		for d := 0; d <= 60; d++ {
			level := AssessRisk(c, d).Rank()
			assert.LessOrEqual(t, level, AssessRisk(c+1, d).Rank(), "critical %d -> %d at downstream %d", c, c+1, d)
			assert.LessOrEqual(t, level, AssessRisk(c, d+1).Rank(), "downstream %d -> %d at critical %d", d, d+1, c)
		}
	}
}

func TestIsCritical(t *testing.T) {
	tests := []struct {
		entityType string
		depth      int
		critical   bool
	}{
		{entityType: "production_table", depth: 3, critical: true},
		{entityType: "Sales_Report", depth: 2, critical: true},
		{entityType: "DASHBOARD", depth: 4, critical: true},
		{entityType: "public_api", depth: 2, critical: true},
		{entityType: "csv_export", depth: 9, critical: true},
		{entityType: "staging", depth: 1, critical: true},
		{entityType: "staging", depth: 2, critical: false},
		{entityType: "dataset", depth: 3, critical: false},
	}
	for _, tt := range tests {
		t.Run(tt.entityType, func(t *testing.T) {
			assert.Equal(t, tt.critical, IsCritical(tt.entityType, tt.depth) != "")
		})
	}
}

func TestRiskFactors(t *testing.T) {
	assert.Equal(t, []string{"no downstream dependencies"}, RiskFactors(0, 0, 0))

	factors := RiskFactors(2, 25, 4)
	assert.Equal(t, []string{
		"large number of downstream dependencies (25)",
		"2 critical downstream dependencies",
		"deep dependency chain (depth 4)",
	}, factors)

	assert.Contains(t, RiskFactors(0, 60, 1)[0], "very large")
	assert.Contains(t, RiskFactors(0, 6, 1)[0], "moderate")
	assert.Contains(t, RiskFactors(0, 3, 3)[0], "few")
	assert.Len(t, RiskFactors(0, 3, 3), 1)
}

func TestRecommendations(t *testing.T) {
	crit := Recommendations(RiskCritical, 0)
	assert.Contains(t, crit, "schedule during maintenance window")
	assert.Contains(t, crit, "notify downstream owners")
	assert.Contains(t, crit, "prepare rollback")
	assert.NotContains(t, crit, "consider batching changes")

	for _, level := range []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical} {
		assert.NotEmpty(t, Recommendations(level, 0), level)
		assert.Equal(t, "consider batching changes", last(Recommendations(level, 11)), level)
		assert.NotContains(t, Recommendations(level, 10), "consider batching changes", level)
	}

	// The table itself must not be modified by appends.
	_ = Recommendations(RiskLow, 100)
	assert.NotContains(t, Recommendations(RiskLow, 0), "consider batching changes")
}

func last(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

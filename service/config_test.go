package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeConceptKey(t *testing.T) {
	assert.Equal(t, "rent stabilization law", normalizeConceptKey("  Rent   Stabilization\tLaw "))
	assert.Equal(t, "rsl", normalizeConceptKey("RSL"))
	assert.Equal(t, "", normalizeConceptKey("   "))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESOLVER_AUTO_MERGE_THRESHOLD", "0.9")
	t.Setenv("RESOLVER_TOP_K", "5")
	t.Setenv("RESOLVER_JUDGMENT_THRESHOLD", "not a number")

	s := NewResolverService()
	assert.Equal(t, 0.9, s.autoMergeThreshold)
	assert.Equal(t, 5, s.topK)
	assert.Equal(t, 0.70, s.judgmentThreshold, "unparseable values fall back to the default")
}

func TestDistanceToScore(t *testing.T) {
	assert.InDelta(t, 1.0, distanceToScore(0.0), 1e-9)
	assert.InDelta(t, 0.3, distanceToScore(0.7), 1e-9)
	assert.Equal(t, 0.0, distanceToScore(1.8), "opposite vectors clamp to zero")
}

package stubllm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal-service/models"
	"appraisal-service/parser"
)

func TestStubIsDeterministic(t *testing.T) {
	c := New()

	first, err := c.Invoke(context.Background(), []string{"http://a/1"}, "notes", models.TierFull)
	require.NoError(t, err)
	second, err := c.Invoke(context.Background(), []string{"http://a/1"}, "notes", models.TierFull)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStubOutputParsesAsFencedJSON(t *testing.T) {
	c := New()

	for _, tier := range []models.Tier{models.TierBasic, models.TierInitial, models.TierFull} {
		raw, err := c.Invoke(context.Background(), []string{"http://a/1", "http://a/2"}, "", tier)
		require.NoError(t, err)

		report, strategy := parser.Normalize(raw, tier)
		assert.Equal(t, parser.StrategyFencedJSON, strategy, "tier %s", tier)
		assert.NotEqual(t, models.Unknown, report.Identification.ObjectType)
	}
}

func TestStubRequiresImages(t *testing.T) {
	_, err := New().Invoke(context.Background(), nil, "", models.TierBasic)

	assert.Error(t, err)
}

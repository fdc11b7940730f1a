package advisory

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curalink-advisory/internal/conditions"
	"github.com/curalink-advisory/internal/domain"
)

func TestCacheKey(t *testing.T) {
	key := CacheKey(domain.ConditionQuery{Text: "Brain Cancer"})

	assert.True(t, strings.HasPrefix(key, "advisory:condition:"))
	assert.Len(t, strings.TrimPrefix(key, "advisory:condition:"), 64)
	assert.Equal(t, key, CacheKey(domain.ConditionQuery{Text: "  brain\tcancer "}))
	assert.NotEqual(t, key, CacheKey(domain.ConditionQuery{Text: "lung cancer"}))

	// identical content in different variants never collides
	research := CacheKey(domain.NewResearchQuery([]string{"x"}, nil, ""))
	trial := CacheKey(domain.TrialSummaryQuery{Title: "x"})
	assert.NotEqual(t, research, trial)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := newMemoryCache(2, time.Minute, time.Now)
	require.NoError(t, err)

	c.set("a", &domain.ConditionResult{PrimaryCondition: "A"})
	c.set("b", &domain.ConditionResult{PrimaryCondition: "B"})
	_, _ = c.get("a")
	c.set("c", &domain.ConditionResult{PrimaryCondition: "C"})

	_, ok := c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestMemoryCache_Defaults(t *testing.T) {
	c, err := newMemoryCache(0, 0, time.Now)
	require.NoError(t, err)
	assert.Equal(t, DefaultCacheTTL, c.ttl)
}

func TestFallback_Research(t *testing.T) {
	r := researchFallback(domain.NewResearchQuery([]string{"Oncology"}, []string{"Immunotherapy"}, ""))

	require.Len(t, r.Suggestions, 2)
	assert.Equal(t, "Oncology", r.Suggestions[0].CollaboratorArea)
	assert.Equal(t, "Immunotherapy", r.Suggestions[1].CollaboratorArea)
	assert.True(t, r.Fallback)

	generic := researchFallback(domain.ResearchQuery{})
	require.Len(t, generic.Suggestions, 3)
	assert.Equal(t, "Consider interdisciplinary collaborations", generic.Suggestions[0].CollaboratorArea)
	assert.Equal(t, []string{"rationale"}, generic.Missing)
	assert.Empty(t, r.Missing)
}

func TestFallback_Trial(t *testing.T) {
	r := trialFallback(domain.TrialSummaryQuery{Description: "A study of sleep."})

	assert.Equal(t, "This trial studies the condition described. Contact the research team for more details.", r.Summary)
	assert.Equal(t, []string{"eligibilityHighlights"}, r.Missing)
}

func TestFallback_ConditionWithoutVocabularyMatch(t *testing.T) {
	r := conditionFallback(domain.ConditionQuery{Text: "persistent cough"}, conditions.NewProcessor())

	assert.Equal(t, "Persistent Cough", r.PrimaryCondition)
	assert.Empty(t, r.SuggestedSpecialties)
	assert.ElementsMatch(t, []string{"possibleCauses", "suggestedSpecialties", "confidence"}, r.Missing)
}

func TestFallback_IsDeterministic(t *testing.T) {
	proc := conditions.NewProcessor()
	q := domain.ConditionQuery{Text: "heart attack and diabetes"}

	assert.Equal(t, fallback(q, proc), fallback(q, proc))
}

func TestRedisTier(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	sender := &fakeSender{reply: brainCancerReply}
	query := domain.ConditionQuery{Text: "redis tier " + time.Now().Format(time.RFC3339Nano)}
	defer client.Del(ctx, CacheKey(query))

	a := createTestService(t, sender, WithRedis(client))
	b := createTestService(t, sender, WithRedis(client))

	_, err = a.Advise(ctx, query)
	require.NoError(t, err)
	result, err := b.Advise(ctx, query)
	require.NoError(t, err)

	assert.Equal(t, int32(1), sender.calls.Load())
	assert.Equal(t, domain.SourceCache, result.Meta().Source)
	assert.True(t, b.Status().RedisEnabled)
}

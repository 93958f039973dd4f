package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liftoffhq/liftoff/internal/core/kv"
	"github.com/liftoffhq/liftoff/internal/core/workitem"
)

func TestRuleResolver_AppliesRuleTable(t *testing.T) {
	rules := map[string][]string{
		"Deploy the service": {"Build the service"},
	}
	resolver := NewRuleResolver(rules)

	items := []workitem.Item{
		{Title: "Build the service", Priority: workitem.PriorityHigh},
		{Title: "deploy THE service", Priority: workitem.PriorityMedium},
		{Title: "Unrelated task", Priority: workitem.PriorityLow},
	}

	out, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.Empty(t, out[0].DependsOn)
	assert.Equal(t, []string{"Build the service"}, out[1].DependsOn, "rule lookup is case-insensitive")
	assert.Empty(t, out[2].DependsOn)

	// The input batch is never mutated.
	assert.Empty(t, items[1].DependsOn)
}

func TestRuleResolver_KeepsExplicitDependencies(t *testing.T) {
	rules := map[string][]string{
		"Deploy the service": {"Build the service"},
	}
	resolver := NewRuleResolver(rules)

	items := []workitem.Item{
		{Title: "Deploy the service", Priority: workitem.PriorityMedium, DependsOn: []string{"Something else"}},
	}

	out, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, []string{"Something else"}, out[0].DependsOn)
}

func TestRuleResolver_NilTableUsesSeedRules(t *testing.T) {
	resolver := NewRuleResolver(nil)

	out, err := resolver.Resolve(context.Background(), workitem.Plan("demo"))
	require.NoError(t, err)

	byTitle := make(map[string][]string)
	for _, item := range out {
		byTitle[item.Title] = item.DependsOn
	}

	assert.Equal(t, []string{workitem.TitleRepoSetup}, byTitle[workitem.TitleDBSchema])
	assert.ElementsMatch(t,
		[]string{workitem.TitleAPISkeleton, workitem.TitleDBSchema},
		byTitle[workitem.TitleAuth])
	assert.Empty(t, byTitle[workitem.TitleRepoSetup])
}

func TestInferenceResolver_ParsesReply(t *testing.T) {
	completions := &mockCompletions{
		reply: `[
			{"title": "Build API", "dependencies": ["Set up schema"]},
			{"title": "Set up schema", "dependencies": []}
		]`,
	}
	resolver := NewInferenceResolver(completions, NewRuleResolver(map[string][]string{}), nil)

	items := []workitem.Item{
		{Title: "Set up schema", Description: "Model the entities.", Priority: workitem.PriorityHigh},
		{Title: "Build API", Priority: workitem.PriorityMedium},
	}

	out, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.Empty(t, out[0].DependsOn)
	assert.Equal(t, []string{"Set up schema"}, out[1].DependsOn)

	// The prompt carries every title and description.
	require.Len(t, completions.prompts, 1)
	assert.Contains(t, completions.prompts[0], "Build API")
	assert.Contains(t, completions.prompts[0], "Model the entities.")
}

func TestInferenceResolver_AcceptsFencedReply(t *testing.T) {
	completions := &mockCompletions{
		reply: "```json\n[{\"title\": \"Build API\", \"dependencies\": [\"Set up schema\"]}]\n```",
	}
	resolver := NewInferenceResolver(completions, NewRuleResolver(map[string][]string{}), nil)

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
		{Title: "Build API", Priority: workitem.PriorityMedium},
	}

	out, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, []string{"Set up schema"}, out[1].DependsOn)
}

func TestInferenceResolver_DropsInventedAndSelfDependencies(t *testing.T) {
	completions := &mockCompletions{
		reply: `[
			{"title": "Ghost task", "dependencies": ["Build API"]},
			{"title": "Build API", "dependencies": ["Build API", "Set up schema"]}
		]`,
	}
	resolver := NewInferenceResolver(completions, NewRuleResolver(map[string][]string{}), nil)

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
		{Title: "Build API", Priority: workitem.PriorityMedium},
	}

	out, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, []string{"Set up schema"}, out[1].DependsOn, "self-dependency is dropped")
	for _, item := range out {
		assert.NotEqual(t, "Ghost task", item.Title)
	}
}

func TestInferenceResolver_FallsBackToRulesOnCallFailure(t *testing.T) {
	rules := NewRuleResolver(nil)
	completions := &mockCompletions{err: errors.New("completion: status 429")}
	resolver := NewInferenceResolver(completions, rules, nil)

	items := workitem.Plan("demo")

	got, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err, "inference failure must not fail resolution")

	want, err := rules.Resolve(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, want, got, "fallback output must match pure rule resolution")
}

func TestInferenceResolver_FallsBackToRulesOnMalformedReply(t *testing.T) {
	rules := NewRuleResolver(nil)
	completions := &mockCompletions{reply: "I think the schema should come first."}
	resolver := NewInferenceResolver(completions, rules, nil)

	items := workitem.Plan("demo")

	got, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)

	want, err := rules.Resolve(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestInferenceResolver_CachesPerBatch(t *testing.T) {
	completions := &mockCompletions{
		reply: `[{"title": "Build API", "dependencies": ["Set up schema"]}]`,
	}
	cache := kv.Scoped[map[string][]string](newMemKV(), "inference")
	resolver := NewInferenceResolver(completions, NewRuleResolver(map[string][]string{}), cache)

	items := []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
		{Title: "Build API", Priority: workitem.PriorityMedium},
	}

	first, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, completions.prompts, 1, "the second resolution hits the cache")

	// A different batch misses the cache.
	_, err = resolver.Resolve(context.Background(), []workitem.Item{
		{Title: "Set up schema", Priority: workitem.PriorityHigh},
		{Title: "Build API", Description: "Different description.", Priority: workitem.PriorityMedium},
	})
	require.NoError(t, err)
	assert.Len(t, completions.prompts, 2)
}

func TestInferenceResolver_EmptyBatch(t *testing.T) {
	completions := &mockCompletions{}
	resolver := NewInferenceResolver(completions, NewRuleResolver(nil), nil)

	out, err := resolver.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Empty(t, completions.prompts)
}

package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/clients/completion"
	"github.com/liftoffhq/liftoff/internal/core/kv"
	"github.com/liftoffhq/liftoff/internal/core/logging"
	"github.com/liftoffhq/liftoff/internal/core/workitem"
)

// Resolver determines which work items depend on which before anything is
// created remotely.
type Resolver interface {
	Resolve(ctx context.Context, items []workitem.Item) ([]workitem.Item, error)
}

// CompletionService produces a completion for a prompt.
type CompletionService interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
}

// RuleResolver maps known item titles to fixed dependency lists. Unknown
// titles resolve to no dependencies. Explicit dependencies from a plan file
// are left alone.
type RuleResolver struct {
	rules map[string][]string
}

// NewRuleResolver builds a resolver from a rule table keyed by item title.
// A nil table uses the seed plan rules.
func NewRuleResolver(rules map[string][]string) *RuleResolver {
	if rules == nil {
		rules = workitem.Rules()
	}
	normalized := make(map[string][]string, len(rules))
	for title, deps := range rules {
		normalized[workitem.NormalizeTitle(title)] = deps
	}
	return &RuleResolver{rules: normalized}
}

// Resolve returns a copy of items with dependencies filled in from the rule table.
func (r *RuleResolver) Resolve(ctx context.Context, items []workitem.Item) ([]workitem.Item, error) {
	out := make([]workitem.Item, len(items))
	copy(out, items)

	for i := range out {
		if len(out[i].DependsOn) > 0 {
			continue
		}
		if deps, ok := r.rules[workitem.NormalizeTitle(out[i].Title)]; ok {
			out[i].DependsOn = append([]string(nil), deps...)
		}
	}
	return out, nil
}

// inferenceCacheTTL bounds how long a batch's inferred dependencies are reused.
const inferenceCacheTTL = 24 * time.Hour

// InferenceResolver asks the completion service to infer dependencies from
// item titles and descriptions. Inference is all-or-nothing: any call or
// parse failure falls back to the rule table for the entire batch, so a
// half-inferred graph never reaches the tracker.
type InferenceResolver struct {
	completions CompletionService
	fallback    *RuleResolver
	cache       *kv.TypedKV[map[string][]string]
	log         zerolog.Logger
}

// NewInferenceResolver wires the completion service with a rule fallback.
// The cache may be nil to disable inference caching.
func NewInferenceResolver(completions CompletionService, fallback *RuleResolver, cache *kv.TypedKV[map[string][]string]) *InferenceResolver {
	return &InferenceResolver{
		completions: completions,
		fallback:    fallback,
		cache:       cache,
		log:         logging.Component("resolver"),
	}
}

// Resolve infers dependencies for the batch, falling back to rules on any failure.
func (r *InferenceResolver) Resolve(ctx context.Context, items []workitem.Item) ([]workitem.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	deps, err := r.infer(ctx, items)
	if err != nil {
		r.log.Warn().Err(err).Msg("dependency inference failed, falling back to rules")
		return r.fallback.Resolve(ctx, items)
	}

	out := make([]workitem.Item, len(items))
	copy(out, items)
	for i := range out {
		// Titles absent from the reply mean no dependencies.
		out[i].DependsOn = deps[workitem.NormalizeTitle(out[i].Title)]
	}
	return out, nil
}

func (r *InferenceResolver) infer(ctx context.Context, items []workitem.Item) (map[string][]string, error) {
	key := batchKey(items)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key); err == nil {
			r.log.Debug().Str("key", key).Msg("using cached inference")
			return cached, nil
		}
	}

	reply, err := r.completions.Complete(ctx, completion.Request{Prompt: buildPrompt(items)})
	if err != nil {
		return nil, err
	}

	deps, err := parseInference(reply, items)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.SetTTL(ctx, key, deps, inferenceCacheTTL); err != nil {
			r.log.Warn().Err(err).Msg("failed to cache inference result")
		}
	}

	return deps, nil
}

func buildPrompt(items []workitem.Item) string {
	var b strings.Builder
	b.WriteString("You are planning engineering work. For each work item below, decide which other items must be finished before it can start.\n")
	b.WriteString("Respond with only a JSON array. Each element must be an object with \"title\" and \"dependencies\" (an array of titles from the list). Do not invent titles.\n\n")
	b.WriteString("Work items:\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Title)
		if item.Description != "" {
			fmt.Fprintf(&b, ": %s", item.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// parseInference decodes the model reply. Replies wrapped in markdown code
// fences are accepted. Entries for titles outside the batch are ignored, and
// self-dependencies are dropped.
func parseInference(reply string, items []workitem.Item) (map[string][]string, error) {
	type inferred struct {
		Title        string   `json:"title"`
		Dependencies []string `json:"dependencies"`
	}

	var parsed []inferred
	if err := json.Unmarshal([]byte(stripFences(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("parse inference reply: %w", err)
	}

	known := make(map[string]struct{}, len(items))
	for _, item := range items {
		known[workitem.NormalizeTitle(item.Title)] = struct{}{}
	}

	deps := make(map[string][]string, len(parsed))
	for _, entry := range parsed {
		key := workitem.NormalizeTitle(entry.Title)
		if _, ok := known[key]; !ok {
			continue
		}

		var list []string
		for _, dep := range entry.Dependencies {
			if workitem.NormalizeTitle(dep) == key {
				continue
			}
			list = append(list, dep)
		}
		deps[key] = list
	}
	return deps, nil
}

// stripFences removes a wrapping markdown code fence from a model reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// batchKey hashes the batch so identical plans share a cache entry.
func batchKey(items []workitem.Item) string {
	h := sha256.New()
	for _, item := range items {
		h.Write([]byte(workitem.NormalizeTitle(item.Title)))
		h.Write([]byte{0})
		h.Write([]byte(item.Description))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

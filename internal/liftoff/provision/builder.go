package provision

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/internal/core/logging"
	"github.com/liftoffhq/liftoff/internal/core/workitem"
	"github.com/liftoffhq/liftoff/internal/retry"
)

// RollbackRecorder receives the ID of each remote resource right after it is
// created. *RollbackState implements it; a nil recorder records nothing.
type RollbackRecorder interface {
	RecordItem(id string)
	RecordLabel(id string)
}

// BuildResult summarizes what CreateAll did.
type BuildResult struct {
	CreatedItems  int
	ReusedItems   int
	CreatedLabels int
	Relations     int
	SkippedDeps   int
	StartedTitle  string
}

// Builder creates work items, labels, and blocking relations inside one
// tracker container. Re-running against a container that already holds some
// of the items skips them by title, so a run interrupted halfway can be
// repeated without duplicates.
type Builder struct {
	tracker   TrackerClient
	policy    retry.Policy
	pacer     *Pacer
	recorder  RollbackRecorder
	autoStart bool
	log       zerolog.Logger
}

// NewBuilder returns a Builder. The recorder may be nil for dry runs.
func NewBuilder(tc TrackerClient, policy retry.Policy, pacer *Pacer, recorder RollbackRecorder, autoStart bool) *Builder {
	return &Builder{
		tracker:   tc,
		policy:    policy,
		pacer:     pacer,
		recorder:  recorder,
		autoStart: autoStart,
		log:       logging.Component("builder"),
	}
}

// CreateAll pushes the batch into the tracker: labels first, then items in
// input order, then blocking relations in a second pass once every item ID
// is known. Dependencies that name an unknown title are skipped and logged,
// never fatal. When autoStart is set, the first unblocked item is moved to
// the started state.
func (b *Builder) CreateAll(ctx context.Context, groupID, containerID string, items []workitem.Item) (*BuildResult, error) {
	res := &BuildResult{}

	if cycle := workitem.DetectCycle(items); len(cycle) > 0 {
		b.log.Warn().Strs("titles", cycle).Msg("dependency cycle detected, some relations may be rejected")
	}

	existing, err := retry.DoValue(ctx, b.policy, func(ctx context.Context) ([]tracker.Item, error) {
		return b.tracker.ListItems(ctx, tracker.Filter{GroupID: groupID, ContainerID: containerID})
	})
	if err != nil {
		b.log.Error().Err(err).Msg("failed to list existing items")
		return nil, err
	}

	idsByTitle := make(map[string]string, len(existing)+len(items))
	for _, it := range existing {
		idsByTitle[workitem.NormalizeTitle(it.Title)] = it.ID
	}

	labelIDs, err := b.ensureLabels(ctx, groupID, items, res)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		key := workitem.NormalizeTitle(item.Title)
		if id, ok := idsByTitle[key]; ok {
			b.log.Debug().Str("title", item.Title).Str("item_id", id).Msg("item already exists, skipping")
			res.ReusedItems++
			continue
		}

		in := tracker.ItemInput{
			GroupID:     groupID,
			ContainerID: containerID,
			Title:       item.Title,
			Description: item.Description,
			Priority:    int(item.Priority),
			LabelIDs:    labelIDsFor(item, labelIDs),
		}
		created, err := retry.DoValue(ctx, b.policy, func(ctx context.Context) (tracker.Item, error) {
			return b.tracker.CreateItem(ctx, in)
		})
		if err != nil {
			b.log.Error().Err(err).Str("title", item.Title).Msg("failed to create item")
			return nil, err
		}

		if b.recorder != nil {
			b.recorder.RecordItem(created.ID)
		}
		idsByTitle[key] = created.ID
		res.CreatedItems++
		b.log.Info().Str("title", item.Title).Str("item_id", created.ID).Msg("created item")
		b.pacer.Pause()
	}

	relations, skipped, err := wireRelations(ctx, b.tracker, b.policy, b.pacer, b.log, items, idsByTitle)
	res.Relations = relations
	res.SkippedDeps = skipped
	if err != nil {
		return nil, err
	}

	if b.autoStart {
		started, err := startFirstUnblocked(ctx, b.tracker, b.policy, b.log, items, idsByTitle)
		if err != nil {
			return nil, err
		}
		res.StartedTitle = started
	}

	return res, nil
}

// ensureLabels resolves every label referenced by the batch, creating the
// ones the group does not have yet. Returns label IDs keyed by normalized name.
func (b *Builder) ensureLabels(ctx context.Context, groupID string, items []workitem.Item, res *BuildResult) (map[string]string, error) {
	existing, err := retry.DoValue(ctx, b.policy, func(ctx context.Context) ([]tracker.Label, error) {
		return b.tracker.ListLabels(ctx, groupID)
	})
	if err != nil {
		b.log.Error().Err(err).Msg("failed to list labels")
		return nil, err
	}

	byName := make(map[string]string, len(existing))
	for _, l := range existing {
		byName[normalizeLabel(l.Name)] = l.ID
	}

	for _, item := range items {
		for _, name := range item.Labels {
			key := normalizeLabel(name)
			if _, ok := byName[key]; ok {
				continue
			}

			label, err := retry.DoValue(ctx, b.policy, func(ctx context.Context) (tracker.Label, error) {
				return b.tracker.CreateLabel(ctx, groupID, name)
			})
			if err != nil {
				b.log.Error().Err(err).Str("label", name).Msg("failed to create label")
				return nil, err
			}

			if b.recorder != nil {
				b.recorder.RecordLabel(label.ID)
			}
			byName[key] = label.ID
			res.CreatedLabels++
			b.log.Debug().Str("label", name).Str("label_id", label.ID).Msg("created label")
			b.pacer.Pause()
		}
	}

	return byName, nil
}

func labelIDsFor(item workitem.Item, byName map[string]string) []string {
	if len(item.Labels) == 0 {
		return nil
	}
	ids := make([]string, 0, len(item.Labels))
	for _, name := range item.Labels {
		if id, ok := byName[normalizeLabel(name)]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func normalizeLabel(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// wireRelations creates a blocking relation per resolved dependency.
// Dependencies whose title has no ID are counted and logged, not fatal.
// Shared with the reconciler.
func wireRelations(ctx context.Context, tc TrackerClient, policy retry.Policy, pacer *Pacer, log zerolog.Logger, items []workitem.Item, idsByTitle map[string]string) (created, skipped int, err error) {
	for _, item := range items {
		itemID, ok := idsByTitle[workitem.NormalizeTitle(item.Title)]
		if !ok {
			skipped += len(item.DependsOn)
			log.Warn().Str("title", item.Title).Msg("item has no tracker ID, skipping its relations")
			continue
		}

		for _, dep := range item.DependsOn {
			depID, ok := idsByTitle[workitem.NormalizeTitle(dep)]
			if !ok {
				skipped++
				log.Warn().Str("title", item.Title).Str("depends_on", dep).Msg("dependency not found, skipping relation")
				continue
			}

			err := retry.Do(ctx, policy, func(ctx context.Context) error {
				return tc.CreateRelation(ctx, itemID, depID, tracker.RelationTypeBlocks)
			})
			if err != nil {
				log.Error().Err(err).Str("title", item.Title).Str("depends_on", dep).Msg("failed to create relation")
				return created, skipped, err
			}
			created++
			pacer.Pause()
		}
	}
	return created, skipped, nil
}

// startFirstUnblocked moves the best ready item to the started state.
// Shared with the reconciler.
func startFirstUnblocked(ctx context.Context, tc TrackerClient, policy retry.Policy, log zerolog.Logger, items []workitem.Item, idsByTitle map[string]string) (string, error) {
	idx := workitem.FirstUnblocked(items)
	if idx < 0 {
		log.Debug().Msg("no unblocked item to start")
		return "", nil
	}

	item := items[idx]
	id, ok := idsByTitle[workitem.NormalizeTitle(item.Title)]
	if !ok {
		return "", nil
	}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return tc.UpdateItem(ctx, id, tracker.ItemPatch{State: tracker.StateStarted})
	})
	if err != nil {
		log.Error().Err(err).Str("title", item.Title).Msg("failed to start item")
		return "", err
	}

	log.Info().Str("title", item.Title).Msg("started first unblocked item")
	return item.Title, nil
}

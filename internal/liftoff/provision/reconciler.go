package provision

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/mod/semver"

	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/internal/core/logging"
	"github.com/liftoffhq/liftoff/internal/core/workitem"
	"github.com/liftoffhq/liftoff/internal/retry"
)

// triageContainerName is where orphans without a version label end up.
const triageContainerName = "Needs Triage"

// ReconcileReport summarizes one orphan sweep.
type ReconcileReport struct {
	Orphans    int
	Moved      int
	Containers []string
	Relations  int
	Started    []string
	Errors     int
}

// Reconciler sweeps work items that belong to no container. Items carrying a
// version label move into that release's container, the rest into a triage
// container. Containers are created on first use and reused by name after
// that. Reconciliation is best effort: individual failures are logged and
// counted but never fail the surrounding run.
type Reconciler struct {
	tracker TrackerClient
	rules   *RuleResolver
	policy  retry.Policy
	pacer   *Pacer
	log     zerolog.Logger
}

// NewReconciler returns a Reconciler using the seed plan dependency rules.
func NewReconciler(tc TrackerClient, policy retry.Policy, pacer *Pacer) *Reconciler {
	return &Reconciler{
		tracker: tc,
		rules:   NewRuleResolver(nil),
		policy:  policy,
		pacer:   pacer,
		log:     logging.Component("reconciler"),
	}
}

// Reconcile finds and re-homes every orphan in the group, then re-runs
// rule-based dependency resolution inside each touched container.
func (r *Reconciler) Reconcile(ctx context.Context, groupID string) *ReconcileReport {
	rep := &ReconcileReport{}

	orphans, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) ([]tracker.Item, error) {
		return r.tracker.ListItems(ctx, tracker.Filter{GroupID: groupID, Orphans: true})
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list orphans, skipping reconciliation")
		rep.Errors++
		return rep
	}
	if len(orphans) == 0 {
		r.log.Debug().Msg("no orphans to reconcile")
		return rep
	}
	rep.Orphans = len(orphans)

	containers, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) ([]tracker.Container, error) {
		return r.tracker.ListContainers(ctx, groupID)
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list containers, skipping reconciliation")
		rep.Errors++
		return rep
	}

	idsByName := make(map[string]string, len(containers))
	for _, c := range containers {
		idsByName[strings.ToLower(c.Name)] = c.ID
	}

	var touched []string // container IDs in first-touch order
	seen := make(map[string]bool)

	for _, orphan := range orphans {
		name := containerNameFor(orphan)

		id, ok := idsByName[strings.ToLower(name)]
		if !ok {
			created, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) (tracker.Container, error) {
				return r.tracker.CreateContainer(ctx, groupID, name)
			})
			if err != nil {
				r.log.Warn().Err(err).Str("container", name).Str("item_id", orphan.ID).Msg("failed to create container, leaving orphan in place")
				rep.Errors++
				continue
			}
			id = created.ID
			idsByName[strings.ToLower(name)] = id
			r.log.Info().Str("container", name).Msg("created container for orphans")
			r.pacer.Pause()
		}

		err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
			return r.tracker.UpdateItem(ctx, orphan.ID, tracker.ItemPatch{ContainerID: id})
		})
		if err != nil {
			r.log.Warn().Err(err).Str("item_id", orphan.ID).Str("container", name).Msg("failed to move orphan")
			rep.Errors++
			continue
		}

		rep.Moved++
		r.log.Info().Str("title", orphan.Title).Str("container", name).Msg("moved orphan")
		if !seen[id] {
			seen[id] = true
			touched = append(touched, id)
			rep.Containers = append(rep.Containers, name)
		}
		r.pacer.Pause()
	}

	for _, containerID := range touched {
		r.resolveContainer(ctx, groupID, containerID, rep)
	}

	return rep
}

// resolveContainer re-runs rule-based dependency resolution for one container
// and starts its best ready item when nothing is in progress yet.
func (r *Reconciler) resolveContainer(ctx context.Context, groupID, containerID string, rep *ReconcileReport) {
	members, err := retry.DoValue(ctx, r.policy, func(ctx context.Context) ([]tracker.Item, error) {
		return r.tracker.ListItems(ctx, tracker.Filter{GroupID: groupID, ContainerID: containerID})
	})
	if err != nil {
		r.log.Warn().Err(err).Str("container_id", containerID).Msg("failed to list container items")
		rep.Errors++
		return
	}

	items := make([]workitem.Item, len(members))
	idsByTitle := make(map[string]string, len(members))
	anyStarted := false
	for i, m := range members {
		items[i] = workitem.Item{
			Title:    m.Title,
			Priority: remotePriority(m.Priority),
		}
		idsByTitle[workitem.NormalizeTitle(m.Title)] = m.ID
		if m.State == tracker.StateStarted {
			anyStarted = true
		}
	}

	resolved, err := r.rules.Resolve(ctx, items)
	if err != nil {
		r.log.Warn().Err(err).Str("container_id", containerID).Msg("failed to resolve dependencies")
		rep.Errors++
		return
	}

	created, _, err := wireRelations(ctx, r.tracker, r.policy, r.pacer, r.log, resolved, idsByTitle)
	rep.Relations += created
	if err != nil {
		r.log.Warn().Err(err).Str("container_id", containerID).Msg("failed to wire relations")
		rep.Errors++
		return
	}

	if anyStarted {
		return
	}

	started, err := startFirstUnblocked(ctx, r.tracker, r.policy, r.log, resolved, idsByTitle)
	if err != nil {
		r.log.Warn().Err(err).Str("container_id", containerID).Msg("failed to start item")
		rep.Errors++
		return
	}
	if started != "" {
		rep.Started = append(rep.Started, started)
	}
}

// containerNameFor buckets an orphan by its version label, if it has one.
func containerNameFor(item tracker.Item) string {
	if v, ok := versionLabel(item.Labels); ok {
		return "Release " + v
	}
	return triageContainerName
}

// versionLabel returns the canonical form of the first label that parses as
// a semantic version. Both "1.2" and "v1.2" are accepted and normalize to
// the same container.
func versionLabel(labels []tracker.Label) (string, bool) {
	for _, label := range labels {
		v := strings.TrimSpace(label.Name)
		if v == "" {
			continue
		}
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if semver.IsValid(v) {
			return v, true
		}
	}
	return "", false
}

// remotePriority maps a tracker priority ordinal onto the local scale.
// Unprioritized remote items sort last for auto-start.
func remotePriority(p int) workitem.Priority {
	if p < int(workitem.PriorityUrgent) || p > int(workitem.PriorityLow) {
		return workitem.PriorityLow
	}
	return workitem.Priority(p)
}

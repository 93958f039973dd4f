package provision

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/clients/tracker"
)

// RollbackState records every remote mutation as it succeeds. It lives only
// for the duration of one run and is never persisted: a crash mid-run leaves
// cleanup to the operator, which the run log makes visible.
type RollbackState struct {
	WorkspaceDir        string
	WorkspaceCreated    bool
	RepoInitialized     bool
	CodeHostRemoteAdded bool
	GroupCreated        bool
	GroupID             string
	GroupName           string
	ContainerCreated    bool
	ContainerID         string
	ContainerName       string
	ItemIDs             []string
	LabelIDs            []string
}

// RecordItem appends a created item in creation order.
func (s *RollbackState) RecordItem(id string) {
	s.ItemIDs = append(s.ItemIDs, id)
}

// RecordLabel appends a created label in creation order.
func (s *RollbackState) RecordLabel(id string) {
	s.LabelIDs = append(s.LabelIDs, id)
}

// Compensation is a single undo action. Manual compensations cannot be
// executed through any API and go straight into the report.
type Compensation struct {
	Desc   string
	Manual bool
	Run    func(ctx context.Context) error
}

// RollbackReport lists what rollback managed to clean up, what failed, and
// what needs manual attention.
type RollbackReport struct {
	Cleaned []string
	Failed  []string
	Manual  []string
}

// Compensations assembles the undo actions for everything recorded so far.
// The order is fixed: items in reverse creation order, then labels, then the
// container archive, then the group leak, then the pushed repository, then
// the workspace directory. Deletable resources go first so the tracker is
// clean before anything irreversible is reported.
func (s *RollbackState) Compensations(tc TrackerClient) []Compensation {
	var comps []Compensation

	for i := len(s.ItemIDs) - 1; i >= 0; i-- {
		id := s.ItemIDs[i]
		comps = append(comps, Compensation{
			Desc: fmt.Sprintf("delete item %s", id),
			Run:  func(ctx context.Context) error { return tc.DeleteItem(ctx, id) },
		})
	}

	for i := len(s.LabelIDs) - 1; i >= 0; i-- {
		id := s.LabelIDs[i]
		comps = append(comps, Compensation{
			Desc: fmt.Sprintf("delete label %s", id),
			Run:  func(ctx context.Context) error { return tc.DeleteLabel(ctx, id) },
		})
	}

	if s.ContainerCreated {
		id := s.ContainerID
		comps = append(comps, Compensation{
			Desc: fmt.Sprintf("archive container %q", s.ContainerName),
			Run:  func(ctx context.Context) error { return tc.ArchiveContainer(ctx, id) },
		})
	}

	if s.GroupCreated {
		comps = append(comps, Compensation{
			Desc:   fmt.Sprintf("group %q (%s) cannot be deleted via the tracker API; remove it manually", s.GroupName, s.GroupID),
			Manual: true,
		})
	}

	if s.CodeHostRemoteAdded {
		comps = append(comps, Compensation{
			Desc:   "pushed repository remains on the code host; delete it manually if unwanted",
			Manual: true,
		})
	}

	if s.WorkspaceCreated && s.WorkspaceDir != "" {
		dir := s.WorkspaceDir
		comps = append(comps, Compensation{
			Desc: fmt.Sprintf("remove workspace %s", dir),
			Run:  func(ctx context.Context) error { return os.RemoveAll(dir) },
		})
	}

	return comps
}

// Rollback executes the compensations in order and reports the outcome.
// It never returns an error: a failed compensation is recorded and the
// remaining ones still run. Resources that are already gone count as cleaned.
func Rollback(ctx context.Context, tc TrackerClient, state *RollbackState, log zerolog.Logger) *RollbackReport {
	report := &RollbackReport{}

	for _, comp := range state.Compensations(tc) {
		if comp.Manual {
			log.Warn().Str("action", comp.Desc).Msg("rollback requires manual cleanup")
			report.Manual = append(report.Manual, comp.Desc)
			continue
		}

		if err := comp.Run(ctx); err != nil {
			if errors.Is(err, tracker.ErrNotFound) {
				log.Debug().Str("action", comp.Desc).Msg("resource already gone")
				report.Cleaned = append(report.Cleaned, comp.Desc)
				continue
			}
			log.Warn().Err(err).Str("action", comp.Desc).Msg("rollback action failed")
			report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", comp.Desc, err))
			continue
		}

		log.Debug().Str("action", comp.Desc).Msg("rolled back")
		report.Cleaned = append(report.Cleaned, comp.Desc)
	}

	return report
}

// Package provision orchestrates end-to-end project provisioning: the local
// workspace, the application scaffold, code host publishing, tracker setup,
// and optional deployment.
//
// Remote tracker resources are created through a fixed pipeline. Every
// mutation is recorded in a RollbackState so that a failure later in the
// pipeline can undo what was already created. Groups cannot be deleted
// through the tracker API, so a created group survives rollback and is
// reported as a leak instead.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hay-kot/criterio"

	"github.com/liftoffhq/liftoff/internal/clients/deploy"
	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/internal/core/workitem"
	"github.com/liftoffhq/liftoff/internal/scaffold"
)

// ErrUserCancelled is returned when the user declines the confirmation prompt.
var ErrUserCancelled = errors.New("provisioning cancelled by user")

// TrackerClient is the slice of the tracker API used during provisioning.
type TrackerClient interface {
	FindGroup(ctx context.Context, key string) (tracker.Group, bool, error)
	EnsureGroup(ctx context.Context, name, key string) (tracker.Group, bool, error)
	ListContainers(ctx context.Context, groupID string) ([]tracker.Container, error)
	CreateContainer(ctx context.Context, groupID, name string) (tracker.Container, error)
	ArchiveContainer(ctx context.Context, id string) error
	ListItems(ctx context.Context, f tracker.Filter) ([]tracker.Item, error)
	CreateItem(ctx context.Context, in tracker.ItemInput) (tracker.Item, error)
	UpdateItem(ctx context.Context, id string, patch tracker.ItemPatch) error
	DeleteItem(ctx context.Context, id string) error
	ListLabels(ctx context.Context, groupID string) ([]tracker.Label, error)
	CreateLabel(ctx context.Context, groupID, name string) (tracker.Label, error)
	DeleteLabel(ctx context.Context, id string) error
	CreateRelation(ctx context.Context, itemID, dependsOnID, relType string) error
}

// CodeHost publishes the scaffolded workspace to a git remote.
type CodeHost interface {
	InitRepo(ctx context.Context, dir, defaultBranch string) error
	CommitAll(ctx context.Context, dir, message string) (string, error)
	AddRemote(ctx context.Context, dir, name, url string) error
	Push(ctx context.Context, dir, remote, branch string) error
}

// DeployPlatform provisions hosting for the scaffolded application.
type DeployPlatform interface {
	ListServers(ctx context.Context) ([]deploy.Server, error)
	CreateSite(ctx context.Context, serverID string, in deploy.SiteInput) (deploy.Site, error)
	EnableTLS(ctx context.Context, serverID, siteID string) error
	Deploy(ctx context.Context, serverID, siteID string) error
}

// Scaffolder renders the application skeleton into the workspace.
type Scaffolder interface {
	Render(ctx context.Context, t scaffold.Target) (int, error)
	RenderDocs(ctx context.Context, t scaffold.Target) (int, error)
}

// Confirmer asks the user to approve a mutation before it happens.
// Implementations may auto-approve when the user passed --yes.
type Confirmer interface {
	Confirm(ctx context.Context, title, description string) (bool, error)
}

// RunStore persists run history.
type RunStore interface {
	Insert(ctx context.Context, run RunRecord) error
}

// Run statuses stored in run history.
const (
	RunStatusCompleted  = "completed"
	RunStatusRolledBack = "rolled_back"
)

// RunCounts summarizes how many tracker resources a run touched.
type RunCounts struct {
	ItemsCreated  int
	ItemsReused   int
	LabelsCreated int
	Relations     int
	OrphansMoved  int
}

// RunRecord summarizes one provisioning run for history.
type RunRecord struct {
	ID         string
	Project    string
	Workspace  string
	Status     string
	Error      string
	Counts     RunCounts
	Leaks      []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Request describes one provisioning run.
type Request struct {
	ProjectName string
	Slug        string
	Description string
	TargetDir   string
	RemoteURL   string
	GroupName   string
	GroupKey    string
	Items       []workitem.Item
	AutoStart   bool
	Deploy      bool
}

// Validate checks that the request is complete enough to start a run.
func (r Request) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if r.ProjectName == "" {
		errs = errs.Append("project_name", fmt.Errorf("cannot be empty"))
	}
	if r.Slug == "" {
		errs = errs.Append("slug", fmt.Errorf("cannot be empty"))
	}
	if r.TargetDir == "" {
		errs = errs.Append("target_dir", fmt.Errorf("cannot be empty"))
	}
	if r.GroupName == "" {
		errs = errs.Append("group_name", fmt.Errorf("cannot be empty"))
	}
	if r.GroupKey == "" {
		errs = errs.Append("group_key", fmt.Errorf("cannot be empty"))
	}
	if err := errs.ToError(); err != nil {
		return err
	}

	return workitem.Validate(r.Items)
}

// Summary reports what a run did. LastStep is the step that was executing
// when the run ended; StepDone means every step finished. On failure the
// summary also carries the rollback report so the caller can show what was
// cleaned up.
type Summary struct {
	RunID        string
	Project      string
	Workspace    string
	GroupID      string
	GroupName    string
	ContainerID  string
	FilesWritten int
	CommitHash   string
	RemoteURL    string
	SiteDomain   string
	Build        *BuildResult
	Reconcile    *ReconcileReport
	LastStep     Step
	Rollback     *RollbackReport
	StartedAt    time.Time
	FinishedAt   time.Time
}

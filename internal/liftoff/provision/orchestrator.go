package provision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/clients/codehost"
	"github.com/liftoffhq/liftoff/internal/clients/deploy"
	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/internal/core/logging"
	"github.com/liftoffhq/liftoff/internal/retry"
	"github.com/liftoffhq/liftoff/internal/scaffold"
	"github.com/liftoffhq/liftoff/pkg/randid"
)

// Step identifies a stage of the provisioning pipeline.
type Step int

// Pipeline steps in execution order. StepDone and StepRolledBack are terminal
// markers, not executable steps.
const (
	StepInit Step = iota
	StepLocalWorkspace
	StepAppScaffold
	StepPublishRemote
	StepTicketingSetup
	StepDocs
	StepOptionalDeploy
	StepFinalize
	StepDone
	StepRolledBack
)

var stepNames = map[Step]string{
	StepInit:           "init",
	StepLocalWorkspace: "local_workspace",
	StepAppScaffold:    "app_scaffold",
	StepPublishRemote:  "publish_remote",
	StepTicketingSetup: "ticketing_setup",
	StepDocs:           "docs",
	StepOptionalDeploy: "optional_deploy",
	StepFinalize:       "finalize",
	StepDone:           "done",
	StepRolledBack:     "rolled_back",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Deps bundles the collaborators the orchestrator drives. Runs may be nil;
// run history is then skipped.
type Deps struct {
	Tracker    TrackerClient
	CodeHost   CodeHost
	Deploy     DeployPlatform
	Resolver   Resolver
	Scaffolder Scaffolder
	Confirmer  Confirmer
	Runs       RunStore
}

// Orchestrator drives the provisioning pipeline from an empty directory to a
// scaffolded, published, and tracked project.
type Orchestrator struct {
	cfg    *config.Config
	deps   Deps
	policy retry.Policy
	pacer  *Pacer
	log    zerolog.Logger
}

func NewOrchestrator(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		policy: cfg.RetryPolicy(),
		pacer:  NewPacer(cfg.WriteInterval()),
		log:    logging.Component("orchestrator"),
	}
}

// Run executes the pipeline. On failure every recorded remote mutation is
// rolled back, the rollback report is attached to the summary, and the
// failing step's error is returned unchanged.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := "run-" + randid.Generate(8)
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithProject(ctx, req.ProjectName)

	state := &RollbackState{}
	summary := &Summary{
		RunID:     runID,
		Project:   req.ProjectName,
		RemoteURL: req.RemoteURL,
		StartedAt: time.Now(),
	}

	err := o.execute(ctx, req, state, summary)
	summary.FinishedAt = time.Now()

	if err == nil {
		o.record(ctx, req, summary, nil)
		o.log.Info().Ctx(ctx).
			Str("group", summary.GroupName).
			Int("files", summary.FilesWritten).
			Msg("provisioning complete")
		return summary, nil
	}

	o.log.Error().Ctx(ctx).Err(err).Stringer("step", summary.LastStep).
		Msg("provisioning failed, rolling back")

	// The run may have died to a cancelled context; cleanup still has to talk
	// to the tracker.
	summary.Rollback = Rollback(context.WithoutCancel(ctx), o.deps.Tracker, state, o.log)
	summary.FinishedAt = time.Now()
	o.record(ctx, req, summary, err)
	return summary, err
}

func (o *Orchestrator) execute(ctx context.Context, req Request, state *RollbackState, summary *Summary) error {
	steps := []struct {
		step Step
		fn   func(ctx context.Context, req Request, state *RollbackState, summary *Summary) error
	}{
		{StepInit, o.stepInit},
		{StepLocalWorkspace, o.stepLocalWorkspace},
		{StepAppScaffold, o.stepAppScaffold},
		{StepPublishRemote, o.stepPublishRemote},
		{StepTicketingSetup, o.stepTicketingSetup},
		{StepDocs, o.stepDocs},
		{StepOptionalDeploy, o.stepOptionalDeploy},
		{StepFinalize, o.stepFinalize},
	}

	for _, s := range steps {
		summary.LastStep = s.step
		o.log.Debug().Ctx(ctx).Stringer("step", s.step).Msg("step started")
		if err := s.fn(ctx, req, state, summary); err != nil {
			return err
		}
	}
	summary.LastStep = StepDone
	return nil
}

func (o *Orchestrator) stepInit(ctx context.Context, req Request, _ *RollbackState, _ *Summary) error {
	if o.cfg.Tracker.BaseURL == "" {
		return fmt.Errorf("tracker base URL not configured (set tracker.base_url)")
	}
	if o.cfg.Tracker.Token == "" {
		return fmt.Errorf("tracker token not configured (set tracker.token or LIFTOFF_TRACKER_TOKEN)")
	}
	if req.Deploy {
		if o.deps.Deploy == nil {
			return fmt.Errorf("deploy requested but no deploy platform is configured")
		}
		if o.cfg.Deploy.Token == "" {
			return fmt.Errorf("deploy token not configured (set deploy.token or LIFTOFF_DEPLOY_TOKEN)")
		}
	}
	return nil
}

func (o *Orchestrator) stepLocalWorkspace(ctx context.Context, req Request, state *RollbackState, summary *Summary) error {
	created, err := createWorkspace(req.TargetDir)
	if err != nil {
		return err
	}
	state.WorkspaceDir = req.TargetDir
	state.WorkspaceCreated = created
	summary.Workspace = req.TargetDir
	o.log.Info().Ctx(ctx).Str("dir", req.TargetDir).Bool("created", created).Msg("workspace ready")
	return nil
}

func (o *Orchestrator) stepAppScaffold(ctx context.Context, req Request, _ *RollbackState, summary *Summary) error {
	n, err := o.deps.Scaffolder.Render(ctx, o.target(req))
	if err != nil {
		return err
	}
	summary.FilesWritten += n
	o.log.Info().Ctx(ctx).Int("files", n).Msg("scaffold rendered")
	return nil
}

func (o *Orchestrator) stepPublishRemote(ctx context.Context, req Request, state *RollbackState, summary *Summary) error {
	if req.RemoteURL == "" {
		o.log.Info().Ctx(ctx).Msg("no remote URL, skipping publish")
		return nil
	}

	ch := o.deps.CodeHost
	if err := ch.InitRepo(ctx, req.TargetDir, o.cfg.Git.DefaultBranch); err != nil {
		return err
	}
	state.RepoInitialized = true

	hash, err := ch.CommitAll(ctx, req.TargetDir, "Initial scaffold")
	if err != nil {
		return err
	}
	summary.CommitHash = hash

	if err := ch.AddRemote(ctx, req.TargetDir, codehost.DefaultRemote, req.RemoteURL); err != nil {
		return err
	}
	if err := ch.Push(ctx, req.TargetDir, codehost.DefaultRemote, o.cfg.Git.DefaultBranch); err != nil {
		return err
	}
	state.CodeHostRemoteAdded = true
	o.log.Info().Ctx(ctx).Str("remote", req.RemoteURL).Str("commit", hash).Msg("pushed initial commit")
	return nil
}

func (o *Orchestrator) stepTicketingSetup(ctx context.Context, req Request, state *RollbackState, summary *Summary) error {
	// Snapshot any existing group items before the first mutation. Best
	// effort; a failed backup never stops the run.
	if path, err := o.backupExisting(ctx, req); err != nil {
		o.log.Warn().Ctx(ctx).Err(err).Msg("failed to back up existing tracker items")
	} else if path != "" {
		o.log.Info().Ctx(ctx).Str("path", path).Msg("tracker backup written")
	}

	ok, err := o.deps.Confirmer.Confirm(ctx,
		"Provision tracker workspace",
		fmt.Sprintf("Create group %q with container %q and %d work items?",
			req.GroupName, req.ProjectName, len(req.Items)))
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserCancelled
	}

	type ensured struct {
		group   tracker.Group
		created bool
	}
	res, err := retry.DoValue(ctx, o.policy, func(ctx context.Context) (ensured, error) {
		g, created, err := o.deps.Tracker.EnsureGroup(ctx, req.GroupName, req.GroupKey)
		return ensured{group: g, created: created}, err
	})
	if err != nil {
		o.log.Error().Ctx(ctx).Err(err).Str("group", req.GroupName).Msg("failed to ensure group")
		return err
	}
	if res.created {
		state.GroupCreated = true
		o.log.Info().Ctx(ctx).Str("group", res.group.Name).Msg("created group")
	}
	state.GroupID = res.group.ID
	state.GroupName = res.group.Name
	summary.GroupID = res.group.ID
	summary.GroupName = res.group.Name

	container, err := o.ensureContainer(ctx, res.group.ID, req.ProjectName, state)
	if err != nil {
		return err
	}
	summary.ContainerID = container.ID

	resolved, err := o.deps.Resolver.Resolve(ctx, req.Items)
	if err != nil {
		return err
	}

	builder := NewBuilder(o.deps.Tracker, o.policy, o.pacer, state, req.AutoStart)
	build, err := builder.CreateAll(ctx, res.group.ID, container.ID, resolved)
	if build != nil {
		summary.Build = build
	}
	if err != nil {
		return err
	}

	summary.Reconcile = NewReconciler(o.deps.Tracker, o.policy, o.pacer).Reconcile(ctx, res.group.ID)
	return nil
}

// backupExisting exports the target group's items when the group already
// exists. Returns "" when there is nothing to back up.
func (o *Orchestrator) backupExisting(ctx context.Context, req Request) (string, error) {
	group, found, err := o.deps.Tracker.FindGroup(ctx, req.GroupKey)
	if err != nil || !found {
		return "", err
	}
	return exportGroupItems(ctx, o.deps.Tracker, group, o.cfg.BackupsDir())
}

// ensureContainer finds a container by name or creates it. Only a created
// container is recorded for rollback; a reused one is not ours to archive.
func (o *Orchestrator) ensureContainer(ctx context.Context, groupID, name string, state *RollbackState) (tracker.Container, error) {
	containers, err := retry.DoValue(ctx, o.policy, func(ctx context.Context) ([]tracker.Container, error) {
		return o.deps.Tracker.ListContainers(ctx, groupID)
	})
	if err != nil {
		o.log.Error().Ctx(ctx).Err(err).Msg("failed to list containers")
		return tracker.Container{}, err
	}
	for _, c := range containers {
		if strings.EqualFold(c.Name, name) {
			o.log.Info().Ctx(ctx).Str("container", c.Name).Msg("reusing existing container")
			return c, nil
		}
	}

	created, err := retry.DoValue(ctx, o.policy, func(ctx context.Context) (tracker.Container, error) {
		return o.deps.Tracker.CreateContainer(ctx, groupID, name)
	})
	if err != nil {
		o.log.Error().Ctx(ctx).Err(err).Str("container", name).Msg("failed to create container")
		return tracker.Container{}, err
	}
	state.ContainerCreated = true
	state.ContainerID = created.ID
	state.ContainerName = created.Name
	o.log.Info().Ctx(ctx).Str("container", created.Name).Msg("created container")
	o.pacer.Pause()
	return created, nil
}

func (o *Orchestrator) stepDocs(ctx context.Context, req Request, state *RollbackState, summary *Summary) error {
	n, err := o.deps.Scaffolder.RenderDocs(ctx, o.target(req))
	if err != nil {
		return err
	}
	summary.FilesWritten += n
	o.log.Info().Ctx(ctx).Int("files", n).Msg("docs rendered")

	// Docs land after the initial push, so ship them in a follow-up commit.
	// The repo is already published; a failed docs push only warns.
	if state.CodeHostRemoteAdded && n > 0 {
		if _, err := o.deps.CodeHost.CommitAll(ctx, req.TargetDir, "Add project docs"); err != nil {
			o.log.Warn().Ctx(ctx).Err(err).Msg("failed to commit docs")
			return nil
		}
		if err := o.deps.CodeHost.Push(ctx, req.TargetDir, codehost.DefaultRemote, o.cfg.Git.DefaultBranch); err != nil {
			o.log.Warn().Ctx(ctx).Err(err).Msg("failed to push docs")
		}
	}
	return nil
}

func (o *Orchestrator) stepOptionalDeploy(ctx context.Context, req Request, _ *RollbackState, summary *Summary) error {
	if !req.Deploy {
		o.log.Debug().Ctx(ctx).Msg("deploy not requested, skipping")
		return nil
	}

	servers, err := retry.DoValue(ctx, o.policy, o.deps.Deploy.ListServers)
	if err != nil {
		o.log.Error().Ctx(ctx).Err(err).Msg("failed to list deploy servers")
		return err
	}

	server, ok := matchServer(servers, o.cfg.Deploy.Server)
	if !ok {
		return fmt.Errorf("deploy server %q not found", o.cfg.Deploy.Server)
	}

	domain := req.Slug
	if o.cfg.Deploy.DomainSuffix != "" {
		domain = req.Slug + "." + o.cfg.Deploy.DomainSuffix
	}

	site, err := retry.DoValue(ctx, o.policy, func(ctx context.Context) (deploy.Site, error) {
		return o.deps.Deploy.CreateSite(ctx, server.ID, deploy.SiteInput{
			Domain:      domain,
			ProjectType: o.cfg.Deploy.ProjectType,
		})
	})
	if err != nil {
		o.log.Error().Ctx(ctx).Err(err).Str("domain", domain).Msg("failed to create site")
		return err
	}
	summary.SiteDomain = site.Domain

	// TLS and the first deployment are conveniences; the site exists either way.
	if err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		return o.deps.Deploy.EnableTLS(ctx, server.ID, site.ID)
	}); err != nil {
		o.log.Warn().Ctx(ctx).Err(err).Str("site", site.ID).Msg("failed to enable TLS, continuing")
	}
	if err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		return o.deps.Deploy.Deploy(ctx, server.ID, site.ID)
	}); err != nil {
		o.log.Warn().Ctx(ctx).Err(err).Str("site", site.ID).Msg("failed to trigger first deployment, continuing")
	}

	o.log.Info().Ctx(ctx).Str("domain", site.Domain).Msg("site provisioned")
	return nil
}

func matchServer(servers []deploy.Server, nameOrID string) (deploy.Server, bool) {
	for _, s := range servers {
		if s.ID == nameOrID || strings.EqualFold(s.Name, nameOrID) {
			return s, true
		}
	}
	return deploy.Server{}, false
}

func (o *Orchestrator) stepFinalize(ctx context.Context, _ Request, _ *RollbackState, summary *Summary) error {
	o.log.Debug().Ctx(ctx).
		Str("run_id", summary.RunID).
		Dur("elapsed", time.Since(summary.StartedAt)).
		Msg("finalizing run")
	return nil
}

// record writes the run to history. History is informational, so insert
// failures only warn.
func (o *Orchestrator) record(ctx context.Context, req Request, summary *Summary, runErr error) {
	if o.deps.Runs == nil {
		return
	}

	rec := RunRecord{
		ID:         summary.RunID,
		Project:    req.ProjectName,
		Workspace:  summary.Workspace,
		Status:     RunStatusCompleted,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
	}
	if runErr != nil {
		rec.Status = RunStatusRolledBack
		rec.Error = runErr.Error()
	}
	if summary.Build != nil {
		rec.Counts.ItemsCreated = summary.Build.CreatedItems
		rec.Counts.ItemsReused = summary.Build.ReusedItems
		rec.Counts.LabelsCreated = summary.Build.CreatedLabels
		rec.Counts.Relations = summary.Build.Relations
	}
	if summary.Reconcile != nil {
		rec.Counts.OrphansMoved = summary.Reconcile.Moved
		rec.Counts.Relations += summary.Reconcile.Relations
	}
	if summary.Rollback != nil {
		rec.Leaks = append([]string(nil), summary.Rollback.Manual...)
	}

	if err := o.deps.Runs.Insert(ctx, rec); err != nil {
		o.log.Warn().Ctx(ctx).Err(err).Msg("failed to record run history")
	}
}

func (o *Orchestrator) target(req Request) scaffold.Target {
	return scaffold.Target{
		Dir: req.TargetDir,
		Project: scaffold.ProjectVars{
			Name:          req.ProjectName,
			Slug:          req.Slug,
			Description:   req.Description,
			RemoteURL:     req.RemoteURL,
			DefaultBranch: o.cfg.Git.DefaultBranch,
			GroupKey:      req.GroupKey,
			Vars:          o.cfg.Scaffold.Vars,
		},
	}
}

package liftoff

import (
	"context"

	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/internal/core/doctor"
)

// DoctorService runs health checks on the liftoff setup.
type DoctorService struct {
	config *config.Config
}

// NewDoctorService creates a new DoctorService.
func NewDoctorService(cfg *config.Config) *DoctorService {
	return &DoctorService{config: cfg}
}

// RunChecks executes all doctor checks and returns results.
func (d *DoctorService) RunChecks(ctx context.Context, configPath string, autofix bool) []doctor.Result {
	checks := []doctor.Check{
		doctor.NewConfigCheck(d.config, configPath),
		doctor.NewDataDirCheck(d.config.DataDir, autofix),
		doctor.NewGitIdentityCheck(d.config.Git),
		doctor.NewHooksCheck(d.config.Scaffold),
	}
	return doctor.RunAll(ctx, checks)
}

// Package scaffold renders the embedded application skeleton into a project
// workspace. Assets named dot-* become dotfiles, *.tmpl files pass through
// the template engine, everything else is copied verbatim.
package scaffold

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/liftoffhq/liftoff/internal/core/config"
	"github.com/liftoffhq/liftoff/internal/core/logging"
	"github.com/liftoffhq/liftoff/pkg/executil"
	"github.com/liftoffhq/liftoff/pkg/tmpl"
)

// docsDir is the asset subtree rendered by RenderDocs instead of Render.
const docsDir = "docs"

// Target is one workspace to render into.
type Target struct {
	Dir     string
	Project ProjectVars
}

// ProjectVars is the data visible to asset and hook templates.
type ProjectVars struct {
	Name          string
	Slug          string
	Description   string
	RemoteURL     string
	DefaultBranch string
	GroupKey      string
	Vars          map[string]any
}

// Options tunes rendering. Exclude holds doublestar patterns matched against
// workspace-relative output paths. Hooks are shell command templates run in
// the workspace after rendering.
type Options struct {
	Exclude []string
	Hooks   []string
	Runner  executil.ShellRunner
}

// Scaffolder renders the embedded assets.
type Scaffolder struct {
	assets fs.FS
	opts   Options
	log    zerolog.Logger
}

// New returns a Scaffolder over the embedded assets.
func New(opts Options) (*Scaffolder, error) {
	sub, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		return nil, fmt.Errorf("open embedded assets: %w", err)
	}
	return &Scaffolder{
		assets: sub,
		opts:   opts,
		log:    logging.Component("scaffold"),
	}, nil
}

// templateData is the root object asset templates render against.
type templateData struct {
	Project ProjectVars
}

// Render writes the application skeleton (everything except the docs subtree)
// into the target directory, generates the .env file, and runs the post
// hooks. Returns the number of files written.
func (s *Scaffolder) Render(ctx context.Context, t Target) (int, error) {
	count, err := s.renderTree(t, func(rel string) bool {
		return rel == docsDir || strings.HasPrefix(rel, docsDir+"/")
	})
	if err != nil {
		return count, err
	}

	n, err := s.writeEnvFile(t)
	if err != nil {
		return count, err
	}
	count += n

	s.runHooks(ctx, t)
	return count, nil
}

// RenderDocs writes only the docs subtree. Returns the number of files written.
func (s *Scaffolder) RenderDocs(_ context.Context, t Target) (int, error) {
	return s.renderTree(t, func(rel string) bool {
		return rel != docsDir && !strings.HasPrefix(rel, docsDir+"/")
	})
}

// renderTree walks the assets, skipping any path for which skip returns true.
func (s *Scaffolder) renderTree(t Target, skip func(rel string) bool) (int, error) {
	data := templateData{Project: t.Project}
	count := 0

	err := fs.WalkDir(s.assets, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && skip(path) {
				return fs.SkipDir
			}
			return nil
		}
		if skip(path) {
			return nil
		}

		outRel := outputPath(path)
		if s.excluded(outRel) {
			s.log.Debug().Str("path", outRel).Msg("excluded by pattern")
			return nil
		}

		content, err := fs.ReadFile(s.assets, path)
		if err != nil {
			return fmt.Errorf("read asset %s: %w", path, err)
		}

		if strings.HasSuffix(path, ".tmpl") {
			rendered, err := tmpl.Render(string(content), data)
			if err != nil {
				return fmt.Errorf("render %s: %w", path, err)
			}
			content = []byte(rendered)
		}

		abs := filepath.Join(t.Dir, filepath.FromSlash(outRel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(abs), err)
		}
		if err := os.WriteFile(abs, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", abs, err)
		}

		count++
		return nil
	})
	return count, err
}

// writeEnvFile generates the workspace .env with the project's identity so
// the scaffolded services pick it up without editing.
func (s *Scaffolder) writeEnvFile(t Target) (int, error) {
	if s.excluded(".env") {
		return 0, nil
	}

	env := map[string]string{
		"PROJECT_NAME":      t.Project.Name,
		"PROJECT_SLUG":      t.Project.Slug,
		"TRACKER_GROUP_KEY": t.Project.GroupKey,
	}
	if err := godotenv.Write(env, filepath.Join(t.Dir, ".env")); err != nil {
		return 0, fmt.Errorf("write .env: %w", err)
	}
	return 1, nil
}

// runHooks renders and executes the configured post-render commands. Hook
// failures are logged and skipped; the scaffold itself is already on disk.
func (s *Scaffolder) runHooks(ctx context.Context, t Target) {
	if len(s.opts.Hooks) == 0 || s.opts.Runner == nil {
		return
	}

	data := config.HookTemplateData{
		Name: t.Project.Name,
		Slug: t.Project.Slug,
		Dir:  t.Dir,
		Vars: t.Project.Vars,
	}

	for _, hook := range s.opts.Hooks {
		cmd, err := tmpl.Render(hook, data)
		if err != nil {
			s.log.Warn().Err(err).Str("hook", hook).Msg("failed to render hook, skipping")
			continue
		}

		s.log.Debug().Str("cmd", cmd).Msg("running hook")
		if err := s.opts.Runner.RunSh(ctx, t.Dir, cmd); err != nil {
			s.log.Warn().Err(err).Str("cmd", cmd).Msg("hook failed, continuing")
		}
	}
}

func (s *Scaffolder) excluded(rel string) bool {
	for _, pattern := range s.opts.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// outputPath maps an asset path to its workspace-relative output path:
// the dot- prefix becomes a leading dot and the .tmpl suffix is dropped.
func outputPath(assetPath string) string {
	parts := strings.Split(assetPath, "/")
	for i, part := range parts {
		if rest, ok := strings.CutPrefix(part, "dot-"); ok {
			parts[i] = "." + rest
		}
	}
	last := len(parts) - 1
	parts[last] = strings.TrimSuffix(parts[last], ".tmpl")
	return strings.Join(parts, "/")
}

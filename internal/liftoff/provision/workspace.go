package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/liftoffhq/liftoff/internal/clients/tracker"
	"github.com/liftoffhq/liftoff/pkg/tmpl"
)

// createWorkspace makes the target directory. An existing empty directory is
// used as-is but not recorded as created, so rollback never deletes a
// directory the user made. A non-empty directory is refused.
func createWorkspace(dir string) (created bool, err error) {
	info, statErr := os.Stat(dir)
	switch {
	case os.IsNotExist(statErr):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create workspace: %w", err)
		}
		return true, nil
	case statErr != nil:
		return false, fmt.Errorf("stat workspace: %w", statErr)
	case !info.IsDir():
		return false, fmt.Errorf("workspace path %s exists and is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read workspace: %w", err)
	}
	if len(entries) > 0 {
		return false, fmt.Errorf("workspace directory %s is not empty", dir)
	}
	return false, nil
}

// backupExport is the JSON document written before tracker mutations.
type backupExport struct {
	GroupID    string         `json:"group_id"`
	GroupName  string         `json:"group_name"`
	ExportedAt time.Time      `json:"exported_at"`
	Items      []tracker.Item `json:"items"`
}

// exportGroupItems snapshots the group's items to a timestamped JSON file in
// dir, so an operator can restore titles and descriptions if cleanup ever
// removes more than it should.
func exportGroupItems(ctx context.Context, tc TrackerClient, group tracker.Group, dir string) (string, error) {
	items, err := tc.ListItems(ctx, tracker.Filter{GroupID: group.ID})
	if err != nil {
		return "", fmt.Errorf("list group items: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backups dir: %w", err)
	}

	doc := backupExport{
		GroupID:    group.ID,
		GroupName:  group.Name,
		ExportedAt: time.Now().UTC(),
		Items:      items,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", tmpl.Slugify(group.Name), time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return path, nil
}

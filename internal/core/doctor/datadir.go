package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DataDirCheck verifies that the data directory exists and is writable.
// The database and tracker backups live there.
type DataDirCheck struct {
	dataDir string
	autofix bool
}

// NewDataDirCheck creates a new data directory check.
func NewDataDirCheck(dataDir string, autofix bool) *DataDirCheck {
	return &DataDirCheck{dataDir: dataDir, autofix: autofix}
}

func (c *DataDirCheck) Name() string {
	return "Data Directory"
}

func (c *DataDirCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	info, err := os.Stat(c.dataDir)
	switch {
	case os.IsNotExist(err):
		if c.autofix {
			if mkErr := os.MkdirAll(c.dataDir, 0o755); mkErr != nil {
				result.Items = append(result.Items, CheckItem{
					Label:  c.dataDir,
					Status: StatusFail,
					Detail: fmt.Sprintf("create failed: %v", mkErr),
				})
				return result
			}
			result.Items = append(result.Items, CheckItem{
				Label:  c.dataDir,
				Status: StatusPass,
				Detail: "created",
			})
		} else {
			result.Items = append(result.Items, CheckItem{
				Label:   c.dataDir,
				Status:  StatusWarn,
				Detail:  "does not exist",
				Fixable: true,
			})
			return result
		}
	case err != nil:
		result.Items = append(result.Items, CheckItem{
			Label:  c.dataDir,
			Status: StatusFail,
			Detail: fmt.Sprintf("inaccessible: %v", err),
		})
		return result
	case !info.IsDir():
		result.Items = append(result.Items, CheckItem{
			Label:  c.dataDir,
			Status: StatusFail,
			Detail: "path is not a directory",
		})
		return result
	default:
		result.Items = append(result.Items, CheckItem{
			Label:  c.dataDir,
			Status: StatusPass,
		})
	}

	result.Items = append(result.Items, c.writableItem())
	return result
}

func (c *DataDirCheck) writableItem() CheckItem {
	probe, err := os.CreateTemp(c.dataDir, ".doctor-*")
	if err != nil {
		return CheckItem{
			Label:  "writable",
			Status: StatusFail,
			Detail: fmt.Sprintf("cannot write: %v", err),
		}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return CheckItem{Label: "writable", Status: StatusPass, Detail: filepath.Clean(c.dataDir)}
}

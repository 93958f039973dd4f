// Package workitem defines the work items liftoff provisions in the remote
// tracker: the item type, the seed plan for new projects, and the dependency
// graph helpers used before blocked-by relations are wired.
package workitem

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hay-kot/criterio"
)

// Priority follows tracker convention: 1 is most urgent, larger ordinals are
// less urgent. The "first unblocked" selection picks the smallest ordinal.
type Priority int

const (
	PriorityUrgent Priority = iota + 1
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// String returns the human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a priority name to its ordinal. Empty input maps to
// medium so plan files can omit the field.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PriorityMedium, nil
	case "urgent":
		return PriorityUrgent, nil
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// Item categories used by the seed plan.
const (
	CategoryInfra    = "infra"
	CategoryBackend  = "backend"
	CategoryFrontend = "frontend"
	CategoryDocs     = "docs"
)

// Item is one unit of project work to create in the remote tracker.
type Item struct {
	// Key is a run-local correlation id. It identifies the item in logs and
	// graph bookkeeping and is never sent to the tracker; titles remain the
	// join key for remote state.
	Key         string
	Title       string
	Description string
	Priority    Priority
	Labels      []string
	// DependsOn lists titles of items that must land before this one.
	DependsOn  []string
	Category   string
	Complexity string
}

// NormalizeTitle canonicalizes a title for case-insensitive matching against
// remote state.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// AssignKeys fills in a fresh correlation key for every item missing one.
func AssignKeys(items []Item) []Item {
	for i := range items {
		if items[i].Key == "" {
			items[i].Key = uuid.NewString()
		}
	}
	return items
}

// Validate checks a batch of items before any remote call is made.
func Validate(items []Item) error {
	if len(items) == 0 {
		return criterio.NewFieldErrors("items", fmt.Errorf("at least one work item is required"))
	}

	var errs criterio.FieldErrorsBuilder
	seen := make(map[string]int, len(items))
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)

		title := NormalizeTitle(item.Title)
		if title == "" {
			errs = errs.Append(field+".title", fmt.Errorf("title is required"))
			continue
		}
		if prev, ok := seen[title]; ok {
			errs = errs.Append(field+".title", fmt.Errorf("duplicate of items[%d] (titles are matched case-insensitively)", prev))
		}
		seen[title] = i

		if item.Priority < PriorityUrgent || item.Priority > PriorityLow {
			errs = errs.Append(field+".priority", fmt.Errorf("priority %d out of range", int(item.Priority)))
		}
		for j, dep := range item.DependsOn {
			if NormalizeTitle(dep) == title {
				errs = errs.Append(fmt.Sprintf("%s.depends_on[%d]", field, j), fmt.Errorf("item depends on itself"))
			}
		}
	}

	return errs.ToError()
}

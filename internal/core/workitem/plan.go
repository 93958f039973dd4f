package workitem

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed plan titles. The dependency rule table and the reconciler both key off
// these, so they are constants rather than inline strings.
const (
	TitleRepoSetup   = "Set up repository and CI"
	TitleDBSchema    = "Design the database schema"
	TitleAPISkeleton = "Build the API service skeleton"
	TitleAuth        = "Implement authentication"
	TitleWebShell    = "Create the web app shell"
	TitleWebWiring   = "Connect the web app to the API"
	TitleDeployment  = "Add the deployment pipeline"
	TitleDocs        = "Write the project documentation"
)

// Plan returns the standard work items provisioned for a new project. Items
// are returned in creation order with fresh correlation keys; dependencies are
// left empty so a resolver assigns them.
func Plan(project string) []Item {
	items := []Item{
		{
			Title:       TitleRepoSetup,
			Description: fmt.Sprintf("Initialize the %s repository: branch protection, lint and test workflows, and a green first build.", project),
			Priority:    PriorityUrgent,
			Labels:      []string{"infra", "ci"},
			Category:    CategoryInfra,
			Complexity:  "small",
		},
		{
			Title:       TitleDBSchema,
			Description: "Model the core entities and relations, write the initial migration, and document the schema decisions.",
			Priority:    PriorityHigh,
			Labels:      []string{"backend", "database"},
			Category:    CategoryBackend,
			Complexity:  "medium",
		},
		{
			Title:       TitleAPISkeleton,
			Description: "Stand up the API service: routing, configuration, health endpoint, and a request logging baseline.",
			Priority:    PriorityHigh,
			Labels:      []string{"backend", "api"},
			Category:    CategoryBackend,
			Complexity:  "medium",
		},
		{
			Title:       TitleAuth,
			Description: "Session-backed authentication with signup, login, logout, and route guards on both services.",
			Priority:    PriorityHigh,
			Labels:      []string{"backend", "security"},
			Category:    CategoryBackend,
			Complexity:  "large",
		},
		{
			Title:       TitleWebShell,
			Description: "Scaffolded web client with layout, navigation, and an error boundary wired to the design tokens.",
			Priority:    PriorityMedium,
			Labels:      []string{"frontend"},
			Category:    CategoryFrontend,
			Complexity:  "medium",
		},
		{
			Title:       TitleWebWiring,
			Description: "Typed API client in the web app, loading and error states, and an end-to-end smoke flow.",
			Priority:    PriorityMedium,
			Labels:      []string{"frontend", "api"},
			Category:    CategoryFrontend,
			Complexity:  "medium",
		},
		{
			Title:       TitleDeployment,
			Description: "Build and deploy both services from CI to the hosting platform, with rollbacks documented.",
			Priority:    PriorityMedium,
			Labels:      []string{"infra", "deploy"},
			Category:    CategoryInfra,
			Complexity:  "medium",
		},
		{
			Title:       TitleDocs,
			Description: "README, architecture notes, and a runbook covering local setup and the deploy story.",
			Priority:    PriorityLow,
			Labels:      []string{"docs"},
			Category:    CategoryDocs,
			Complexity:  "small",
		},
	}
	return AssignKeys(items)
}

// Rules returns the fixed dependency table for known seed titles. Titles not
// present in the table have no dependencies.
func Rules() map[string][]string {
	return map[string][]string{
		TitleDBSchema:    {TitleRepoSetup},
		TitleAPISkeleton: {TitleRepoSetup},
		TitleAuth:        {TitleAPISkeleton, TitleDBSchema},
		TitleWebShell:    {TitleRepoSetup},
		TitleWebWiring:   {TitleWebShell, TitleAPISkeleton},
		TitleDeployment:  {TitleAPISkeleton, TitleWebShell},
	}
}

// planFile is the YAML shape accepted by LoadPlan.
type planFile struct {
	Items []planItem `yaml:"items"`
}

type planItem struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Priority    string   `yaml:"priority"`
	Labels      []string `yaml:"labels"`
	DependsOn   []string `yaml:"depends_on"`
	Category    string   `yaml:"category"`
	Complexity  string   `yaml:"complexity"`
}

// LoadPlan reads a custom work-item plan from a YAML file, replacing the seed
// plan for a run. Dependencies listed in the file are kept verbatim; the
// rule-based resolver leaves explicit dependencies alone.
func LoadPlan(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plan file: %w", err)
	}

	items := make([]Item, 0, len(pf.Items))
	for i, pi := range pf.Items {
		prio, err := ParsePriority(pi.Priority)
		if err != nil {
			return nil, fmt.Errorf("plan item %d: %w", i, err)
		}
		items = append(items, Item{
			Title:       pi.Title,
			Description: pi.Description,
			Priority:    prio,
			Labels:      pi.Labels,
			DependsOn:   pi.DependsOn,
			Category:    pi.Category,
			Complexity:  pi.Complexity,
		})
	}

	items = AssignKeys(items)
	if err := Validate(items); err != nil {
		return nil, fmt.Errorf("invalid plan file: %w", err)
	}
	return items, nil
}

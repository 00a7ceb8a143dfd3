package orchestrator

import (
	"strings"

	"heftcoder/pkg/models"
)

var (
	landingKeywords = []string{"landing", "homepage", "one page"}
	nativeKeywords  = []string{"mobile", "native", "ios", "android"}
)

// inferProjectType picks a project type from keywords in the message. Landing
// keywords win over native ones.
func inferProjectType(message string) models.ProjectType {
	lower := strings.ToLower(message)
	for _, kw := range landingKeywords {
		if strings.Contains(lower, kw) {
			return models.ProjectLanding
		}
	}
	for _, kw := range nativeKeywords {
		if strings.Contains(lower, kw) {
			return models.ProjectNative
		}
	}
	return models.ProjectWebApp
}

// FallbackPlan builds the deterministic plan used when the architect reply is
// unusable. The same message always yields the same plan.
func FallbackPlan(message string) *models.ProjectPlan {
	projectType := inferProjectType(message)
	return &models.ProjectPlan{
		ProjectName:   defaultProjectName(projectType),
		ProjectType:   projectType,
		Description:   message,
		TechStack:     defaultTechStack(projectType),
		Steps:         defaultSteps(projectType),
		EstimatedTime: defaultEstimate(projectType),
	}
}

func defaultProjectName(t models.ProjectType) string {
	switch t {
	case models.ProjectLanding:
		return "Landing Page"
	case models.ProjectNative:
		return "Mobile App"
	}
	return "Web App"
}

func defaultTechStack(t models.ProjectType) models.TechStack {
	switch t {
	case models.ProjectLanding:
		return models.TechStack{
			Frontend: []string{"HTML", "Tailwind CSS", "JavaScript"},
			Backend:  []string{},
			Database: "none",
		}
	case models.ProjectNative:
		return models.TechStack{
			Frontend: []string{"React Native", "Expo"},
			Backend:  []string{"Supabase Edge Functions"},
			Database: "PostgreSQL",
		}
	}
	return models.TechStack{
		Frontend: []string{"React", "Tailwind CSS"},
		Backend:  []string{"Supabase Edge Functions"},
		Database: "PostgreSQL",
	}
}

func defaultSteps(t models.ProjectType) []models.PlanStep {
	switch t {
	case models.ProjectLanding:
		return []models.PlanStep{
			{ID: "1", Agent: models.RoleFrontend, Task: "Build the responsive landing page layout, sections and styling", Dependencies: []string{}},
			{ID: "2", Agent: models.RoleQA, Task: "Check responsiveness, links and accessibility", Dependencies: []string{"1"}},
		}
	case models.ProjectNative:
		return []models.PlanStep{
			{ID: "1", Agent: models.RoleFrontend, Task: "Create the app screens and navigation", Dependencies: []string{}},
			{ID: "2", Agent: models.RoleBackend, Task: "Set up the data model and API functions", Dependencies: []string{}},
			{ID: "3", Agent: models.RoleIntegrator, Task: "Connect the screens to the API", Dependencies: []string{"1", "2"}},
			{ID: "4", Agent: models.RoleQA, Task: "Verify flows on small and large screens", Dependencies: []string{"3"}},
		}
	}
	return []models.PlanStep{
		{ID: "1", Agent: models.RoleFrontend, Task: "Build the user interface components and pages", Dependencies: []string{}},
		{ID: "2", Agent: models.RoleBackend, Task: "Set up the database schema and API endpoints", Dependencies: []string{}},
		{ID: "3", Agent: models.RoleIntegrator, Task: "Connect the frontend to the backend", Dependencies: []string{"1", "2"}},
		{ID: "4", Agent: models.RoleQA, Task: "Test the application end to end", Dependencies: []string{"3"}},
	}
}

func defaultEstimate(t models.ProjectType) string {
	if t == models.ProjectLanding {
		return "1-2 minutes"
	}
	return "3-5 minutes"
}

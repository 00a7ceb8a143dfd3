package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"heftcoder/pkg/models"
)

// buildSummary renders the markdown shown in chat when a build finishes. It
// lists the produced file paths.
func buildSummary(plan *models.ProjectPlan, project *models.GeneratedProject, agents map[string]models.AgentInfo, failed []stageError) string {
	var b strings.Builder

	if len(failed) == 0 {
		fmt.Fprintf(&b, "## %s is ready\n\n", plan.ProjectName)
	} else {
		fmt.Fprintf(&b, "## %s finished with issues\n\n", plan.ProjectName)
	}
	if plan.Description != "" {
		b.WriteString(plan.Description)
		b.WriteString("\n\n")
	}

	if len(project.Files) > 0 {
		fmt.Fprintf(&b, "### Files (%d)\n", len(project.Files))
		for _, p := range project.Paths() {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No files were generated.\n\n")
	}

	if len(agents) > 0 {
		b.WriteString("### Agents\n")
		for _, a := range orderedAgents(agents) {
			line := fmt.Sprintf("- %s: %s", a.AgentName, a.Status)
			if a.StatusLabel != "" {
				line += " (" + a.StatusLabel + ")"
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if len(failed) > 0 {
		b.WriteString("\n### Issues\n")
		for _, f := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", f.role.DisplayName(), failureText(f.err))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// orderedAgents sorts agents by role display order, unknown roles last by id.
func orderedAgents(agents map[string]models.AgentInfo) []models.AgentInfo {
	rank := make(map[models.AgentRole]int, len(models.AllRoles))
	for i, r := range models.AllRoles {
		rank[r] = i
	}
	list := make([]models.AgentInfo, 0, len(agents))
	for _, a := range agents {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		ri, iok := rank[list[i].Role]
		rj, jok := rank[list[j].Role]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return list[i].AgentID < list[j].AgentID
	})
	return list
}

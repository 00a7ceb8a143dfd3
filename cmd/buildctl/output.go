package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"heftcoder/pkg/client"
	"heftcoder/pkg/models"
)

// progressPrinter prints what changed between successive snapshots.
type progressPrinter struct {
	out      io.Writer
	phase    client.Phase
	messages int
	files    int
	labels   map[string]string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, phase: client.PhaseIdle, labels: map[string]string{}}
}

func (p *progressPrinter) onChange(s client.State) {
	if s.Phase != p.phase {
		p.phase = s.Phase
		switch s.Phase {
		case client.PhaseError:
			fmt.Fprintf(p.out, "! %s\n", s.Error)
		case client.PhaseIdle:
			p.messages, p.files = 0, 0
			p.labels = map[string]string{}
		default:
			fmt.Fprintf(p.out, "== %s\n", s.Phase)
		}
	}

	for _, role := range models.AllRoles {
		a, ok := s.Agents[string(role)]
		if !ok {
			continue
		}
		label := a.StatusLabel
		if label == "" {
			label = string(a.Status)
		}
		if p.labels[string(role)] != label {
			p.labels[string(role)] = label
			fmt.Fprintf(p.out, "   %-10s %s\n", role.DisplayName(), label)
		}
	}

	for _, m := range s.AgentMessages[min(p.messages, len(s.AgentMessages)):] {
		fmt.Fprintf(p.out, "   [%s] %s\n", m.AgentName, m.Message)
	}
	p.messages = len(s.AgentMessages)

	if s.Project != nil {
		for _, f := range s.Project.Files[min(p.files, len(s.Project.Files)):] {
			fmt.Fprintf(p.out, "   + %s\n", f.Path)
		}
		p.files = len(s.Project.Files)
	}
}

func printPlan(out io.Writer, plan *models.ProjectPlan) {
	fmt.Fprintf(out, "\n%s (%s)\n", plan.ProjectName, plan.ProjectType)
	if plan.Description != "" {
		fmt.Fprintf(out, "%s\n", plan.Description)
	}
	stack := append(append([]string(nil), plan.TechStack.Frontend...), plan.TechStack.Backend...)
	if plan.TechStack.Database != "" {
		stack = append(stack, plan.TechStack.Database)
	}
	if len(stack) > 0 {
		fmt.Fprintf(out, "Stack: %s\n", strings.Join(stack, ", "))
	}
	for i, step := range plan.Steps {
		fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, step.Agent.DisplayName(), step.Task)
	}
	if plan.EstimatedTime != "" {
		fmt.Fprintf(out, "Estimated time: %s\n", plan.EstimatedTime)
	}
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, s client.State) {
	if s.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", s.Summary)
	}
	if len(s.RequiredSecrets) > 0 {
		fmt.Fprintf(out, "Secrets needed: %s\n", strings.Join(s.RequiredSecrets, ", "))
	}
	if s.MalformedFrames > 0 {
		fmt.Fprintf(out, "Skipped %d malformed events\n", s.MalformedFrames)
	}
}

// writeProject saves every project file under dir. Paths that would escape
// dir are rejected before anything is written.
func writeProject(dir string, project *models.GeneratedProject) (int, error) {
	if project == nil {
		return 0, client.ErrNoProject
	}
	for _, f := range project.Files {
		if !filepath.IsLocal(filepath.FromSlash(f.Path)) {
			return 0, fmt.Errorf("refusing to write %q outside %s", f.Path, dir)
		}
	}
	for _, f := range project.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return 0, err
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return 0, err
		}
	}
	if project.PreviewHTML != "" {
		if err := os.WriteFile(filepath.Join(dir, "preview.html"), []byte(project.PreviewHTML), 0o644); err != nil {
			return 0, err
		}
	}
	return len(project.Files), nil
}

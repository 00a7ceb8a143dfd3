package orchestrator

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

// Refine applies feedback to an existing project. The project is rebuilt from
// currentFiles; currentCode is only prompt context. Changed files from the
// reply replace their originals by path and new files are appended. The
// stream ends with preview_ready and code_generated carrying the whole merged
// project.
func (s *Service) Refine(ctx context.Context, req *models.OrchestratorRequest, out Emitter) error {
	plan := req.Plan
	role := models.RoleFrontend
	st := newStream(out, s.log)

	project := &models.GeneratedProject{
		Type:  plan.ProjectType,
		Name:  plan.ProjectName,
		Files: currentFiles(req),
	}
	currentCode := req.CurrentCode
	if currentCode == "" {
		currentCode = project.CombinedSource()
	}

	st.status(role, models.StatusThinking, "Reading your feedback")
	st.status(role, models.StatusCreating, "Applying changes")

	reply, err := s.call(ctx, st, role, refineSystemPrompt, refinePrompt(plan, req.Feedback, currentCode, req.OriginalMessage))
	if err != nil {
		s.log.Warn("refine failed", zap.Error(err))
		st.status(role, models.StatusError, "Refinement failed")
		st.send(events.Error(fmt.Sprintf("Refinement failed: %v", err)))
		return st.Err()
	}

	changed := extractFiles(reply)
	if len(changed) == 0 {
		st.patch(role, models.AgentInfo{Status: models.StatusError, StatusLabel: "No changes returned", Output: reply})
		st.send(events.Error("Refinement failed: the agent returned no code"))
		return st.Err()
	}
	mergeFiles(project, changed)

	project.PreviewHTML = BuildPreview(project)
	st.patch(role, models.AgentInfo{
		Status:      models.StatusComplete,
		StatusLabel: fmt.Sprintf("Updated %d %s", len(changed), plural(len(changed), "file")),
		Output:      reply,
	})
	if project.PreviewHTML != "" {
		st.send(events.PreviewReady(project.PreviewHTML))
	}
	st.send(events.CodeGenerated(project, refineSummary(changed)))
	return st.Err()
}

// currentFiles copies the structured files from the request. Older clients
// send only the combined blob, which is split on its header lines.
func currentFiles(req *models.OrchestratorRequest) []models.ProjectFile {
	if len(req.CurrentFiles) > 0 {
		return append([]models.ProjectFile(nil), req.CurrentFiles...)
	}
	return models.ParseCombinedSource(req.CurrentCode)
}

// mergeFiles replaces files by path. A changed file whose path is unknown
// but whose base name matches exactly one existing file replaces that file,
// since agents often drop directories from names.
func mergeFiles(project *models.GeneratedProject, changed []models.ProjectFile) {
	for _, f := range changed {
		if _, ok := project.File(f.Path); !ok {
			if p, ok := uniqueBaseMatch(project.Files, path.Base(f.Path)); ok {
				f.Path = p
			}
		}
		project.SetFile(f)
	}
}

func uniqueBaseMatch(files []models.ProjectFile, base string) (string, bool) {
	match := ""
	for _, f := range files {
		if path.Base(f.Path) != base {
			continue
		}
		if match != "" {
			return "", false
		}
		match = f.Path
	}
	return match, match != ""
}

func refineSummary(changed []models.ProjectFile) string {
	s := "Updated files:\n"
	for _, f := range changed {
		s += fmt.Sprintf("- `%s`\n", f.Path)
	}
	return s
}

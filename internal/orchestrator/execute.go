package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"heftcoder/internal/metrics"
	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

// ErrNoCode is returned by a stage whose reply contained no usable files.
var ErrNoCode = errors.New("agent reply contained no code")

// stageError records a failed stage for the summary.
type stageError struct {
	role models.AgentRole
	err  error
}

// Execute builds an approved plan. Stages run one after another in a fixed
// order (frontend, backend, qa); step dependencies are not scheduled. A failed
// stage is marked error and the pipeline continues. The stream always ends
// with a complete event unless ctx is cancelled.
func (s *Service) Execute(ctx context.Context, req *models.OrchestratorRequest, out Emitter) error {
	if req.Plan == nil {
		return errors.New("plan is required")
	}
	plan := req.Plan.Clone()
	normalizeSteps(plan)
	log := s.log.With(zap.String("project", plan.ProjectName), zap.String("project_type", string(plan.ProjectType)))

	roles := plan.Roles()
	if len(roles) == 0 {
		roles = []models.AgentRole{models.RoleFrontend}
	}

	st := newStream(out, log)
	for _, role := range roles {
		st.agents[string(role)] = models.NewAgentInfo(role)
	}
	st.send(events.AgentsInit(st.snapshot()))

	project := &models.GeneratedProject{
		Type:  plan.ProjectType,
		Name:  plan.ProjectName,
		Files: []models.ProjectFile{},
	}
	has := func(r models.AgentRole) bool {
		_, ok := st.agents[string(r)]
		return ok
	}

	var failed []stageError
	stages := []struct {
		role models.AgentRole
		run  func() error
	}{
		{models.RoleFrontend, func() error { return s.runFrontend(ctx, st, plan, req.OriginalMessage, project) }},
		{models.RoleBackend, func() error { return s.runBackend(ctx, st, plan, req.OriginalMessage, project) }},
		{models.RoleQA, func() error { return s.runQA(ctx, st) }},
	}
	for _, stage := range stages {
		if !has(stage.role) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		err := stage.run()
		metrics.Get().RecordStage(string(stage.role), err == nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("stage failed",
				zap.String("agent", string(stage.role)),
				zap.Duration("duration", time.Since(started)),
				zap.Error(err))
			failed = append(failed, stageError{role: stage.role, err: err})
			continue
		}
		log.Debug("stage complete", zap.String("agent", string(stage.role)), zap.Duration("duration", time.Since(started)))
	}

	for _, role := range roles {
		switch role {
		case models.RoleFrontend, models.RoleBackend, models.RoleQA:
			continue
		}
		st.status(role, models.StatusComplete, "No work required")
	}

	if preview := BuildPreview(project); preview != "" {
		project.PreviewHTML = preview
		st.send(events.PreviewReady(preview))
	}

	agents := st.snapshot()
	st.send(events.Complete(project, buildSummary(plan, project, agents, failed), agents))
	log.Info("build finished", zap.Int("files", len(project.Files)), zap.Int("failed_stages", len(failed)))
	return st.Err()
}

func (s *Service) runFrontend(ctx context.Context, st *stream, plan *models.ProjectPlan, original string, project *models.GeneratedProject) error {
	role := models.RoleFrontend
	st.status(role, models.StatusThinking, "Reviewing the plan")
	st.status(role, models.StatusCreating, "Writing UI code")

	reply, err := s.call(ctx, st, role, frontendSystemPrompt, frontendPrompt(plan, original))
	if err != nil {
		st.status(role, models.StatusError, "Code generation failed")
		return fmt.Errorf("frontend agent: %w", err)
	}

	files := extractFiles(reply)
	if len(files) == 0 {
		st.patch(role, models.AgentInfo{Status: models.StatusError, StatusLabel: "No code in reply", Output: reply})
		return ErrNoCode
	}
	for _, f := range files {
		project.AddFile(f)
		st.send(events.FileGenerated(f))
	}

	st.patch(role, models.AgentInfo{
		Status:      models.StatusComplete,
		StatusLabel: fmt.Sprintf("Generated %d %s", len(files), plural(len(files), "file")),
		Output:      reply,
		Code:        files[0].Content,
	})
	return nil
}

// runBackend keeps the reply verbatim as the agent output and lifts migrations
// and edge functions out of it as artifacts.
func (s *Service) runBackend(ctx context.Context, st *stream, plan *models.ProjectPlan, original string, project *models.GeneratedProject) error {
	role := models.RoleBackend
	st.status(role, models.StatusThinking, "Designing the data model")
	st.status(role, models.StatusInstalling, "Setting up the backend")

	reply, err := s.call(ctx, st, role, backendSystemPrompt, backendPrompt(plan, original))
	if err != nil {
		st.status(role, models.StatusError, "Backend setup failed")
		return fmt.Errorf("backend agent: %w", err)
	}

	artifacts := extractBackendArtifacts(reply)
	for _, a := range artifacts {
		project.AddFile(a.AsFile())
		st.send(events.BackendArtifact(a))
	}
	if names := requiredSecrets(reply); len(names) > 0 {
		st.send(events.SecretsRequired(names))
	}

	label := "Backend ready"
	if len(artifacts) > 0 {
		label = fmt.Sprintf("Generated %d backend %s", len(artifacts), plural(len(artifacts), "artifact"))
	}
	st.patch(role, models.AgentInfo{Status: models.StatusComplete, StatusLabel: label, Output: reply})
	return nil
}

// runQA is a simulated pass: it waits QADelay and reports success.
func (s *Service) runQA(ctx context.Context, st *stream) error {
	role := models.RoleQA
	st.status(role, models.StatusTesting, "Running checks")

	if s.cfg.QADelay > 0 {
		t := time.NewTimer(s.cfg.QADelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	st.status(role, models.StatusComplete, "All tests passed")
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func failureText(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"heftcoder/internal/metrics"
	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// PlanOutcome is the result of a planning call: either a plan or questions.
type PlanOutcome struct {
	Plan      *models.ProjectPlan
	Questions []models.ClarifyingQuestion
	// Fallback is set when Plan came from the keyword heuristic.
	Fallback       bool
	FallbackReason string
}

// NeedsClarification reports whether the architect asked questions.
func (o *PlanOutcome) NeedsClarification() bool {
	return len(o.Questions) > 0
}

// CreatePlan asks the architect for a plan. An unusable reply, or a failed
// call, yields the heuristic plan; only context cancellation is an error.
func (s *Service) CreatePlan(ctx context.Context, message string, history []models.ChatMessage) (*PlanOutcome, error) {
	reply, err := s.agents.CallAgent(ctx, models.RoleArchitect, architectSystemPrompt, architectPrompt(message, history))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("architect call failed, using heuristic plan", zap.Error(err))
		return s.fallback(message, "agent_error"), nil
	}
	return s.parseArchitectReply(message, reply), nil
}

func (s *Service) fallback(message, reason string) *PlanOutcome {
	metrics.Get().RecordFallbackPlan(reason)
	return &PlanOutcome{Plan: FallbackPlan(message), Fallback: true, FallbackReason: reason}
}

// parseArchitectReply pulls the outermost {...} from the reply and decodes it
// as a plan or a clarification request.
func (s *Service) parseArchitectReply(message, reply string) *PlanOutcome {
	raw := jsonObjectRe.FindString(reply)
	if raw == "" {
		return s.fallback(message, "no_json")
	}
	if !gjson.Valid(raw) {
		return s.fallback(message, "invalid_json")
	}

	if gjson.Get(raw, "needs_clarification").Bool() {
		if strings.Contains(message, models.AnswersHeader) {
			return s.fallback(message, "clarification_repeated")
		}
		qs := parseQuestions(gjson.Get(raw, "questions"))
		if len(qs) == 0 {
			return s.fallback(message, "no_questions")
		}
		return &PlanOutcome{Questions: qs}
	}

	var plan models.ProjectPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		s.log.Debug("architect reply is not a plan", zap.Error(err))
		return s.fallback(message, "invalid_json")
	}
	normalizePlan(&plan, message)
	return &PlanOutcome{Plan: &plan}
}

func parseQuestions(v gjson.Result) []models.ClarifyingQuestion {
	if !v.IsArray() {
		return nil
	}
	var out []models.ClarifyingQuestion
	for i, item := range v.Array() {
		q := models.ClarifyingQuestion{
			ID:       item.Get("id").String(),
			Question: strings.TrimSpace(item.Get("question").String()),
			Type:     models.QuestionType(item.Get("type").String()),
		}
		if item.Type == gjson.String {
			q.Question = strings.TrimSpace(item.String())
		}
		if q.Question == "" {
			continue
		}
		for _, opt := range item.Get("options").Array() {
			if s := strings.TrimSpace(opt.String()); s != "" {
				q.Options = append(q.Options, s)
			}
		}
		if q.ID == "" {
			q.ID = "q" + strconv.Itoa(i+1)
		}
		if q.Type != models.QuestionText && q.Type != models.QuestionChoice {
			q.Type = models.QuestionText
			if len(q.Options) > 0 {
				q.Type = models.QuestionChoice
			}
		}
		out = append(out, q)
	}
	return out
}

// normalizePlan coerces an architect plan into a usable shape. An unknown
// projectType becomes webapp.
// normalizeSteps numbers unnamed steps and lowercases agent roles.
func normalizeSteps(plan *models.ProjectPlan) {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.ID == "" {
			step.ID = strconv.Itoa(i + 1)
		}
		step.Agent = models.AgentRole(strings.ToLower(strings.TrimSpace(string(step.Agent))))
		if step.Dependencies == nil {
			step.Dependencies = []string{}
		}
	}
}

func normalizePlan(plan *models.ProjectPlan, message string) {
	plan.ProjectType = models.ProjectType(strings.ToLower(strings.TrimSpace(string(plan.ProjectType))))
	if !plan.ProjectType.Valid() {
		plan.ProjectType = models.ProjectWebApp
	}
	if strings.TrimSpace(plan.ProjectName) == "" {
		plan.ProjectName = defaultProjectName(plan.ProjectType)
	}
	if strings.TrimSpace(plan.Description) == "" {
		plan.Description = message
	}
	if plan.TechStack.Frontend == nil {
		plan.TechStack.Frontend = []string{}
	}
	if plan.TechStack.Backend == nil {
		plan.TechStack.Backend = []string{}
	}
	if len(plan.Steps) == 0 {
		plan.Steps = defaultSteps(plan.ProjectType)
	}
	normalizeSteps(plan)
	if plan.EstimatedTime == "" {
		plan.EstimatedTime = defaultEstimate(plan.ProjectType)
	}
}

// Plan is the streamed planning action: architect status, then plan_ready or
// clarification_needed.
func (s *Service) Plan(ctx context.Context, req *models.OrchestratorRequest, out Emitter) error {
	st := newStream(out, s.log)
	st.status(models.RoleArchitect, models.StatusThinking, "Analyzing your request")

	outcome, err := s.CreatePlan(ctx, req.Message, req.ConversationHistory)
	if err != nil {
		st.status(models.RoleArchitect, models.StatusError, "Planning cancelled")
		st.send(events.Error(fmt.Sprintf("Planning failed: %v", err)))
		return err
	}

	if outcome.NeedsClarification() {
		st.status(models.RoleArchitect, models.StatusComplete, "Needs a few details")
		st.send(events.ClarificationNeeded(outcome.Questions))
		return nil
	}

	st.status(models.RoleArchitect, models.StatusComplete, "Plan ready")
	st.send(events.PlanReady(outcome.Plan))
	return nil
}

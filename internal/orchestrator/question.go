package orchestrator

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

var errEmptyReply = errors.New("empty reply")

const questionFailedMessage = "Sorry, I could not answer that right now. Please try again."

// Answer handles a side question about a plan. The reply lands in the agent
// message log; the plan is not changed. A failed call is reported as an
// agent message and an error status, never as an error event.
func (s *Service) Answer(ctx context.Context, req *models.OrchestratorRequest, out Emitter) error {
	role := models.RoleArchitect
	name := role.DisplayName()

	st := newStream(out, s.log)
	st.status(role, models.StatusThinking, "Considering your question")

	reply, err := s.agents.CallAgent(ctx, role, questionSystemPrompt, questionPrompt(req.Plan, req.Question, req.OriginalMessage))
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = errEmptyReply
	}
	if err != nil {
		s.log.Warn("question failed", zap.Error(err))
		st.send(events.AgentMessage(string(role), name, questionFailedMessage))
		st.status(role, models.StatusError, "Could not answer")
		return st.Err()
	}

	st.send(events.AgentMessage(string(role), name, reply))
	st.status(role, models.StatusComplete, "Answered")
	return st.Err()
}

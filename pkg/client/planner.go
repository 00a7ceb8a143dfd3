package client

import (
	"errors"
	"fmt"
	"strings"

	"heftcoder/pkg/models"
)

// TransportKind selects how planning requests reach the server.
type TransportKind string

const (
	// TransportJob submits plan_async and polls job_status.
	TransportJob TransportKind = "job"
	// TransportStream posts plan and folds the event stream.
	TransportStream TransportKind = "stream"
)

// JobFailedError is a planning job that ended in the failed status.
type JobFailedError struct {
	JobID   string
	Message string
}

func (e *JobFailedError) Error() string {
	return e.Message
}

// planSubmitter runs one planning round. On return the state holds a plan,
// clarifying questions, or an error.
type planSubmitter interface {
	submitPlan(r *run, message string, history []models.ChatMessage) error
}

type jobPlanner struct {
	transport *Transport
	poller    *poller
}

func (p *jobPlanner) submitPlan(r *run, message string, _ []models.ChatMessage) error {
	jobID, err := p.transport.SubmitJob(r.ctx, message)
	if err != nil {
		return err
	}
	if !r.update(func(s *State) { s.JobID = jobID }) {
		return ErrReset
	}

	job, err := p.poller.run(r.ctx, jobID, func(job *models.PlanningJob) {
		r.update(func(s *State) { foldJob(s, job) })
	})
	if err != nil {
		return err
	}
	if job.Status == models.JobFailed {
		return &JobFailedError{JobID: jobID, Message: jobFailureText(job)}
	}
	return nil
}

type streamPlanner struct {
	transport *Transport
}

func (p *streamPlanner) submitPlan(r *run, message string, history []models.ChatMessage) error {
	return r.stream(p.transport, &models.OrchestratorRequest{
		Action:              models.ActionPlan,
		Message:             message,
		ConversationHistory: history,
	})
}

func jobFailureText(job *models.PlanningJob) string {
	if job.Error != "" {
		return job.Error
	}
	return "Planning failed"
}

// foldJob applies a polled PlanningJob snapshot to s.
func foldJob(s *State, job *models.PlanningJob) {
	architect := string(models.RoleArchitect)
	a := s.Agents[architect]
	if a.AgentID == "" {
		a = models.NewAgentInfo(models.RoleArchitect)
	}

	switch job.Status {
	case models.JobClarifying:
		s.Questions = append([]models.ClarifyingQuestion(nil), job.ClarifyingQuestions...)
		s.Phase = PhaseClarifying
		a.Status, a.StatusLabel = models.StatusComplete, "Waiting for your answers"

	case models.JobAwaitingApproval, models.JobComplete:
		if job.Plan == nil {
			s.fail("Planning finished without a plan")
			a.Status, a.StatusLabel = models.StatusError, "No plan returned"
			break
		}
		s.Plan = job.Plan.Clone()
		s.Questions = nil
		s.Phase = PhaseAwaitingApproval
		a.Status, a.StatusLabel = models.StatusComplete, "Plan ready"

	case models.JobFailed:
		s.fail(jobFailureText(job))
		a.Status, a.StatusLabel = models.StatusError, "Planning failed"

	default:
		a.Status = models.StatusThinking
		a.StatusLabel = fmt.Sprintf("Planning... %d%%", job.Progress)
	}
	s.Agents[architect] = a
}

// FormatAnswers folds answers into the text block appended to the planning
// prompt. Questions are kept in asked order; unanswered ones are left out.
func FormatAnswers(questions []models.ClarifyingQuestion, answers map[string]string) string {
	var b strings.Builder
	b.WriteString(models.AnswersHeader)
	for _, q := range questions {
		answer := strings.TrimSpace(answers[q.ID])
		if answer == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(q.Question)
		b.WriteString(": ")
		b.WriteString(answer)
	}
	return b.String()
}

// streamOutcome checks the phase a streamed action left behind. ok lists the
// phases that mean success.
func streamOutcome(s *State, label string, ok ...Phase) error {
	for _, p := range ok {
		if s.Phase == p {
			return nil
		}
	}
	if s.Phase == PhaseError {
		return &ServerError{Message: s.Error}
	}
	s.fail(label + " ended before the server finished")
	return ErrIncomplete
}

// ServerError is an error event sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// userText is the message shown for err.
func userText(err error) string {
	var jf *JobFailedError
	var se *ServerError
	switch {
	case errors.As(err, &jf):
		return jf.Message
	case errors.As(err, &se):
		return se.Message
	case errors.Is(err, ErrPollTimeout):
		return "Planning took too long. Please try again."
	}
	return err.Error()
}

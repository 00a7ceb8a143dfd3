package models

import (
	"errors"
	"strings"
)

// Action selects the orchestrator endpoint behaviour.
type Action string

const (
	ActionPlan      Action = "plan"       // streamed planning
	ActionPlanAsync Action = "plan_async" // job-based planning, returns {jobId}
	ActionJobStatus Action = "job_status" // PlanningJob snapshot
	ActionExecute   Action = "execute"    // streamed build of an approved plan
	ActionQuestion  Action = "question"   // streamed answer about a plan
	ActionRefine    Action = "refine"     // streamed revision of a generated project
)

// Streams reports whether the action answers with an event stream.
func (a Action) Streams() bool {
	switch a {
	case ActionPlan, ActionExecute, ActionQuestion, ActionRefine:
		return true
	}
	return false
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OrchestratorRequest is the body of every orchestrator call. Only the fields
// the action needs are set.
type OrchestratorRequest struct {
	Action              Action        `json:"action"`
	Message             string        `json:"message,omitempty"`
	ConversationHistory []ChatMessage `json:"conversationHistory,omitempty"`
	JobID               string        `json:"jobId,omitempty"`
	Plan                *ProjectPlan  `json:"plan,omitempty"`
	OriginalMessage     string        `json:"originalMessage,omitempty"`
	Question            string        `json:"question,omitempty"`
	Feedback            string        `json:"feedback,omitempty"`
	CurrentCode         string        `json:"currentCode,omitempty"`
	CurrentFiles        []ProjectFile `json:"currentFiles,omitempty"`
}

// Validate checks that the fields the action requires are present.
func (r *OrchestratorRequest) Validate() error {
	switch r.Action {
	case ActionPlan, ActionPlanAsync:
		if strings.TrimSpace(r.Message) == "" {
			return errors.New("message is required")
		}
	case ActionJobStatus:
		if r.JobID == "" {
			return errors.New("jobId is required")
		}
	case ActionExecute:
		if r.Plan == nil {
			return errors.New("plan is required")
		}
	case ActionQuestion:
		if r.Plan == nil {
			return errors.New("plan is required")
		}
		if strings.TrimSpace(r.Question) == "" {
			return errors.New("question is required")
		}
	case ActionRefine:
		if r.Plan == nil {
			return errors.New("plan is required")
		}
		if strings.TrimSpace(r.Feedback) == "" {
			return errors.New("feedback is required")
		}
	case "":
		return errors.New("action is required")
	default:
		return errors.New("unknown action: " + string(r.Action))
	}
	return nil
}

// JobAccepted is the reply to plan_async.
type JobAccepted struct {
	JobID string `json:"jobId"`
}

// AnswersHeader introduces the answers to clarifying questions when they are
// folded into a planning message. The architect does not ask again once it
// is present.
const AnswersHeader = "Answers to clarifying questions:"

// RevisionHeader introduces plan revision feedback folded into a message.
const RevisionHeader = "Please revise the plan with this feedback:"

// Package models holds the domain types shared by the HeftCoder server and
// its clients: plans, agents, generated projects and planning jobs.
package models

import (
	"strings"
	"time"
)

// AgentRole identifies an upstream agent. An agent is a named LLM call, not a
// process.
type AgentRole string

const (
	RoleArchitect  AgentRole = "architect"  // Produces the project plan
	RoleFrontend   AgentRole = "frontend"   // Generates UI code
	RoleBackend    AgentRole = "backend"    // Database and server functions
	RoleIntegrator AgentRole = "integrator" // Wires frontend to backend
	RoleQA         AgentRole = "qa"         // Verifies the build
	RoleDevOps     AgentRole = "devops"     // Deployment configuration
)

// AllRoles lists every known role in display order.
var AllRoles = []AgentRole{RoleArchitect, RoleFrontend, RoleBackend, RoleIntegrator, RoleQA, RoleDevOps}

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// DisplayName returns the human readable agent name shown in the UI.
func (r AgentRole) DisplayName() string {
	switch r {
	case RoleArchitect:
		return "Architect"
	case RoleFrontend:
		return "Frontend Engineer"
	case RoleBackend:
		return "Backend Engineer"
	case RoleIntegrator:
		return "Integrator"
	case RoleQA:
		return "QA Engineer"
	case RoleDevOps:
		return "DevOps Engineer"
	}
	if r == "" {
		return "Agent"
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// AgentStatus is the per-agent lifecycle position.
type AgentStatus string

const (
	StatusIdle       AgentStatus = "idle"
	StatusThinking   AgentStatus = "thinking"
	StatusInstalling AgentStatus = "installing"
	StatusCreating   AgentStatus = "creating"
	StatusTesting    AgentStatus = "testing"
	StatusDeploying  AgentStatus = "deploying"
	StatusComplete   AgentStatus = "complete"
	StatusError      AgentStatus = "error"
)

// IsActive reports whether the agent is doing work right now. Drives the
// animated progress indicators.
func (s AgentStatus) IsActive() bool {
	switch s {
	case StatusThinking, StatusInstalling, StatusCreating, StatusTesting, StatusDeploying:
		return true
	}
	return false
}

// AgentInfo is the client-visible record of one agent.
type AgentInfo struct {
	AgentID     string      `json:"agentId"`
	AgentName   string      `json:"agentName,omitempty"`
	Role        AgentRole   `json:"role,omitempty"`
	Status      AgentStatus `json:"status"`
	StatusLabel string      `json:"statusLabel,omitempty"`
	Output      string      `json:"output,omitempty"`
	Code        string      `json:"code,omitempty"`
}

// Merge applies patch on top of a. Fields the patch leaves empty keep their
// previous value, except Status and StatusLabel which always follow the patch
// (last write wins).
func (a AgentInfo) Merge(patch AgentInfo) AgentInfo {
	out := a
	if patch.AgentID != "" {
		out.AgentID = patch.AgentID
	}
	if patch.AgentName != "" {
		out.AgentName = patch.AgentName
	}
	if patch.Role != "" {
		out.Role = patch.Role
	}
	if patch.Status != "" {
		out.Status = patch.Status
	}
	out.StatusLabel = patch.StatusLabel
	if patch.Output != "" {
		out.Output = patch.Output
	}
	if patch.Code != "" {
		out.Code = patch.Code
	}
	return out
}

// NewAgentInfo returns an idle record for role.
func NewAgentInfo(role AgentRole) AgentInfo {
	return AgentInfo{
		AgentID:   string(role),
		AgentName: role.DisplayName(),
		Role:      role,
		Status:    StatusIdle,
	}
}

// CloneAgents copies an agent map. Nil stays nil.
func CloneAgents(in map[string]AgentInfo) map[string]AgentInfo {
	if in == nil {
		return nil
	}
	out := make(map[string]AgentInfo, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// PlanningJob is the server-side asynchronous planning task. Clients treat it
// as a read-only polled resource.
type PlanningJob struct {
	ID                  string               `json:"id"`
	Prompt              string               `json:"prompt"`
	Status              JobStatus            `json:"status"`
	Progress            int                  `json:"progress"`
	Plan                *ProjectPlan         `json:"plan,omitempty"`
	ClarifyingQuestions []ClarifyingQuestion `json:"clarifying_questions,omitempty"`
	Error               string               `json:"error,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// JobStatus is the lifecycle position of a PlanningJob.
type JobStatus string

const (
	JobPending          JobStatus = "pending"
	JobProcessing       JobStatus = "processing"
	JobClarifying       JobStatus = "clarifying"
	JobAwaitingApproval JobStatus = "awaiting_approval"
	JobComplete         JobStatus = "complete"
	JobFailed           JobStatus = "failed"
)

// IsTerminal reports whether the worker is done with the job. A clarifying job
// is terminal for this round: answering starts a new job.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobClarifying, JobAwaitingApproval, JobComplete, JobFailed:
		return true
	}
	return false
}

// PublishedPage is a generated site published under a public slug.
type PublishedPage struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	Slug        string    `json:"slug" gorm:"uniqueIndex;not null"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	HTML        string    `json:"-" gorm:"type:text;not null"`
	Visits      int64     `json:"visits" gorm:"default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

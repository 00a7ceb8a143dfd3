// Package events defines the server to client event protocol: a flat tagged
// union carried in "data: <json>" frames over a text/event-stream response.
package events

import (
	"heftcoder/pkg/models"
)

// Type discriminates events.
type Type string

const (
	TypeAgentsInit            Type = "agents_init"
	TypeAgentStatus           Type = "agent_status"
	TypeAgentsUpdate          Type = "agents_update"
	TypeAgentStream           Type = "agent_stream"
	TypeAgentMessage          Type = "agent_message"
	TypePlanReady             Type = "plan_ready"
	TypeClarificationNeeded   Type = "clarification_needed"
	TypeFileGenerated         Type = "file_generated"
	TypeMigrationGenerated    Type = "migration_generated"
	TypeEdgeFunctionGenerated Type = "edge_function_generated"
	TypeSecretsRequired       Type = "secrets_required"
	TypePreviewReady          Type = "preview_ready"
	TypeCodeGenerated         Type = "code_generated"
	TypeProjectComplete       Type = "project_complete"
	TypeComplete              Type = "complete"
	TypeError                 Type = "error"
)

var knownTypes = map[Type]bool{
	TypeAgentsInit:            true,
	TypeAgentStatus:           true,
	TypeAgentsUpdate:          true,
	TypeAgentStream:           true,
	TypeAgentMessage:          true,
	TypePlanReady:             true,
	TypeClarificationNeeded:   true,
	TypeFileGenerated:         true,
	TypeMigrationGenerated:    true,
	TypeEdgeFunctionGenerated: true,
	TypeSecretsRequired:       true,
	TypePreviewReady:          true,
	TypeCodeGenerated:         true,
	TypeProjectComplete:       true,
	TypeComplete:              true,
	TypeError:                 true,
}

// Known reports whether t is part of the protocol.
func (t Type) Known() bool {
	return knownTypes[t]
}

// IsBuildComplete reports whether t is one of the three build-finished shapes.
func (t Type) IsBuildComplete() bool {
	return t == TypeCodeGenerated || t == TypeProjectComplete || t == TypeComplete
}

// Event is a single protocol message. Only the fields relevant to Type are set.
//
// agent_stream carries Output as the cumulative text produced so far. Chunk is
// a delta accepted from producers that stream increments; consumers append it
// to what they already hold.
type Event struct {
	Type Type `json:"type"`

	// agents_init, agents_update, and the build-complete shapes
	Agents map[string]models.AgentInfo `json:"agents,omitempty"`

	// agent_status, agent_stream, agent_message
	AgentID     string             `json:"agentId,omitempty"`
	AgentName   string             `json:"agentName,omitempty"`
	Role        models.AgentRole   `json:"role,omitempty"`
	Status      models.AgentStatus `json:"status,omitempty"`
	StatusLabel string             `json:"statusLabel,omitempty"`
	Output      string             `json:"output,omitempty"`
	Code        string             `json:"code,omitempty"`
	Chunk       string             `json:"chunk,omitempty"`

	// agent_message, error
	Message string `json:"message,omitempty"`

	Plan      *models.ProjectPlan         `json:"plan,omitempty"`
	Questions []models.ClarifyingQuestion `json:"questions,omitempty"`

	File     *models.ProjectFile     `json:"file,omitempty"`
	Artifact *models.BackendArtifact `json:"artifact,omitempty"`
	Secrets  []string                `json:"secrets,omitempty"`

	PreviewHTML string `json:"previewHtml,omitempty"`

	Project *models.GeneratedProject `json:"project,omitempty"`
	Summary string                   `json:"summary,omitempty"`

	// Result is filled by the Decoder for build-complete shapes. Never sent.
	Result *BuildResult `json:"-"`
}

// AgentPatch returns the agent fields of an agent_status event as a record to
// merge over the previous one.
func (e Event) AgentPatch() models.AgentInfo {
	return models.AgentInfo{
		AgentID:     e.AgentID,
		AgentName:   e.AgentName,
		Role:        e.Role,
		Status:      e.Status,
		StatusLabel: e.StatusLabel,
		Output:      e.Output,
		Code:        e.Code,
	}
}

// BuildResult is the normalised form of code_generated, project_complete and
// complete.
type BuildResult struct {
	Project *models.GeneratedProject
	Summary string
	Agents  map[string]models.AgentInfo
}

// AgentsInit replaces the client's agent map.
func AgentsInit(agents map[string]models.AgentInfo) Event {
	return Event{Type: TypeAgentsInit, Agents: agents}
}

// AgentsUpdate replaces the client's agent map mid-run.
func AgentsUpdate(agents map[string]models.AgentInfo) Event {
	return Event{Type: TypeAgentsUpdate, Agents: agents}
}

// AgentStatus patches one agent.
func AgentStatus(info models.AgentInfo) Event {
	return Event{
		Type:        TypeAgentStatus,
		AgentID:     info.AgentID,
		AgentName:   info.AgentName,
		Role:        info.Role,
		Status:      info.Status,
		StatusLabel: info.StatusLabel,
		Output:      info.Output,
		Code:        info.Code,
	}
}

// AgentStream reports the cumulative output of an agent.
func AgentStream(agentID, output string) Event {
	return Event{Type: TypeAgentStream, AgentID: agentID, Output: output}
}

// AgentMessage appends to the client's agent message log.
func AgentMessage(agentID, agentName, message string) Event {
	return Event{Type: TypeAgentMessage, AgentID: agentID, AgentName: agentName, Message: message}
}

// PlanReady delivers a plan for approval.
func PlanReady(plan *models.ProjectPlan) Event {
	return Event{Type: TypePlanReady, Plan: plan}
}

// ClarificationNeeded asks the user questions before planning.
func ClarificationNeeded(questions []models.ClarifyingQuestion) Event {
	return Event{Type: TypeClarificationNeeded, Questions: questions}
}

// FileGenerated appends a file to the project.
func FileGenerated(f models.ProjectFile) Event {
	return Event{Type: TypeFileGenerated, File: &f}
}

// BackendArtifact returns migration_generated or edge_function_generated
// depending on the artifact kind.
func BackendArtifact(a models.BackendArtifact) Event {
	t := TypeMigrationGenerated
	if a.Kind == models.ArtifactEdgeFunction {
		t = TypeEdgeFunctionGenerated
	}
	return Event{Type: t, Artifact: &a}
}

// SecretsRequired lists secret names the generated backend expects.
func SecretsRequired(names []string) Event {
	return Event{Type: TypeSecretsRequired, Secrets: names}
}

// PreviewReady carries an assembled preview document.
func PreviewReady(html string) Event {
	return Event{Type: TypePreviewReady, PreviewHTML: html}
}

// Complete finishes an execute run.
func Complete(project *models.GeneratedProject, summary string, agents map[string]models.AgentInfo) Event {
	return Event{Type: TypeComplete, Project: project, Summary: summary, Agents: agents}
}

// CodeGenerated finishes a refine run.
func CodeGenerated(project *models.GeneratedProject, summary string) Event {
	return Event{Type: TypeCodeGenerated, Project: project, Summary: summary}
}

// Error is a protocol-level failure.
func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

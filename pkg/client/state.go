package client

import (
	"fmt"
	"strings"
	"time"

	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

// Phase is the orchestrator position. It decides which actions are valid.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhasePlanning         Phase = "planning"
	PhaseClarifying       Phase = "clarifying"
	PhaseAwaitingApproval Phase = "awaiting_approval"
	PhaseBuilding         Phase = "building"
	PhaseRefining         Phase = "refining"
	PhaseComplete         Phase = "complete"
	PhaseError            Phase = "error"
)

// SystemAgentID marks log entries the client synthesises itself.
const SystemAgentID = "system"

// AgentMessage is one entry of the running agent log.
type AgentMessage struct {
	AgentID   string    `json:"agentId"`
	AgentName string    `json:"agentName"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// State is everything the presentation layer renders.
type State struct {
	Phase Phase

	Agents map[string]models.AgentInfo
	Plan   *models.ProjectPlan

	Project          *models.GeneratedProject
	BackendArtifacts []models.BackendArtifact
	RequiredSecrets  []string
	Summary          string

	Questions []models.ClarifyingQuestion

	OriginalMessage string
	Conversation    []models.ChatMessage
	AgentMessages   []AgentMessage

	JobID string
	Error string

	// MalformedFrames counts event frames dropped because they were not JSON.
	MalformedFrames int
}

func initialState() State {
	return State{Phase: PhaseIdle, Agents: map[string]models.AgentInfo{}}
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	out := s
	out.Agents = models.CloneAgents(s.Agents)
	if out.Agents == nil {
		out.Agents = map[string]models.AgentInfo{}
	}
	out.Plan = s.Plan.Clone()
	out.Project = s.Project.Clone()
	out.BackendArtifacts = append([]models.BackendArtifact(nil), s.BackendArtifacts...)
	out.RequiredSecrets = append([]string(nil), s.RequiredSecrets...)
	out.Questions = append([]models.ClarifyingQuestion(nil), s.Questions...)
	out.Conversation = append([]models.ChatMessage(nil), s.Conversation...)
	out.AgentMessages = append([]AgentMessage(nil), s.AgentMessages...)
	return out
}

// ActiveAgents lists agents that are currently working.
func (s State) ActiveAgents() []models.AgentInfo {
	var out []models.AgentInfo
	for _, role := range models.AllRoles {
		if a, ok := s.Agents[string(role)]; ok && a.Status.IsActive() {
			out = append(out, a)
		}
	}
	return out
}

func (s *State) fail(msg string) {
	s.Phase = PhaseError
	s.Error = msg
}

// ensureProject returns the project, creating an empty shell named after the
// plan when none exists yet.
func (s *State) ensureProject() *models.GeneratedProject {
	if s.Project == nil {
		p := &models.GeneratedProject{Type: models.ProjectWebApp, Name: "Untitled Project"}
		if s.Plan != nil {
			if s.Plan.ProjectType.Valid() {
				p.Type = s.Plan.ProjectType
			}
			if s.Plan.ProjectName != "" {
				p.Name = s.Plan.ProjectName
			}
		}
		s.Project = p
	}
	return s.Project
}

func (s *State) logMessage(agentID, agentName, msg string) {
	s.AgentMessages = append(s.AgentMessages, AgentMessage{
		AgentID:   agentID,
		AgentName: agentName,
		Message:   msg,
		At:        time.Now(),
	})
}

func agentKey(ev events.Event) string {
	if ev.AgentID != "" {
		return ev.AgentID
	}
	return string(ev.Role)
}

// foldEvent applies one server event to s. Unknown types are ignored.
func foldEvent(s *State, ev events.Event) {
	switch ev.Type {
	case events.TypeAgentsInit, events.TypeAgentsUpdate:
		s.Agents = models.CloneAgents(ev.Agents)
		if s.Agents == nil {
			s.Agents = map[string]models.AgentInfo{}
		}

	case events.TypeAgentStatus:
		key := agentKey(ev)
		if key == "" {
			return
		}
		s.Agents[key] = s.Agents[key].Merge(ev.AgentPatch())

	case events.TypeAgentStream:
		key := agentKey(ev)
		if key == "" {
			return
		}
		a := s.Agents[key]
		if a.AgentID == "" {
			a.AgentID = key
		}
		// Output is cumulative and replaces; Chunk is a delta and appends.
		switch {
		case ev.Output != "":
			a.Output = ev.Output
		case ev.Chunk != "":
			a.Output += ev.Chunk
		}
		s.Agents[key] = a

	case events.TypeAgentMessage:
		name := ev.AgentName
		if name == "" {
			name = models.AgentRole(ev.AgentID).DisplayName()
		}
		s.logMessage(ev.AgentID, name, ev.Message)

	case events.TypePlanReady:
		if ev.Plan == nil {
			return
		}
		s.Plan = ev.Plan.Clone()
		s.Questions = nil
		s.Phase = PhaseAwaitingApproval

	case events.TypeClarificationNeeded:
		s.Questions = append([]models.ClarifyingQuestion(nil), ev.Questions...)
		s.Phase = PhaseClarifying

	case events.TypeFileGenerated:
		if ev.File == nil {
			return
		}
		s.ensureProject().AddFile(*ev.File)

	case events.TypeMigrationGenerated, events.TypeEdgeFunctionGenerated:
		if ev.Artifact == nil {
			return
		}
		// Both the backend panel and the file list show artifacts.
		s.BackendArtifacts = append(s.BackendArtifacts, *ev.Artifact)
		s.ensureProject().AddFile(ev.Artifact.AsFile())

	case events.TypeSecretsRequired:
		added := addUnique(&s.RequiredSecrets, ev.Secrets)
		if len(added) > 0 {
			s.logMessage(SystemAgentID, "HeftCoder",
				fmt.Sprintf("This project needs the following secrets: %s. Add them in the secrets panel.", strings.Join(added, ", ")))
		}

	case events.TypePreviewReady:
		s.ensureProject().PreviewHTML = ev.PreviewHTML

	case events.TypeCodeGenerated, events.TypeProjectComplete, events.TypeComplete:
		res, _ := ev.AsBuildResult()
		foldBuildResult(s, res)

	case events.TypeError:
		msg := ev.Message
		if msg == "" {
			msg = "An unknown error occurred"
		}
		s.fail(msg)
	}
}

func foldBuildResult(s *State, res *events.BuildResult) {
	if res.Project != nil {
		project := res.Project.Clone()
		if project.PreviewHTML == "" && s.Project != nil {
			project.PreviewHTML = s.Project.PreviewHTML
		}
		s.Project = project
	} else {
		s.ensureProject()
	}
	if res.Agents != nil {
		s.Agents = models.CloneAgents(res.Agents)
	}
	if res.Summary != "" {
		s.Summary = res.Summary
		s.Conversation = append(s.Conversation, models.ChatMessage{Role: "assistant", Content: res.Summary})
	}
	s.Error = ""
	s.Phase = PhaseComplete
}

// addUnique appends the names not already in *dst and returns them.
func addUnique(dst *[]string, names []string) []string {
	seen := make(map[string]bool, len(*dst))
	for _, n := range *dst {
		seen[n] = true
	}
	var added []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		added = append(added, n)
		*dst = append(*dst, n)
	}
	return added
}

package models

// ProjectType is the kind of project the builder produces.
type ProjectType string

const (
	ProjectLanding ProjectType = "landing"
	ProjectWebApp  ProjectType = "webapp"
	ProjectNative  ProjectType = "native"
)

// Valid reports whether t is one of the supported project types.
func (t ProjectType) Valid() bool {
	return t == ProjectLanding || t == ProjectWebApp || t == ProjectNative
}

// TechStack lists the technologies a plan commits to.
type TechStack struct {
	Frontend []string `json:"frontend"`
	Backend  []string `json:"backend"`
	Database string   `json:"database"`
}

// PlanStep is one unit of planned work. Dependencies reference other step IDs
// and are descriptive only; execution order is fixed by role.
type PlanStep struct {
	ID           string    `json:"id"`
	Agent        AgentRole `json:"agent"`
	Task         string    `json:"task"`
	Dependencies []string  `json:"dependencies"`
}

// ProjectPlan is the architect's structured description of what to build.
type ProjectPlan struct {
	ProjectName   string      `json:"projectName"`
	ProjectType   ProjectType `json:"projectType"`
	Description   string      `json:"description"`
	TechStack     TechStack   `json:"techStack"`
	Steps         []PlanStep  `json:"steps"`
	EstimatedTime string      `json:"estimatedTime"`
}

// Roles returns the distinct roles referenced by the steps, in first-seen order.
func (p *ProjectPlan) Roles() []AgentRole {
	if p == nil {
		return nil
	}
	seen := make(map[AgentRole]bool)
	var roles []AgentRole
	for _, step := range p.Steps {
		if step.Agent == "" || seen[step.Agent] {
			continue
		}
		seen[step.Agent] = true
		roles = append(roles, step.Agent)
	}
	return roles
}

// HasRole reports whether any step is assigned to role.
func (p *ProjectPlan) HasRole(role AgentRole) bool {
	if p == nil {
		return false
	}
	for _, step := range p.Steps {
		if step.Agent == role {
			return true
		}
	}
	return false
}

// StepsFor returns the steps assigned to role.
func (p *ProjectPlan) StepsFor(role AgentRole) []PlanStep {
	if p == nil {
		return nil
	}
	var out []PlanStep
	for _, step := range p.Steps {
		if step.Agent == role {
			out = append(out, step)
		}
	}
	return out
}

// Clone returns a deep copy of the plan.
func (p *ProjectPlan) Clone() *ProjectPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.TechStack.Frontend = append([]string(nil), p.TechStack.Frontend...)
	out.TechStack.Backend = append([]string(nil), p.TechStack.Backend...)
	out.Steps = make([]PlanStep, len(p.Steps))
	for i, step := range p.Steps {
		step.Dependencies = append([]string(nil), step.Dependencies...)
		out.Steps[i] = step
	}
	return &out
}

// QuestionType controls how a clarifying question is rendered.
type QuestionType string

const (
	QuestionText   QuestionType = "text"
	QuestionChoice QuestionType = "choice"
)

// ClarifyingQuestion is asked by the architect before it commits to a plan.
type ClarifyingQuestion struct {
	ID       string       `json:"id"`
	Question string       `json:"question"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
}

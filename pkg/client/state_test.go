package client

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

var allStatuses = []models.AgentStatus{
	models.StatusIdle, models.StatusThinking, models.StatusInstalling, models.StatusCreating,
	models.StatusTesting, models.StatusDeploying, models.StatusComplete, models.StatusError,
}

func TestAgentStatusLastWriteWins(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		s := initialState()
		n := 1 + rng.Intn(12)
		var last models.AgentStatus
		for j := 0; j < n; j++ {
			last = allStatuses[rng.Intn(len(allStatuses))]
			foldEvent(&s, events.AgentStatus(models.AgentInfo{AgentID: "frontend", Status: last}))
		}
		require.Equal(t, last, s.Agents["frontend"].Status, "sequence %d", i)
	}
}

func TestAgentStatusKeepsOutputAndCode(t *testing.T) {
	s := initialState()
	foldEvent(&s, events.AgentStatus(models.AgentInfo{
		AgentID: "frontend", Role: models.RoleFrontend, Status: models.StatusCreating,
		Output: "draft", Code: "<p>", StatusLabel: "Writing",
	}))
	foldEvent(&s, events.AgentStatus(models.AgentInfo{AgentID: "frontend", Status: models.StatusComplete}))

	a := s.Agents["frontend"]
	assert.Equal(t, models.StatusComplete, a.Status)
	assert.Equal(t, "draft", a.Output)
	assert.Equal(t, "<p>", a.Code)
	assert.Equal(t, models.RoleFrontend, a.Role)
	assert.Empty(t, a.StatusLabel)
}

func TestAgentStatusKeyedByRole(t *testing.T) {
	s := initialState()
	foldEvent(&s, events.Event{Type: events.TypeAgentStatus, Role: models.RoleQA, Status: models.StatusTesting})
	assert.Equal(t, models.StatusTesting, s.Agents["qa"].Status)

	foldEvent(&s, events.Event{Type: events.TypeAgentStatus, Status: models.StatusTesting})
	assert.Len(t, s.Agents, 1, "events without an agent are dropped")
}

func TestAgentStreamSemantics(t *testing.T) {
	tests := []struct {
		name string
		evs  []events.Event
		want string
	}{
		{
			name: "cumulative output replaces",
			evs: []events.Event{
				events.AgentStream("frontend", "Hel"),
				events.AgentStream("frontend", "Hello"),
				events.AgentStream("frontend", "Hello!"),
			},
			want: "Hello!",
		},
		{
			name: "chunks append",
			evs: []events.Event{
				{Type: events.TypeAgentStream, AgentID: "frontend", Chunk: "Hel"},
				{Type: events.TypeAgentStream, AgentID: "frontend", Chunk: "lo"},
			},
			want: "Hello",
		},
		{
			name: "cumulative after chunks resyncs",
			evs: []events.Event{
				{Type: events.TypeAgentStream, AgentID: "frontend", Chunk: "Hx"},
				events.AgentStream("frontend", "Hello"),
			},
			want: "Hello",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := initialState()
			for _, ev := range tt.evs {
				foldEvent(&s, ev)
			}
			assert.Equal(t, tt.want, s.Agents["frontend"].Output)
			assert.Equal(t, "frontend", s.Agents["frontend"].AgentID)
		})
	}
}

func TestAgentsInitAndUpdateReplace(t *testing.T) {
	s := initialState()
	foldEvent(&s, events.AgentStatus(models.AgentInfo{AgentID: "architect", Status: models.StatusComplete}))
	foldEvent(&s, events.AgentsInit(map[string]models.AgentInfo{
		"frontend": models.NewAgentInfo(models.RoleFrontend),
	}))
	assert.Len(t, s.Agents, 1)
	assert.Contains(t, s.Agents, "frontend")

	foldEvent(&s, events.AgentsUpdate(nil))
	assert.NotNil(t, s.Agents)
	assert.Empty(t, s.Agents)
}

func TestPreviewReadyCreatesProjectShell(t *testing.T) {
	s := initialState()
	s.Plan = &models.ProjectPlan{ProjectName: "Landing", ProjectType: models.ProjectLanding}

	foldEvent(&s, events.PreviewReady("<html></html>"))

	require.NotNil(t, s.Project)
	assert.Equal(t, "Landing", s.Project.Name)
	assert.Equal(t, models.ProjectLanding, s.Project.Type)
	assert.Equal(t, "<html></html>", s.Project.PreviewHTML)
	assert.Empty(t, s.Project.Files)

	s2 := initialState()
	foldEvent(&s2, events.PreviewReady("<p>"))
	assert.Equal(t, "Untitled Project", s2.Project.Name)
	assert.Equal(t, models.ProjectWebApp, s2.Project.Type)
}

func TestFilesOnlyGrowDuringBuild(t *testing.T) {
	s := initialState()
	paths := []string{"index.html", "styles.css", "app.js"}
	for i, p := range paths {
		foldEvent(&s, events.FileGenerated(models.ProjectFile{Path: p, Content: "x"}))
		assert.Len(t, s.Project.Files, i+1)
	}
	edge := models.BackendArtifact{Kind: models.ArtifactEdgeFunction, Name: "send", Path: "supabase/functions/send/index.ts"}
	foldEvent(&s, events.BackendArtifact(edge))
	assert.Equal(t, append(paths, edge.Path), s.Project.Paths())
	assert.Len(t, s.BackendArtifacts, 1)
}

func TestBuildCompleteShapesConverge(t *testing.T) {
	project := &models.GeneratedProject{Name: "P", Type: models.ProjectWebApp, Files: []models.ProjectFile{{Path: "a.html"}}}
	for _, typ := range []events.Type{events.TypeCodeGenerated, events.TypeProjectComplete, events.TypeComplete} {
		t.Run(string(typ), func(t *testing.T) {
			s := initialState()
			s.Phase = PhaseBuilding
			s.Error = "stale"
			foldEvent(&s, events.Event{Type: typ, Project: project, Summary: "ok"})

			assert.Equal(t, PhaseComplete, s.Phase)
			assert.Empty(t, s.Error)
			assert.Equal(t, []string{"a.html"}, s.Project.Paths())
			assert.Equal(t, "ok", s.Summary)
		})
	}
}

func TestErrorAndUnknownEvents(t *testing.T) {
	s := initialState()
	s.Phase = PhasePlanning
	foldEvent(&s, events.Event{Type: "telemetry"})
	assert.Equal(t, PhasePlanning, s.Phase)

	foldEvent(&s, events.Error(""))
	assert.Equal(t, PhaseError, s.Phase)
	assert.Equal(t, "An unknown error occurred", s.Error)
}

func TestFoldJobProgress(t *testing.T) {
	s := initialState()
	foldJob(&s, &models.PlanningJob{Status: models.JobPending, Progress: 10})
	assert.Equal(t, "Planning... 10%", s.Agents["architect"].StatusLabel)
	assert.True(t, s.Agents["architect"].Status.IsActive())

	foldJob(&s, &models.PlanningJob{Status: models.JobComplete})
	assert.Equal(t, PhaseError, s.Phase, "a finished job without a plan is an error")
}

func TestFormatAnswers(t *testing.T) {
	qs := []models.ClarifyingQuestion{
		{ID: "a", Question: "Who is it for?"},
		{ID: "b", Question: "Any colours?"},
		{ID: "c", Question: "Deadline?"},
	}
	got := FormatAnswers(qs, map[string]string{"c": " Friday ", "a": "students", "zzz": "ignored"})
	assert.Equal(t, models.AnswersHeader+"\nWho is it for?: students\nDeadline?: Friday", got)
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := initialState()
	s.Plan = samplePlan()
	foldEvent(&s, events.FileGenerated(models.ProjectFile{Path: "index.html"}))
	foldEvent(&s, events.AgentStatus(models.AgentInfo{AgentID: "qa", Status: models.StatusTesting}))

	c := s.Clone()
	c.Agents["qa"] = models.AgentInfo{Status: models.StatusError}
	c.Project.Files[0].Path = "changed.html"
	c.Plan.Steps[0].Task = "changed"

	assert.Equal(t, models.StatusTesting, s.Agents["qa"].Status)
	assert.Equal(t, "index.html", s.Project.Files[0].Path)
	assert.Equal(t, "Build the UI", s.Plan.Steps[0].Task)
}

func TestActiveAgents(t *testing.T) {
	s := initialState()
	foldEvent(&s, events.AgentsInit(map[string]models.AgentInfo{
		"frontend": {AgentID: "frontend", Status: models.StatusCreating},
		"backend":  {AgentID: "backend", Status: models.StatusComplete},
		"qa":       {AgentID: "qa", Status: models.StatusTesting},
	}))
	active := s.ActiveAgents()
	require.Len(t, active, 2)
	assert.Equal(t, "frontend", active[0].AgentID)
	assert.Equal(t, "qa", active[1].AgentID)
}

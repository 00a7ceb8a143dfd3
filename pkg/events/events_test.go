package events

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heftcoder/pkg/models"
)

func decodeAll(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestWriterDecoderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	plan := &models.ProjectPlan{ProjectName: "Portfolio", ProjectType: models.ProjectWebApp}
	require.NoError(t, w.Send(AgentStatus(models.AgentInfo{AgentID: "architect", Status: models.StatusThinking})))
	require.NoError(t, w.Send(PlanReady(plan)))
	require.NoError(t, w.Done())
	assert.Equal(t, 3, w.Sent())

	assert.True(t, strings.HasSuffix(buf.String(), "data: [DONE]\n\n"))

	d := NewDecoder(&buf)
	evs := decodeAll(t, d)
	require.Len(t, evs, 2)
	assert.Equal(t, TypeAgentStatus, evs[0].Type)
	assert.Equal(t, models.StatusThinking, evs[0].Status)
	assert.Equal(t, TypePlanReady, evs[1].Type)
	assert.Equal(t, "Portfolio", evs[1].Plan.ProjectName)
	assert.True(t, d.Finished())
	assert.Zero(t, d.Malformed())
}

func TestWriterRejectsSendAfterDone(t *testing.T) {
	w := NewWriter(io.Discard)
	require.NoError(t, w.Done())
	assert.Error(t, w.Send(Error("late")))
	assert.Error(t, w.Done())
}

func TestWriterFlushesResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	SetStreamHeaders(rec.Header())
	w := NewWriter(rec)
	require.NoError(t, w.Send(PreviewReady("<html></html>")))

	assert.True(t, rec.Flushed)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
}

func TestDecoderDropsMalformedFrames(t *testing.T) {
	body := strings.Join([]string{
		`: keep-alive comment`,
		`data: {"type":"agent_status","agentId":"frontend","status":"creating"}`,
		``,
		`data: {"type":"agent_status","agentId":`,
		`data: not json at all`,
		`event: ignored`,
		`data: {"type":"file_generated","file":{"path":"index.html","content":"<h1>hi</h1>","language":"html"}}`,
		`data: [DONE]`,
		`data: {"type":"error","message":"after done"}`,
	}, "\n")

	d := NewDecoder(strings.NewReader(body))
	evs := decodeAll(t, d)

	require.Len(t, evs, 2)
	assert.Equal(t, "frontend", evs[0].AgentID)
	assert.Equal(t, "index.html", evs[1].File.Path)
	assert.Equal(t, 2, d.Malformed())
	assert.True(t, d.Finished())
}

func TestDecoderSkipsUnknownTypes(t *testing.T) {
	body := "data: {\"type\":\"telemetry\",\"x\":1}\n\ndata: {\"type\":\"error\",\"message\":\"boom\"}\n\n"
	d := NewDecoder(strings.NewReader(body))
	evs := decodeAll(t, d)

	require.Len(t, evs, 1)
	assert.Equal(t, "boom", evs[0].Message)
	assert.Equal(t, 1, d.Skipped())
	assert.False(t, d.Finished(), "body ended without sentinel")
}

func TestDecoderHandlesCRLFAndMissingTrailingNewline(t *testing.T) {
	body := "data: {\"type\":\"preview_ready\",\"previewHtml\":\"<p>x</p>\"}\r\n\r\ndata: {\"type\":\"error\",\"message\":\"tail\"}"
	evs := decodeAll(t, NewDecoder(strings.NewReader(body)))

	require.Len(t, evs, 2)
	assert.Equal(t, "<p>x</p>", evs[0].PreviewHTML)
	assert.Equal(t, "tail", evs[1].Message)
}

func TestBuildResultNormalisation(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantFiles []string
		wantSum   string
		wantAgent string
	}{
		{
			name:      "complete with project and agent map",
			frame:     `{"type":"complete","summary":"done","project":{"type":"webapp","name":"App","files":[{"path":"index.html","content":"x","language":"html"}]},"agents":{"qa":{"agentId":"qa","status":"complete"}}}`,
			wantFiles: []string{"index.html"},
			wantSum:   "done",
			wantAgent: "qa",
		},
		{
			name:      "project_complete with generatedProject and agent list",
			frame:     `{"type":"project_complete","generatedProject":{"name":"App","files":[{"path":"a.js","content":"1"}]},"agents":[{"agentId":"frontend","status":"complete"}]}`,
			wantFiles: []string{"a.js"},
			wantAgent: "frontend",
		},
		{
			name:      "code_generated with top level files",
			frame:     `{"type":"code_generated","name":"Legacy","files":[{"path":"styles.css","content":"body{}"}],"previewHtml":"<html></html>"}`,
			wantFiles: []string{"styles.css"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(strings.NewReader("data: " + tt.frame + "\n\n"))
			ev, err := d.Next()
			require.NoError(t, err)

			res, ok := ev.AsBuildResult()
			require.True(t, ok)
			require.NotNil(t, res.Project)
			assert.Equal(t, tt.wantFiles, res.Project.Paths())
			assert.Equal(t, tt.wantSum, res.Summary)
			if tt.wantAgent != "" {
				assert.Contains(t, res.Agents, tt.wantAgent)
			}
		})
	}
}

func TestAsBuildResultFromConstructedEvent(t *testing.T) {
	project := &models.GeneratedProject{Name: "P"}
	res, ok := Complete(project, "sum", nil).AsBuildResult()
	require.True(t, ok)
	assert.Same(t, project, res.Project)
	assert.Equal(t, "sum", res.Summary)

	_, ok = Error("x").AsBuildResult()
	assert.False(t, ok)
}

func TestBackendArtifactEventType(t *testing.T) {
	mig := BackendArtifact(models.BackendArtifact{Kind: models.ArtifactMigration})
	fn := BackendArtifact(models.BackendArtifact{Kind: models.ArtifactEdgeFunction})
	assert.Equal(t, TypeMigrationGenerated, mig.Type)
	assert.Equal(t, TypeEdgeFunctionGenerated, fn.Type)
}

package events

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"heftcoder/pkg/models"
)

// projectKeys are the locations producers have used for the finished project.
var projectKeys = []string{"project", "generatedProject", "result.project"}

// normalizeBuildResult extracts a BuildResult from any of the build-complete
// payload shapes.
func normalizeBuildResult(payload []byte) *BuildResult {
	res := &BuildResult{
		Summary: gjson.GetBytes(payload, "summary").String(),
	}

	for _, key := range projectKeys {
		v := gjson.GetBytes(payload, key)
		if !v.IsObject() {
			continue
		}
		var p models.GeneratedProject
		if err := json.Unmarshal([]byte(v.Raw), &p); err == nil {
			res.Project = &p
			break
		}
	}

	// Legacy producers put files at the top level.
	if res.Project == nil {
		if files := gjson.GetBytes(payload, "files"); files.IsArray() {
			p := &models.GeneratedProject{
				Name: gjson.GetBytes(payload, "name").String(),
				Type: models.ProjectType(gjson.GetBytes(payload, "projectType").String()),
			}
			_ = json.Unmarshal([]byte(files.Raw), &p.Files)
			res.Project = p
		}
	}

	if res.Project != nil && res.Project.PreviewHTML == "" {
		res.Project.PreviewHTML = gjson.GetBytes(payload, "previewHtml").String()
	}

	res.Agents = decodeAgents(gjson.GetBytes(payload, "agents"))
	return res
}

// decodeAgents accepts either a map keyed by agent id or an array of agent
// records.
func decodeAgents(v gjson.Result) map[string]models.AgentInfo {
	switch {
	case v.IsObject():
		var m map[string]models.AgentInfo
		if err := json.Unmarshal([]byte(v.Raw), &m); err != nil {
			return nil
		}
		return m
	case v.IsArray():
		var list []models.AgentInfo
		if err := json.Unmarshal([]byte(v.Raw), &list); err != nil {
			return nil
		}
		m := make(map[string]models.AgentInfo, len(list))
		for _, a := range list {
			key := a.AgentID
			if key == "" {
				key = string(a.Role)
			}
			m[key] = a
		}
		return m
	}
	return nil
}

// AsBuildResult returns the normalised build result of a build-complete event.
// Events built in-process (not decoded) are normalised from their fields.
func (e Event) AsBuildResult() (*BuildResult, bool) {
	if !e.Type.IsBuildComplete() {
		return nil, false
	}
	if e.Result != nil {
		return e.Result, true
	}
	return &BuildResult{Project: e.Project, Summary: e.Summary, Agents: e.Agents}, true
}

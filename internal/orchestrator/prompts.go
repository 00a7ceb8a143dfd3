package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"heftcoder/pkg/models"
)

const architectSystemPrompt = `You are the Architect agent of an AI app builder. You turn a user's request into a build plan.

Respond with ONLY a JSON object, no prose and no markdown fences, in exactly this shape:
{
  "projectName": "short name",
  "projectType": "landing" | "webapp" | "native",
  "description": "one paragraph describing what will be built",
  "techStack": {"frontend": ["..."], "backend": ["..."], "database": "..."},
  "steps": [
    {"id": "1", "agent": "frontend" | "backend" | "integrator" | "qa" | "devops", "task": "what this agent does", "dependencies": ["step ids"]}
  ],
  "estimatedTime": "e.g. 3-5 minutes"
}

If the request is too vague to plan (no idea what the product does or who it is for) respond instead with:
{"needs_clarification": true, "questions": [{"id": "q1", "question": "...", "type": "text" | "choice", "options": ["..."]}]}
Ask at most 4 questions. Never ask when the request already includes answers.`

const frontendSystemPrompt = `You are the Frontend Engineer agent of an AI app builder. You write complete, working, production quality UI code.

Rules:
- Return every file as a fenced code block with its language tag, e.g. ` + "```html" + `.
- Put a filename comment on the first line of each block when the file is not the obvious default, e.g. <!-- file: about.html --> or // file: app.js.
- Prefer a single index.html with Tailwind CSS classes plus styles.css and script.js when needed.
- No placeholders, no TODOs, no lorem ipsum unless asked.`

const backendSystemPrompt = `You are the Backend Engineer agent of an AI app builder. The backend runs on Supabase.

Rules:
- Database changes go in fenced ` + "```sql" + ` blocks, one migration per block, with a first line comment "-- file: supabase/migrations/NNN_name.sql".
- Server functions go in fenced ` + "```typescript" + ` blocks using Deno.serve, with a first line comment "// file: supabase/functions/<name>/index.ts".
- Read secrets with Deno.env.get("NAME"). Never hard-code keys.
- After the code, list the environment variables the functions need.`

const questionSystemPrompt = `You are the Architect agent of an AI app builder. The user is reviewing a plan you produced and has a question about it.
Answer clearly and briefly in plain text. Do not output a new plan unless asked to.`

const refineSystemPrompt = `You are the Frontend Engineer agent of an AI app builder. You are revising an existing project.

Rules:
- Apply the user's feedback to the current code.
- Return ONLY the files you changed or added, each as a complete fenced code block.
- Put a filename comment on the first line of each block naming the exact existing path, e.g. <!-- file: index.html -->.`

func planJSON(plan *models.ProjectPlan) string {
	b, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func architectPrompt(message string, history []models.ChatMessage) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Request:\n")
	b.WriteString(message)
	return b.String()
}

func frontendPrompt(plan *models.ProjectPlan, originalMessage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Build the frontend for %q (%s).\n\n", plan.ProjectName, plan.ProjectType)
	fmt.Fprintf(&b, "Original request:\n%s\n\n", originalMessage)
	fmt.Fprintf(&b, "Description:\n%s\n\n", plan.Description)
	if len(plan.TechStack.Frontend) > 0 {
		fmt.Fprintf(&b, "Frontend stack: %s\n\n", strings.Join(plan.TechStack.Frontend, ", "))
	}
	writeTasks(&b, plan, models.RoleFrontend)
	return b.String()
}

func backendPrompt(plan *models.ProjectPlan, originalMessage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Set up the backend for %q.\n\n", plan.ProjectName)
	fmt.Fprintf(&b, "Original request:\n%s\n\n", originalMessage)
	fmt.Fprintf(&b, "Description:\n%s\n\n", plan.Description)
	if plan.TechStack.Database != "" {
		fmt.Fprintf(&b, "Database: %s\n", plan.TechStack.Database)
	}
	if len(plan.TechStack.Backend) > 0 {
		fmt.Fprintf(&b, "Backend stack: %s\n", strings.Join(plan.TechStack.Backend, ", "))
	}
	b.WriteString("\n")
	writeTasks(&b, plan, models.RoleBackend)
	return b.String()
}

func writeTasks(b *strings.Builder, plan *models.ProjectPlan, role models.AgentRole) {
	steps := plan.StepsFor(role)
	if len(steps) == 0 {
		return
	}
	b.WriteString("Your tasks:\n")
	for _, s := range steps {
		fmt.Fprintf(b, "- %s\n", s.Task)
	}
}

func questionPrompt(plan *models.ProjectPlan, question, originalMessage string) string {
	var b strings.Builder
	if originalMessage != "" {
		fmt.Fprintf(&b, "Original request:\n%s\n\n", originalMessage)
	}
	fmt.Fprintf(&b, "Current plan:\n%s\n\n", planJSON(plan))
	fmt.Fprintf(&b, "Question:\n%s", question)
	return b.String()
}

func refinePrompt(plan *models.ProjectPlan, feedback, currentCode, originalMessage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %q (%s)\n\n", plan.ProjectName, plan.ProjectType)
	if originalMessage != "" {
		fmt.Fprintf(&b, "Original request:\n%s\n\n", originalMessage)
	}
	fmt.Fprintf(&b, "Current code:\n%s\n\n", currentCode)
	fmt.Fprintf(&b, "Requested changes:\n%s", feedback)
	return b.String()
}

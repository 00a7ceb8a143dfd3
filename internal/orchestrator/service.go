// Package orchestrator runs the server side of the agent pipeline: planning,
// plan questions, execution of an approved plan and refinement of a generated
// project. Every action reports progress as protocol events.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"heftcoder/internal/metrics"
	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

// AgentCaller runs one agent call and returns the reply text.
type AgentCaller interface {
	CallAgent(ctx context.Context, role models.AgentRole, system, prompt string) (string, error)
}

// StreamingAgentCaller can report the cumulative reply while it is produced.
type StreamingAgentCaller interface {
	AgentCaller
	StreamAgent(ctx context.Context, role models.AgentRole, system, prompt string, onOutput func(cumulative string)) (string, error)
}

// Emitter receives protocol events. *events.Writer implements it.
type Emitter interface {
	Send(ev events.Event) error
}

// Config tunes the pipeline.
type Config struct {
	// QADelay is how long the simulated QA pass takes.
	QADelay time.Duration
	// StreamOutput sends agent_stream events while agents write.
	StreamOutput bool
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{QADelay: time.Second, StreamOutput: true}
}

// Service implements the orchestrator actions.
type Service struct {
	agents AgentCaller
	cfg    Config
	log    *zap.Logger
}

// NewService creates a Service.
func NewService(agents AgentCaller, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{agents: agents, cfg: cfg, log: log}
}

// call runs an agent, streaming cumulative output to out when configured and
// supported.
func (s *Service) call(ctx context.Context, st *stream, role models.AgentRole, system, prompt string) (string, error) {
	if sc, ok := s.agents.(StreamingAgentCaller); ok && s.cfg.StreamOutput && st != nil {
		return sc.StreamAgent(ctx, role, system, prompt, func(cumulative string) {
			st.send(events.AgentStream(string(role), cumulative))
		})
	}
	return s.agents.CallAgent(ctx, role, system, prompt)
}

// stream wraps an Emitter. The first send error is kept and later sends are
// dropped, so a disconnected client does not abort bookkeeping.
type stream struct {
	out    Emitter
	log    *zap.Logger
	err    error
	agents map[string]models.AgentInfo
}

func newStream(out Emitter, log *zap.Logger) *stream {
	return &stream{out: out, log: log, agents: make(map[string]models.AgentInfo)}
}

func (st *stream) send(ev events.Event) {
	if st.err != nil {
		return
	}
	if err := st.out.Send(ev); err != nil {
		st.err = err
		st.log.Debug("event stream closed", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	metrics.Get().RecordStreamEvent(string(ev.Type))
}

// status merges patch into the tracked agent record and emits agent_status.
func (st *stream) status(role models.AgentRole, status models.AgentStatus, label string) models.AgentInfo {
	return st.patch(role, models.AgentInfo{Status: status, StatusLabel: label})
}

func (st *stream) patch(role models.AgentRole, patch models.AgentInfo) models.AgentInfo {
	key := string(role)
	prev, ok := st.agents[key]
	if !ok {
		prev = models.NewAgentInfo(role)
	}
	next := prev.Merge(patch)
	st.agents[key] = next
	st.send(events.AgentStatus(next))
	return next
}

func (st *stream) snapshot() map[string]models.AgentInfo {
	return models.CloneAgents(st.agents)
}

// Err returns the first send error.
func (st *stream) Err() error { return st.err }

// Run dispatches a streaming action. The caller validates req and closes the
// stream afterwards.
func (s *Service) Run(ctx context.Context, req *models.OrchestratorRequest, out Emitter) error {
	switch req.Action {
	case models.ActionPlan:
		return s.Plan(ctx, req, out)
	case models.ActionExecute:
		return s.Execute(ctx, req, out)
	case models.ActionQuestion:
		return s.Answer(ctx, req, out)
	case models.ActionRefine:
		return s.Refine(ctx, req, out)
	}
	return fmt.Errorf("action %q does not stream", req.Action)
}

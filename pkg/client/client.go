// Package client drives the HeftCoder orchestrator from the client side: it
// submits planning, build and refinement requests, folds the server's events
// into a single State, and enforces which actions are valid in which phase.
//
// Actions block until the server finishes the step. They must not overlap;
// Reset may be called from any goroutine and makes every in-flight action
// stale, so its late responses never touch the new state.
package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoPlan       = errors.New("no plan to act on")
	ErrNoProject    = errors.New("no generated project to refine")
	ErrNoQuestions  = errors.New("no clarifying questions to answer")
	ErrReset        = errors.New("orchestrator was reset")
	ErrIncomplete   = errors.New("stream ended before the action finished")
)

// Default polling settings.
const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultPollTimeout  = 120 * time.Second
)

// Config is injected at construction and fixed for the orchestrator's life.
type Config struct {
	// BaseURL of the HeftCoder server, e.g. http://localhost:8080.
	BaseURL string

	PollInterval time.Duration
	PollTimeout  time.Duration

	// PlanTransport carries the first planning request. Defaults to job.
	PlanTransport TransportKind
	// AnswerTransport carries answers and revisions. Defaults to
	// PlanTransport.
	AnswerTransport TransportKind

	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      Clock

	// OnChange receives a snapshot after every state change. It runs on the
	// goroutine of the action that made the change.
	OnChange func(State)
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.PlanTransport == "" {
		c.PlanTransport = TransportJob
	}
	if c.AnswerTransport == "" {
		c.AnswerTransport = c.PlanTransport
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

// Orchestrator is the client-side state machine.
type Orchestrator struct {
	cfg       Config
	transport *Transport
	log       *zap.Logger

	mu     sync.Mutex
	state  State
	epoch  uint64
	ctx    context.Context // cancelled by Reset
	cancel context.CancelFunc
}

// New returns an idle orchestrator.
func New(cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:       cfg,
		transport: NewTransport(cfg.BaseURL, cfg.HTTPClient, cfg.Logger),
		log:       cfg.Logger,
		state:     initialState(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Clone()
}

// Reset cancels in-flight work and returns to the initial idle state.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.epoch++
	o.cancel()
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.state = initialState()
	snap := o.state.Clone()
	o.mu.Unlock()
	o.notify(snap)
}

func (o *Orchestrator) notify(s State) {
	if o.cfg.OnChange != nil {
		o.cfg.OnChange(s)
	}
}

// run is one action's handle on the state. Its updates are dropped once a
// Reset has moved the epoch on.
type run struct {
	o      *Orchestrator
	epoch  uint64
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

func (o *Orchestrator) begin(ctx context.Context) *run {
	o.mu.Lock()
	epoch, base := o.epoch, o.ctx
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	return &run{
		o:      o,
		epoch:  epoch,
		ctx:    ctx,
		cancel: cancel,
		stop:   context.AfterFunc(base, cancel),
	}
}

func (r *run) end() {
	r.stop()
	r.cancel()
}

// update applies fn if the run is still current.
func (r *run) update(fn func(*State)) bool {
	o := r.o
	o.mu.Lock()
	if o.epoch != r.epoch {
		o.mu.Unlock()
		return false
	}
	fn(&o.state)
	snap := o.state.Clone()
	o.mu.Unlock()
	o.notify(snap)
	return true
}

// check runs fn under the lock and returns its error; a stale run gets
// ErrReset.
func (r *run) check(fn func(*State) error) error {
	var err error
	if !r.update(func(s *State) { err = fn(s) }) {
		return ErrReset
	}
	return err
}

// prepare is check for preconditions: fn must not touch the state when it
// returns an error, and no change is announced in that case.
func (r *run) prepare(fn func(*State) error) error {
	o := r.o
	o.mu.Lock()
	if o.epoch != r.epoch {
		o.mu.Unlock()
		return ErrReset
	}
	if err := fn(&o.state); err != nil {
		o.mu.Unlock()
		return err
	}
	snap := o.state.Clone()
	o.mu.Unlock()
	o.notify(snap)
	return nil
}

// fail records err as the user-visible error unless the run is stale.
func (r *run) fail(err error) error {
	if !r.update(func(s *State) { s.fail(userText(err)) }) {
		return ErrReset
	}
	r.o.log.Debug("orchestrator action failed", zap.Error(err))
	return err
}

// stream posts req and folds every event into the state.
func (r *run) stream(t *Transport, req *models.OrchestratorRequest) error {
	stats, err := t.Stream(r.ctx, req, func(ev events.Event) {
		r.update(func(s *State) { foldEvent(s, ev) })
	})
	if stats.Malformed > 0 {
		r.update(func(s *State) { s.MalformedFrames += stats.Malformed })
	}
	return err
}

func (o *Orchestrator) planner(kind TransportKind) planSubmitter {
	if kind == TransportStream {
		return &streamPlanner{transport: o.transport}
	}
	return &jobPlanner{
		transport: o.transport,
		poller: &poller{
			fetch:    o.transport,
			clock:    o.cfg.Clock,
			interval: o.cfg.PollInterval,
			timeout:  o.cfg.PollTimeout,
			log:      o.log,
		},
	}
}

// plan runs one planning round and settles the phase.
func (o *Orchestrator) plan(r *run, kind TransportKind, message string, history []models.ChatMessage) error {
	if err := o.planner(kind).submitPlan(r, message, history); err != nil {
		if errors.Is(err, ErrReset) {
			return err
		}
		return r.fail(err)
	}
	return r.check(func(s *State) error {
		return streamOutcome(s, "Planning", PhaseAwaitingApproval, PhaseClarifying)
	})
}

func thinkingArchitect(label string) models.AgentInfo {
	a := models.NewAgentInfo(models.RoleArchitect)
	a.Status = models.StatusThinking
	a.StatusLabel = label
	return a
}

// RequestPlan starts a new planning cycle for message. Any previous work is
// reset first.
func (o *Orchestrator) RequestPlan(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}
	o.Reset()

	r := o.begin(ctx)
	defer r.end()

	var history []models.ChatMessage
	r.update(func(s *State) {
		s.Phase = PhasePlanning
		s.OriginalMessage = message
		s.Conversation = append(s.Conversation, models.ChatMessage{Role: "user", Content: message})
		s.Agents = map[string]models.AgentInfo{
			string(models.RoleArchitect): thinkingArchitect("Analyzing your request..."),
		}
		history = append(history, s.Conversation...)
	})
	return o.plan(r, o.cfg.PlanTransport, message, history)
}

// AnswerQuestions folds answers into the original prompt and plans again.
func (o *Orchestrator) AnswerQuestions(ctx context.Context, answers map[string]string) error {
	r := o.begin(ctx)
	defer r.end()

	var message string
	var history []models.ChatMessage
	err := r.prepare(func(s *State) error {
		if len(s.Questions) == 0 {
			return ErrNoQuestions
		}
		block := FormatAnswers(s.Questions, answers)
		message = s.OriginalMessage + "\n\n" + block
		s.OriginalMessage = message
		s.Conversation = append(s.Conversation, models.ChatMessage{Role: "user", Content: block})
		s.Questions = nil
		s.Error = ""
		s.Phase = PhasePlanning
		s.Agents[string(models.RoleArchitect)] = thinkingArchitect("Reviewing your answers...")
		history = append(history, s.Conversation...)
		return nil
	})
	if err != nil {
		return err
	}
	return o.plan(r, o.cfg.AnswerTransport, message, history)
}

// RejectPlan discards the live plan and plans again with feedback.
func (o *Orchestrator) RejectPlan(ctx context.Context, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return ErrEmptyMessage
	}
	r := o.begin(ctx)
	defer r.end()

	var message string
	var history []models.ChatMessage
	err := r.prepare(func(s *State) error {
		if s.Plan == nil {
			return ErrNoPlan
		}
		message = s.OriginalMessage + "\n\n" + models.RevisionHeader + "\n" + feedback
		s.OriginalMessage = message
		s.Conversation = append(s.Conversation, models.ChatMessage{Role: "user", Content: feedback})
		s.Plan = nil
		s.Error = ""
		s.Phase = PhasePlanning
		s.Agents[string(models.RoleArchitect)] = thinkingArchitect("Revising the plan...")
		history = append(history, s.Conversation...)
		return nil
	})
	if err != nil {
		return err
	}
	return o.plan(r, o.cfg.AnswerTransport, message, history)
}

// AskQuestion asks about the live plan. The answer lands in AgentMessages;
// the phase does not change. A failed request is logged there too.
func (o *Orchestrator) AskQuestion(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyMessage
	}
	r := o.begin(ctx)
	defer r.end()

	var req *models.OrchestratorRequest
	err := r.prepare(func(s *State) error {
		if s.Plan == nil {
			return ErrNoPlan
		}
		req = &models.OrchestratorRequest{
			Action:          models.ActionQuestion,
			Plan:            s.Plan.Clone(),
			Question:        question,
			OriginalMessage: s.OriginalMessage,
		}
		s.Conversation = append(s.Conversation, models.ChatMessage{Role: "user", Content: question})
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.stream(o.transport, req); err != nil {
		if !r.update(func(s *State) {
			s.logMessage(SystemAgentID, "HeftCoder", "Could not answer: "+userText(err))
		}) {
			return ErrReset
		}
		return err
	}
	return nil
}

// ApprovePlan builds the live plan.
func (o *Orchestrator) ApprovePlan(ctx context.Context) error {
	r := o.begin(ctx)
	defer r.end()

	var req *models.OrchestratorRequest
	err := r.prepare(func(s *State) error {
		if s.Plan == nil || s.OriginalMessage == "" {
			return ErrNoPlan
		}
		req = &models.OrchestratorRequest{
			Action:          models.ActionExecute,
			Plan:            s.Plan.Clone(),
			OriginalMessage: s.OriginalMessage,
		}
		s.Project = nil
		s.BackendArtifacts = nil
		s.RequiredSecrets = nil
		s.Summary = ""
		s.Error = ""
		s.Phase = PhaseBuilding
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.stream(o.transport, req); err != nil {
		return r.fail(err)
	}
	return r.check(func(s *State) error {
		return streamOutcome(s, "Build", PhaseComplete)
	})
}

// RefineProject sends feedback plus the current code and folds the revised
// project.
func (o *Orchestrator) RefineProject(ctx context.Context, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return ErrEmptyMessage
	}
	r := o.begin(ctx)
	defer r.end()

	var req *models.OrchestratorRequest
	err := r.prepare(func(s *State) error {
		if s.Project == nil || len(s.Project.Files) == 0 {
			return ErrNoProject
		}
		if s.Plan == nil {
			return ErrNoPlan
		}
		req = &models.OrchestratorRequest{
			Action:          models.ActionRefine,
			Plan:            s.Plan.Clone(),
			Feedback:        feedback,
			CurrentCode:     s.Project.CombinedSource(),
			CurrentFiles:    append([]models.ProjectFile(nil), s.Project.Files...),
			OriginalMessage: s.OriginalMessage,
		}
		s.Conversation = append(s.Conversation, models.ChatMessage{Role: "user", Content: feedback})
		s.Error = ""
		s.Phase = PhaseRefining
		return nil
	})
	if err != nil {
		return err
	}

	if err := r.stream(o.transport, req); err != nil {
		return r.fail(err)
	}
	return r.check(func(s *State) error {
		return streamOutcome(s, "Refinement", PhaseComplete)
	})
}

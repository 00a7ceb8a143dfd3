package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"heftcoder/pkg/events"
	"heftcoder/pkg/models"
)

// OrchestratorPath is the endpoint every action is posted to.
const OrchestratorPath = "/api/orchestrator"

// ErrNoBody is returned when a successful response carries no body.
var ErrNoBody = errors.New("orchestrator response has no body")

// StatusError is a non-2xx reply from the orchestrator endpoint.
type StatusError struct {
	StatusCode int
	Code       string // server error code, if the body carried one
	Message    string // server error message, if the body carried one
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("orchestrator request failed: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("orchestrator request failed: status %d", e.StatusCode)
}

// StreamStats describes one consumed event stream.
type StreamStats struct {
	Events    int
	Malformed int
	Finished  bool // the [DONE] sentinel was seen
}

// Transport posts orchestrator actions over HTTP.
type Transport struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
}

// NewTransport returns a transport for the server at baseURL.
func NewTransport(baseURL string, httpClient *http.Client, log *zap.Logger) *Transport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Transport{
		endpoint: strings.TrimRight(baseURL, "/") + OrchestratorPath,
		http:     httpClient,
		log:      log,
	}
}

func (t *Transport) post(ctx context.Context, req *models.OrchestratorRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", req.Action, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Action.Streams() {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", req.Action, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		serr := &StatusError{
			StatusCode: resp.StatusCode,
			Code:       gjson.GetBytes(raw, "code").String(),
			Message:    gjson.GetBytes(raw, "error").String(),
		}
		t.log.Debug("orchestrator request failed",
			zap.String("action", string(req.Action)),
			zap.Int("status", resp.StatusCode),
			zap.String("code", serr.Code))
		return nil, serr
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}
	return resp, nil
}

// Stream posts a streaming action and calls fn for every decoded event until
// the [DONE] sentinel, the end of the body, or ctx is cancelled.
func (t *Transport) Stream(ctx context.Context, req *models.OrchestratorRequest, fn func(events.Event)) (StreamStats, error) {
	resp, err := t.post(ctx, req)
	if err != nil {
		return StreamStats{}, err
	}
	defer resp.Body.Close()

	dec := events.NewDecoder(resp.Body, events.WithLogger(t.log))
	var stats StreamStats
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.Malformed = dec.Malformed()
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			return stats, err
		}
		stats.Events++
		fn(ev)
	}
	stats.Malformed = dec.Malformed()
	stats.Finished = dec.Finished()
	return stats, nil
}

// SubmitJob starts an asynchronous planning job and returns its id.
func (t *Transport) SubmitJob(ctx context.Context, message string) (string, error) {
	resp, err := t.post(ctx, &models.OrchestratorRequest{Action: models.ActionPlanAsync, Message: message})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var accepted models.JobAccepted
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", fmt.Errorf("read plan_async reply: %w", err)
	}
	if accepted.JobID == "" {
		return "", errors.New("plan_async reply has no jobId")
	}
	return accepted.JobID, nil
}

// JobStatus fetches a PlanningJob snapshot.
func (t *Transport) JobStatus(ctx context.Context, jobID string) (*models.PlanningJob, error) {
	resp, err := t.post(ctx, &models.OrchestratorRequest{Action: models.ActionJobStatus, JobID: jobID})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var job models.PlanningJob
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("read job_status reply: %w", err)
	}
	return &job, nil
}

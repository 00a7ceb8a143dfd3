package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"heftcoder/pkg/models"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a planning job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchJob(ctx, serverURL, args[0], cmd.OutOrStdout())
		},
	}
}

// jobSocketURL maps the server URL to the job websocket endpoint.
func jobSocketURL(server, jobID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path += "/api/jobs/" + url.PathEscape(jobID) + "/ws"
	return u.String(), nil
}

func watchJob(ctx context.Context, server, jobID string, out io.Writer) error {
	endpoint, err := jobSocketURL(server, jobID)
	if err != nil {
		return err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("watch %s: server answered %s", jobID, resp.Status)
		}
		return fmt.Errorf("watch %s: %w", jobID, err)
	}
	defer conn.Close()
	logger().Debug("watching job", zap.String("job_id", jobID), zap.String("url", endpoint))

	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	var last *models.PlanningJob
	for {
		var job models.PlanningJob
		if err := conn.ReadJSON(&job); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return jobResult(last)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("watch %s: %w", jobID, err)
		}
		printJob(out, &job)
		last = &job
	}
}

func printJob(out io.Writer, job *models.PlanningJob) {
	fmt.Fprintf(out, "%-18s %3d%%\n", job.Status, job.Progress)
	switch job.Status {
	case models.JobClarifying:
		for _, q := range job.ClarifyingQuestions {
			fmt.Fprintf(out, "  ? [%s] %s\n", q.ID, q.Question)
		}
	case models.JobAwaitingApproval, models.JobComplete:
		if job.Plan != nil {
			printPlan(out, job.Plan)
		}
	}
}

func jobResult(last *models.PlanningJob) error {
	if last == nil {
		return errors.New("job stream closed without a snapshot")
	}
	if last.Status == models.JobFailed {
		return fmt.Errorf("planning failed: %s", last.Error)
	}
	return nil
}

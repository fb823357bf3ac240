// Package runner spawns one coding-agent subprocess per task run and streams
// its normalized stdout events. The agent is invoked in non-interactive mode
// (-p) with stream-json output; see internal/agent/stream for the record
// shapes.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drover/drover/internal/agent/stream"
	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/common/tracing"
)

// Runner launches agent subprocesses. It is stateless over its configuration
// and safe for concurrent use by multiple workers.
type Runner struct {
	agentCommand string
	logger       *logger.Logger
}

// New creates a runner that invokes the given agent executable.
func New(agentCommand string, log *logger.Logger) *Runner {
	return &Runner{
		agentCommand: agentCommand,
		logger:       log.WithFields(zap.String("component", "agent-runner")),
	}
}

// Run spawns the agent with the given prompt, cwd set to repoPath, and an
// optional isolated workspace name. It returns a channel that yields events
// in stdout order and closes when the agent's stream ends.
//
// The consumer must either drain the channel or cancel ctx; in both cases the
// child is reaped before the channel closes. A spawn failure is returned as
// an error. A non-zero child exit is not an error: the stream content is
// authoritative.
func (r *Runner) Run(ctx context.Context, prompt, repoPath, workspaceName string) (<-chan *stream.Event, error) {
	args := []string{
		"-p", prompt,
		"--dangerously-skip-permissions",
		"--output-format", "stream-json",
		"--verbose",
	}
	if workspaceName != "" {
		args = append(args, "--worktree", workspaceName)
	}

	cmd := exec.CommandContext(ctx, r.agentCommand, args...)
	cmd.Dir = repoPath
	// New process group so cancellation kills the agent's subprocess tree,
	// not just the agent itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent %q: %w", r.agentCommand, err)
	}

	r.logger.Debug("agent started",
		zap.String("command", r.agentCommand),
		zap.String("workspace", workspaceName),
		zap.Int("pid", cmd.Process.Pid),
	)

	// Drain stderr so the child never blocks on a full pipe. Agent
	// diagnostics are not part of the event stream.
	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		_, _ = io.Copy(io.Discard, stderr)
	}()

	_, span := tracing.Tracer("drover-agent").Start(ctx, "agent.exec",
		trace.WithAttributes(
			attribute.String("agent.command", r.agentCommand),
			attribute.String("agent.workspace", workspaceName),
		))

	events := make(chan *stream.Event)
	go r.pump(ctx, span, cmd, stdout, stderrDone, events)
	return events, nil
}

// pump reads stdout line by line, forwards parsed events, and reaps the child
// on every exit path.
func (r *Runner) pump(ctx context.Context, span trace.Span, cmd *exec.Cmd, stdout io.ReadCloser, stderrDone <-chan struct{}, events chan<- *stream.Event) {
	defer span.End()
	defer close(events)
	defer func() {
		<-stderrDone
		// The exit status is deliberately ignored; errors the agent hit are
		// carried in the stream itself.
		if err := cmd.Wait(); err != nil {
			r.logger.Debug("agent exited", zap.Error(err))
		}
	}()

	scanner := bufio.NewScanner(stdout)
	// Tool results can carry whole files; allow large lines (up to 10MB)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil || record == nil {
			// Non-JSON output (banners, progress indicators), skip
			continue
		}

		select {
		case events <- stream.ParseRecord(record):
		case <-ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		r.logger.Warn("agent stdout read error", zap.Error(err))
	}
}

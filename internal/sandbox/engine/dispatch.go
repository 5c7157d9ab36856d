package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErr "agentbox/pkg/errors"
	"agentbox/pkg/utils/contextkey"
	"agentbox/pkg/utils/logger"

	"agentbox/internal/sandbox/profile"
	"agentbox/internal/sandbox/result"
)

// dispatch walks one request through the artifact protocol: serialize the
// request under a unique name, spawn the child, wait for it, read the
// response envelope, and delete both artifacts. The response is
// authoritative whenever it exists; process exit status only matters when
// the child died without answering.
func (e *Engine) dispatch(ctx context.Context, req *childRequest) (*result.RunResult, error) {
	callID := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.WorkItemID, callID)
	reqPath := filepath.Join(e.cfg.Control, "req-"+callID+".json")
	respPath := filepath.Join(e.cfg.Control, "resp-"+callID+".json")
	defer e.cleanupArtifacts(ctx, reqPath, respPath)

	advance := func(state result.DispatchState) {
		logger.Debug(ctx, "dispatch state", zap.String("state", string(state)))
	}
	advance(result.StateConstructed)

	plan, err := e.spawnFor(req, reqPath, respPath)
	if err != nil {
		return nil, err
	}
	if err := writeRequest(reqPath, req); err != nil {
		return nil, err
	}
	advance(result.StateRequestSerialized)

	output := newBoundedBuffer(e.cfg.OutputMaxBytes)
	cmd := exec.CommandContext(ctx, plan.path, plan.args...)
	cmd.Dir = plan.dir
	cmd.Env = plan.env
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = childSysProcAttr(e.cfg.Mode == profile.ModePrivilegedChroot)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, appErr.Wrap(err, appErr.HelperNotFound).
				WithMessagef("%s is not installed or not on PATH", plan.path)
		}
		return nil, appErr.Wrapf(err, appErr.SandboxFailure, "start sandbox child failed")
	}
	advance(result.StateChildSpawned)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()
	waitErr := cmd.Wait()
	close(done)
	wallMs := time.Since(start).Milliseconds()

	envelope, readErr := readEnvelope(respPath)
	if readErr != nil {
		if waitErr != nil {
			advance(result.StateChildExitNonzero)
			exit := exitCodeFromErr(waitErr, cmd.ProcessState)
			if line := helperDeniedLine(output.String()); exit == helperDeniedExitCode && line != "" {
				return nil, appErr.New(appErr.SecurityViolation).WithMessage(line)
			}
			return nil, appErr.New(appErr.ChildExitNonzero).
				WithMessagef("sandbox child exited with status %d before responding", exit).
				WithOutput(output.String())
		}
		advance(result.StateArtifactMissing)
		if os.IsNotExist(readErr) {
			return nil, appErr.New(appErr.NoResponseArtifact).
				WithMessage("sandbox produced no output").
				WithOutput(output.String())
		}
		return nil, appErr.Wrapf(readErr, appErr.SandboxFailure, "decode response artifact failed").
			WithOutput(output.String())
	}
	advance(result.StateResultRead)

	if envelope.Status != result.StatusSuccess {
		return nil, envelopeError(envelope)
	}
	advance(result.StateTerminal)
	return &result.RunResult{
		Value:          envelope.Result,
		CapturedOutput: envelope.CapturedOutput,
		ExitCode:       exitCodeFromErr(waitErr, cmd.ProcessState),
		WallTimeMs:     wallMs,
	}, nil
}

// envelopeError maps an error envelope onto the sandbox error family. The
// guard reports through a dedicated kind; everything else the child raised
// arrives as message plus traceback text.
func envelopeError(envelope *result.Envelope) error {
	if envelope.ErrorKind == result.KindSecurity {
		return appErr.New(appErr.SecurityViolation).WithMessage(envelope.ErrorMessage)
	}
	err := appErr.New(appErr.ChildException).WithMessage(envelope.ErrorMessage)
	if envelope.ErrorTrace != "" {
		err = err.WithDetail("trace", envelope.ErrorTrace)
	}
	if envelope.CapturedOutput != "" {
		err = err.WithOutput(envelope.CapturedOutput)
	}
	return err
}

// helperDeniedLine extracts the helper's denial marker line from child
// output, empty when the output carries no marker.
func helperDeniedLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, helperDeniedMarker) {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func readEnvelope(path string) (*result.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envelope result.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// cleanupArtifacts removes both protocol files. Failures are logged and
// otherwise ignored; a leftover artifact never fails the call.
func (e *Engine) cleanupArtifacts(ctx context.Context, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn(ctx, "remove artifact failed",
				zap.String("path", path), zap.Error(err))
		}
	}
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// boundedBuffer keeps the first cap bytes of child output and drops the
// rest, so a chatty child cannot balloon error payloads.
type boundedBuffer struct {
	buf []byte
	cap int64
}

func newBoundedBuffer(capBytes int64) *boundedBuffer {
	return &boundedBuffer{cap: capBytes}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	room := b.cap - int64(len(b.buf))
	if room > 0 {
		if int64(len(p)) < room {
			room = int64(len(p))
		}
		b.buf = append(b.buf, p[:room]...)
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string { return string(b.buf) }

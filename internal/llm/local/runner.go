package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// readyPollInterval controls how often waitReady probes the runner's health
// endpoint during startup.
const readyPollInterval = 500 * time.Millisecond

// Runner is a loaded model handle: a child process serving an inference API
// on localhost. Starting it is expensive (the process loads model weights);
// once ready it is reused for every request until process shutdown.
//
// The HTTP client carries no timeout: local CPU inference legitimately runs
// for minutes, and any transport-level deadline is an external concern.
type Runner struct {
	name    string
	cmd     *exec.Cmd
	exited  chan struct{}
	baseURL string
	client  *http.Client
	logger  log.Logger
}

// freePort asks the kernel for an unused TCP port on the loopback interface.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("reserve port: %w", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	if err := l.Close(); err != nil {
		return 0, fmt.Errorf("release port: %w", err)
	}
	return port, nil
}

// startRunner launches argv as a child process expected to serve healthPath
// on 127.0.0.1:port, and blocks until it answers 200 or startupTimeout
// elapses. On any startup failure the process is killed before returning.
func startRunner(ctx context.Context, logger log.Logger, name string, argv []string, port int, healthPath string, startupTimeout time.Duration) (*Runner, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("start %s: empty command", name)
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from operator config, not request input
	cmd.Stdout = io.Discard
	cmd.Stderr = &runnerLogWriter{ctx: ctx, logger: logger, name: name}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	r := &Runner{
		name:    name,
		cmd:     cmd,
		exited:  make(chan struct{}),
		baseURL: "http://127.0.0.1:" + strconv.Itoa(port),
		client:  &http.Client{},
		logger:  logger,
	}

	go func() {
		_ = cmd.Wait()
		close(r.exited)
	}()

	if err := r.waitReady(ctx, healthPath, startupTimeout); err != nil {
		r.Close()
		return nil, err
	}

	logger.Info(ctx, "model runner ready", "runner", name, "port", port)
	return r, nil
}

// waitReady polls the health endpoint until the runner answers, the process
// exits, or the startup budget runs out.
func (r *Runner) waitReady(ctx context.Context, healthPath string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	tick := time.NewTicker(readyPollInterval)
	defer tick.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+healthPath, nil)
		if err != nil {
			return fmt.Errorf("%s readiness probe: %w", r.name, err)
		}
		resp, err := r.client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-r.exited:
			return fmt.Errorf("%s exited during startup", r.name)
		case <-deadline.C:
			return fmt.Errorf("%s not ready after %s", r.name, timeout)
		case <-ctx.Done():
			return fmt.Errorf("%s startup: %w", r.name, ctx.Err())
		case <-tick.C:
		}
	}
}

// postJSON sends a JSON request to the runner and decodes the JSON response.
// No deadline is applied beyond ctx: generation is allowed to take minutes.
func (r *Runner) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", r.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", r.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", r.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d: %s", r.name, resp.StatusCode, truncateBody(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.name, err)
	}
	return nil
}

// Close kills the runner process. Safe to call more than once.
func (r *Runner) Close() {
	if r.cmd == nil || r.cmd.Process == nil {
		return
	}
	select {
	case <-r.exited:
		return
	default:
	}
	_ = r.cmd.Process.Kill()
	<-r.exited
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}

// runnerLogWriter forwards the runner's stderr (model load progress, sampler
// settings) into the structured log stream.
type runnerLogWriter struct {
	ctx    context.Context
	logger log.Logger
	name   string
}

func (w *runnerLogWriter) Write(p []byte) (int, error) {
	w.logger.Info(w.ctx, "runner output", "runner", w.name, "output", string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

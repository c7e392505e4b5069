package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// ScriptName is the file name of the classifier service script.
const ScriptName = "classifier_service.py"

// closeGrace is how long Close waits for the service to exit on EOF before
// killing it.
const closeGrace = 2 * time.Second

// ServiceLoader starts an ONNX classifier service as a Python subprocess.
type ServiceLoader struct {
	// Python is the interpreter. Empty means a venv interpreter if one is
	// found, otherwise python3.
	Python string
	// Script is the path to classifier_service.py. Empty means search the
	// usual locations.
	Script string
	Logger *slog.Logger
}

// Load starts the service for modelPath and waits for its handshake.
func (l *ServiceLoader) Load(ctx context.Context, modelPath string) (Classifier, error) {
	script := l.Script
	if script == "" {
		script = findScript()
	}
	if script == "" {
		return nil, fmt.Errorf("%s not found", ScriptName)
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("classifier script: %w", err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model artifact: %w", err)
	}

	python := l.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(python, script, "--model", modelPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start classifier service: %w", err)
	}

	c := &ServiceClassifier{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		exited: make(chan struct{}),
		logger: logger,
	}
	go func() {
		c.waitErr = cmd.Wait()
		close(c.exited)
	}()

	type handshake struct {
		info Info
		err  error
	}
	ready := make(chan handshake, 1)
	go func() {
		info, err := c.readHandshake()
		ready <- handshake{info, err}
	}()

	select {
	case h := <-ready:
		if h.err != nil {
			c.kill()
			return nil, h.err
		}
		c.info = h.info
	case <-ctx.Done():
		c.kill()
		return nil, fmt.Errorf("classifier service did not become ready: %w", ctx.Err())
	}

	logger.Info("classifier service started",
		"pid", cmd.Process.Pid,
		"model", modelPath,
		"input", c.info.InputName,
		"outputs", c.info.OutputNames)

	return c, nil
}

// ServiceClassifier talks to a running classifier service.
//
// Requests are a 4-byte big-endian header length, a JSON header with the
// tensor shape, a 4-byte big-endian payload length and the float32 tensor in
// little-endian order. Each response is one JSON line.
type ServiceClassifier struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	info   Info
	logger *slog.Logger

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

// Info returns the tensors reported by the service handshake.
func (c *ServiceClassifier) Info() Info {
	return c.info
}

// Classify sends one window to the service and returns its scores.
func (c *ServiceClassifier) Classify(ctx context.Context, input []float32, shape []int64) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.exited:
		return nil, ErrClosed
	default:
	}

	header, err := json.Marshal(struct {
		Shape []int64 `json:"shape"`
	}{shape})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(8 + len(header) + 4*len(input))
	writeLen(&buf, len(header))
	buf.Write(header)
	writeLen(&buf, 4*len(input))
	if err := binary.Write(&buf, binary.LittleEndian, input); err != nil {
		return nil, fmt.Errorf("encode tensor: %w", err)
	}

	if _, err := c.stdin.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	type reply struct {
		scores []float32
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		scores, err := c.readScores()
		done <- reply{scores, err}
	}()

	select {
	case r := <-done:
		return r.scores, r.err
	case <-ctx.Done():
		// The reader goroutine owns stdout now; the service cannot be reused.
		c.kill()
		<-done
		return nil, ctx.Err()
	}
}

// Close ends the service. In-flight Classify calls fail once the process exits.
func (c *ServiceClassifier) Close() error {
	c.closeOnce.Do(func() {
		c.stdin.Close()

		select {
		case <-c.exited:
		case <-time.After(closeGrace):
			c.logger.Warn("classifier service did not exit, killing", "pid", c.cmd.Process.Pid)
			c.kill()
		}

		var exitErr *exec.ExitError
		if c.waitErr != nil && !errors.As(c.waitErr, &exitErr) {
			c.closeErr = c.waitErr
		}
	})
	return c.closeErr
}

func (c *ServiceClassifier) kill() {
	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	<-c.exited
}

func (c *ServiceClassifier) readHandshake() (Info, error) {
	line, err := c.stdout.ReadBytes('\n')
	if err != nil {
		return Info{}, fmt.Errorf("read handshake: %w", err)
	}

	var msg struct {
		Info
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return Info{}, fmt.Errorf("parse handshake: %w", err)
	}
	if msg.Error != "" {
		return Info{}, fmt.Errorf("classifier service: %s", msg.Error)
	}
	if err := msg.Info.Validate(); err != nil {
		return Info{}, err
	}
	return msg.Info, nil
}

func (c *ServiceClassifier) readScores() ([]float32, error) {
	line, err := c.stdout.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseScores(line)
}

func parseScores(line []byte) ([]float32, error) {
	var resp struct {
		Scores []float32 `json:"scores"`
		Error  string    `json:"error"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("classifier service: %s", resp.Error)
	}
	if len(resp.Scores) == 0 {
		return nil, errors.New("classifier service returned no scores")
	}
	return resp.Scores, nil
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

func findScript() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", ScriptName),
		filepath.Join("..", "scripts", ScriptName),
		filepath.Join(execDir, "scripts", ScriptName),
		filepath.Join(os.Getenv("HOME"), ".signflow", "scripts", ScriptName),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for an interpreter in a virtual environment next to the
// working directory or the executable.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".signflow/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

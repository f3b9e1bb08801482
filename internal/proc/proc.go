// Package proc runs the agent CLI as a subprocess and exposes its stdio
// as a line-oriented JSON transport.
package proc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/agentlink/agentlink/internal/config"
	"github.com/agentlink/agentlink/internal/sdkerr"
)

const (
	// maxLineSize bounds a single output line. Large tool results arrive as
	// one line, so this is generous.
	maxLineSize = 1024 * 1024

	// maxStderrBuffer caps the retained stderr used for exit-error
	// reporting. The stderr callback still receives every line.
	maxStderrBuffer = 10 * 1024 * 1024
)

// Process is a config.Transport backed by an agent CLI subprocess.
type Process struct {
	log       *slog.Logger
	opts      *config.Options
	prompt    string
	streaming bool

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	mu          sync.Mutex
	closing     bool
	stdinClosed bool
}

var _ config.Transport = (*Process)(nil)

// New creates a subprocess transport. In streaming mode stdin stays open
// for the conversation; otherwise the prompt is passed on the command line
// and stdin is unused. The process starts on Connect.
func New(log *slog.Logger, prompt string, opts *config.Options, streaming bool) *Process {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Process{
		log:       log.With("component", "proc"),
		opts:      opts,
		prompt:    prompt,
		streaming: streaming,
	}
}

// Connect locates the agent CLI and starts the subprocess with stdio
// pipes wired up.
func (p *Process) Connect(ctx context.Context) error {
	binPath, err := Locate(ctx, p.log, p.opts.BinPath)
	if err != nil {
		return err
	}

	args := BuildArgs(p.prompt, p.opts, p.streaming)
	p.log.Debug("Starting agent CLI", "path", binPath, "args", args)

	cwd := p.opts.Cwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return &sdkerr.ConnectError{Err: fmt.Errorf("working directory: %w", err)}
		}
	}

	//nolint:gosec // G204: launching the discovered CLI with built args is the point
	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = cwd
	cmd.Env = BuildEnv(p.opts)

	if p.stdin, err = cmd.StdinPipe(); err != nil {
		return &sdkerr.ConnectError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	if p.stdout, err = cmd.StdoutPipe(); err != nil {
		return &sdkerr.ConnectError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	if p.stderr, err = cmd.StderrPipe(); err != nil {
		return &sdkerr.ConnectError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &sdkerr.ConnectError{Err: fmt.Errorf("start process: %w", err)}
	}

	p.cmd = cmd
	p.log.Info("Agent CLI started", "pid", cmd.Process.Pid)

	return nil
}

// ReadStream reads line-delimited JSON documents from the subprocess
// stdout. Malformed lines surface as DecodeError items on the error
// channel and reading continues. When the stream ends both channels close;
// an unexpected process exit surfaces as ExitError first.
func (p *Process) ReadStream(ctx context.Context) (<-chan map[string]any, <-chan error) {
	docs := make(chan map[string]any)
	errs := make(chan error, 1)

	var (
		stderrWg  sync.WaitGroup
		stderrMu  sync.Mutex
		stderrBuf strings.Builder
	)

	// Stderr must be drained before cmd.Wait. The buffer feeds exit-error
	// reporting; the callback sees every line regardless of the cap.
	stderrWg.Add(1)

	go func() {
		defer stderrWg.Done()

		scanner := bufio.NewScanner(p.stderr)
		for scanner.Scan() {
			line := scanner.Text()

			stderrMu.Lock()
			if stderrBuf.Len() < maxStderrBuffer {
				if stderrBuf.Len() > 0 {
					stderrBuf.WriteByte('\n')
				}

				stderrBuf.WriteString(line)
			}
			stderrMu.Unlock()

			if p.opts.Stderr != nil {
				p.opts.Stderr(line)
			}
		}
	}()

	go func() {
		defer close(docs)
		defer close(errs)

		scanner := bufio.NewScanner(p.stdout)
		scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var doc map[string]any
			if err := json.Unmarshal(line, &doc); err != nil {
				select {
				case errs <- &sdkerr.DecodeError{Line: string(line), Err: err}:
				case <-ctx.Done():
					return
				}

				continue
			}

			select {
			case docs <- doc:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			p.log.Error("Read agent stdout failed", "error", err)
			errs <- fmt.Errorf("read agent stdout: %w", err)
		}

		stderrWg.Wait()

		if err := p.cmd.Wait(); err != nil {
			p.mu.Lock()
			closing := p.closing
			p.mu.Unlock()

			if closing {
				p.log.Debug("Agent CLI terminated during shutdown")

				return
			}

			stderrMu.Lock()
			stderrOut := stderrBuf.String()
			stderrMu.Unlock()

			exitCode := 0

			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			}

			p.log.Error("Agent CLI exited unexpectedly", "exit_code", exitCode)
			errs <- &sdkerr.ExitError{ExitCode: exitCode, Stderr: stderrOut, Err: err}
		} else {
			p.log.Debug("Agent CLI exited cleanly")
		}
	}()

	return docs, errs
}

// Write sends one line to the subprocess stdin. Writes are serialized; a
// cancelled context during a blocked write closes stdin to unblock it.
func (p *Process) Write(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin == nil {
		return sdkerr.ErrSessionNotConnected
	}

	if p.stdinClosed {
		return sdkerr.ErrTransportClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if len(data) == 0 || data[len(data)-1] != '\n' {
		buf := make([]byte, len(data)+1)
		copy(buf, data)
		buf[len(data)] = '\n'
		data = buf
	}

	written := make(chan error, 1)

	go func() {
		_, err := p.stdin.Write(data)
		written <- err
	}()

	select {
	case err := <-written:
		if err != nil {
			return fmt.Errorf("write to agent stdin: %w", err)
		}

		return nil

	case <-ctx.Done():
		// Closing stdin unblocks the pending Write.
		_ = p.stdin.Close()
		p.stdinClosed = true

		select {
		case <-written:
		case <-time.After(time.Second):
			p.log.Warn("Stdin write did not unblock after close")
		}

		return ctx.Err()
	}
}

// EndInput closes stdin, telling the agent no more input is coming. The
// process finishes its pending work and exits on its own.
func (p *Process) EndInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin == nil || p.stdinClosed {
		return nil
	}

	p.stdinClosed = true

	return p.stdin.Close()
}

// Ready reports whether the process is running and stdin is open.
func (p *Process) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cmd != nil && p.cmd.Process != nil && !p.stdinClosed
}

// Close kills the subprocess. Safe to call multiple times and on a
// process that already exited.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closing = true
	p.stdinClosed = true

	if p.cmd != nil && p.cmd.Process != nil {
		p.log.Debug("Killing agent CLI", "pid", p.cmd.Process.Pid)

		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill agent CLI (pid %d): %w", p.cmd.Process.Pid, err)
		}
	}

	return nil
}

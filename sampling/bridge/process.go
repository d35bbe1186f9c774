package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// closeTimeout is how long Close waits for the helper to exit on its own
// after stdin is closed.
const closeTimeout = 5 * time.Second

// ErrClosed is returned by calls on a closed connection.
var ErrClosed = errors.New("bridge connection closed")

// Conn is a request/response channel to one helper. Calls are serialised.
type Conn struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	closed bool
}

// NewConn speaks the line protocol over r and w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{w: w, r: bufio.NewReaderSize(r, 1<<20)}
}

// Call sends req and waits for its response line. A helper-side failure is
// returned as a Response with Error set, not as an error; err is reserved for
// transport failures. ctx is checked before sending only: a request already
// written is always waited for.
func (c *Conn) Call(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encoding %s request: %w", req.Op, err)
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Response{}, ErrClosed
	}
	if _, err := c.w.Write(line); err != nil {
		return Response{}, fmt.Errorf("sending %s request: %w", req.Op, err)
	}
	reply, err := c.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Response{}, fmt.Errorf("%s request: helper closed its output", req.Op)
		}
		return Response{}, fmt.Errorf("reading %s response: %w", req.Op, err)
	}
	var resp Response
	if err := json.Unmarshal(reply, &resp); err != nil {
		return Response{}, fmt.Errorf("decoding %s response: %w", req.Op, err)
	}
	return resp, nil
}

func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	was := c.closed
	c.closed = true
	return was
}

// Process is a running helper and its connection.
type Process struct {
	*Conn
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *io.PipeWriter
}

// StartProcess launches argv with its stderr forwarded to the debug log.
// ctx bounds the process lifetime: cancelling it kills the helper.
func StartProcess(ctx context.Context, argv []string, log *logrus.Entry) (*Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty helper command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("helper stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("helper stdout: %w", err)
	}
	stderr := log.WriterLevel(logrus.DebugLevel)
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		_ = stderr.Close()
		return nil, fmt.Errorf("starting helper %s: %w", argv[0], err)
	}
	p := &Process{
		Conn:   NewConn(stdout, stdin),
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
	}
	log.Debugf("started helper pid %d", cmd.Process.Pid)
	return p, nil
}

// Close closes the helper's stdin and waits for it to exit, killing it after
// closeTimeout. Safe to call more than once.
func (p *Process) Close() error {
	if p.markClosed() {
		return nil
	}
	defer p.stderr.Close()
	_ = p.stdin.Close()
	// Wait closes stdout, so it only runs once no more responses are read.
	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("helper exited: %w", err)
		}
		return nil
	case <-time.After(closeTimeout):
		_ = p.cmd.Process.Kill()
		<-done
		return fmt.Errorf("helper did not exit within %s, killed", closeTimeout)
	}
}

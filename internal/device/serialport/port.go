// Package serialport provides a line-oriented transport over a tty with
// per-exchange deadlines.
package serialport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"hipot/internal/station"
)

const (
	lineTerminator = "\n"
	drainWindow    = 20 * time.Millisecond
)

// conn is the subset of *os.File the port needs.
type conn interface {
	io.ReadWriteCloser
	SetReadDeadline(time.Time) error
}

// Port serializes line exchanges with one device.
type Port struct {
	mu      sync.Mutex
	path    string
	baud    int
	timeout time.Duration
	c       conn
	r       *bufio.Reader
	stale   bool
	opener  func(path string, baud int) (conn, error)
}

// Open opens path at baud. timeout bounds each exchange.
func Open(path string, baud int, timeout time.Duration) (*Port, error) {
	p := &Port{path: path, baud: baud, timeout: timeout, opener: openTTY}
	if err := p.open(path); err != nil {
		return nil, err
	}
	return p, nil
}

func newPort(c conn, timeout time.Duration) *Port {
	return &Port{c: c, r: bufio.NewReader(c), timeout: timeout}
}

func (p *Port) open(path string) error {
	c, err := p.opener(path, p.baud)
	if err != nil {
		return station.Wrap(station.ErrDeviceConnect, "serial", "open", path, err)
	}
	p.path = path
	p.c = c
	p.r = bufio.NewReader(c)
	p.stale = false
	return nil
}

// Path returns the device path currently open.
func (p *Port) Path() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// Reopen closes the current session and opens path, which may differ after
// the device re-enumerates.
func (p *Port) Reopen(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opener == nil {
		return errors.New("serial: port cannot be reopened")
	}
	if p.c != nil {
		_ = p.c.Close()
		p.c = nil
	}
	return p.open(path)
}

// Write sends line without waiting for a reply.
func (p *Port) Write(ctx context.Context, line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ready(ctx); err != nil {
		return err
	}
	return p.send(line)
}

// Query sends line and returns the next line received, without its
// terminator.
func (p *Port) Query(ctx context.Context, line string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ready(ctx); err != nil {
		return "", err
	}
	if p.stale {
		p.drain()
	}
	if err := p.send(line); err != nil {
		return "", err
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := p.c.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("serial: set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = p.c.SetReadDeadline(time.Now())
	})
	defer stop()

	resp, err := p.r.ReadString('\n')
	if err != nil {
		// A late reply would be read as the answer to the next query.
		p.stale = true
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", station.Wrap(station.ErrTimeout, "serial", "query", strings.TrimSpace(line), err)
		}
		return "", fmt.Errorf("serial: read reply to %q: %w", strings.TrimSpace(line), err)
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

// Close releases the device.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.c == nil {
		return nil
	}
	err := p.c.Close()
	p.c = nil
	return err
}

func (p *Port) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.c == nil {
		return station.Wrap(station.ErrDeviceConnect, "serial", "exchange", p.path, errors.New("port closed"))
	}
	return nil
}

func (p *Port) send(line string) error {
	if _, err := io.WriteString(p.c, line+lineTerminator); err != nil {
		return fmt.Errorf("serial: write %q: %w", line, err)
	}
	return nil
}

func (p *Port) drain() {
	_ = p.c.SetReadDeadline(time.Now().Add(drainWindow))
	for {
		if _, err := p.r.ReadString('\n'); err != nil {
			break
		}
	}
	p.r.Reset(p.c)
	p.stale = false
}

// Package laser runs the request/response marking handshake with the laser
// marker over TCP.
//
// Each mark checks the marker is ready, selects the program for the cavity,
// starts marking, and reads one confirmation. Socket failures never escape as
// transport errors: the exchange sees the NG sentinel reply and the mark is
// reported as skipped.
package laser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"hipot/internal/logging"
	"hipot/internal/outcome"
	"hipot/internal/station"
)

const (
	// NotGood is the reply substituted for any socket failure.
	NotGood = "NG"

	cmdReady         = "RX,Ready"
	cmdSelectProgram = "WX,PRG=%d,BLK=%d"
	cmdMarkingParams = ",MarkingParameter=%s"
	cmdStartMarking  = "WX,StartMarking"
	terminator       = "\r"
	readBufferSize   = 1024
)

// Options configures the marker connection.
type Options struct {
	Address           string
	Block             int
	MarkingParameters string
	Timeout           time.Duration
}

// Result describes one marking attempt.
type Result struct {
	Outcome  outcome.Laser
	Response string
	Reason   string
}

// Client owns the marker socket. It is safe for concurrent use; exchanges are
// serialized.
type Client struct {
	opts   Options
	logger *slog.Logger
	dialer net.Dialer

	mu   sync.Mutex
	conn net.Conn
}

// New builds a client. Nothing is dialed until Connect or the first Mark.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Block <= 0 {
		opts.Block = 1
	}
	return &Client{opts: opts, logger: logging.NewComponentLogger(logger, "laser")}
}

// Enabled reports whether a marker address is configured.
func (c *Client) Enabled() bool {
	return c != nil && strings.TrimSpace(c.opts.Address) != ""
}

// Connect opens the marker socket. Failures are tagged station.ErrDeviceConnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if !c.Enabled() {
		return station.Wrap(station.ErrDeviceConnect, "laser", "connect", "no address configured", nil)
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.opts.Address)
	if err != nil {
		return station.Wrap(station.ErrDeviceConnect, "laser", "connect", c.opts.Address, err)
	}
	c.conn = conn
	return nil
}

// Mark runs the handshake for cavity. Any failed step yields LaserSkipped
// with the offending reply in Response and Reason, and an error tagged
// station.ErrProtocol.
func (c *Client) Mark(ctx context.Context, cavity int) (Result, error) {
	if !c.Enabled() {
		return Result{Outcome: outcome.LaserSkipped, Reason: "laser not configured"}, nil
	}
	logger := logging.WithContext(ctx, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		logging.WarnWithContext(logger, "laser connect failed", "laser_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the marker is powered and listening on "+c.opts.Address),
			logging.String(logging.FieldImpact, "cavity is not marked"),
		)
	}

	ready := c.exchange(ctx, cmdReady)
	if !replyOK(ready) {
		return skipped(ready, "marker not ready"),
			station.Wrap(station.ErrProtocol, "laser", "ready", fmt.Sprintf("reply %q", ready), nil)
	}

	selectCmd := fmt.Sprintf(cmdSelectProgram, cavity-1, c.opts.Block)
	if c.opts.MarkingParameters != "" {
		selectCmd += fmt.Sprintf(cmdMarkingParams, c.opts.MarkingParameters)
	}
	if err := c.send(ctx, selectCmd); err != nil {
		return skipped(NotGood, "program select failed"),
			station.Wrap(station.ErrProtocol, "laser", "select program", "", err)
	}
	if err := c.send(ctx, cmdStartMarking); err != nil {
		return skipped(NotGood, "start marking failed"),
			station.Wrap(station.ErrProtocol, "laser", "start marking", "", err)
	}

	confirmation := c.receive(ctx)
	logger.Info("laser response",
		logging.String(logging.FieldEventType, "laser_response"),
		logging.String("response", confirmation),
	)
	if !replyOK(confirmation) {
		return skipped(confirmation, "marking not confirmed"),
			station.Wrap(station.ErrProtocol, "laser", "confirm", fmt.Sprintf("reply %q", confirmation), nil)
	}
	return Result{Outcome: outcome.LaserMarked, Response: confirmation}, nil
}

func skipped(response, step string) Result {
	return Result{Outcome: outcome.LaserSkipped, Response: response, Reason: fmt.Sprintf("%s (%s)", step, response)}
}

// Close drops the marker socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropLocked()
}

func (c *Client) dropLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// exchange sends line and returns the reply, or NotGood on any socket error.
func (c *Client) exchange(ctx context.Context, line string) string {
	if err := c.send(ctx, line); err != nil {
		return NotGood
	}
	return c.receive(ctx)
}

func (c *Client) send(ctx context.Context, line string) error {
	if c.conn == nil {
		return errors.New("laser not connected")
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		c.dropLocked()
		return err
	}
	if _, err := c.conn.Write([]byte(line + terminator)); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

func (c *Client) receive(ctx context.Context) string {
	conn := c.conn
	if conn == nil {
		return NotGood
	}
	if err := conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		c.dropLocked()
		return NotGood
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, readBufferSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		c.dropLocked()
		return NotGood
	}
	return strings.TrimSpace(string(buf[:n]))
}

func (c *Client) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

func replyOK(reply string) bool {
	fields := strings.Split(reply, ",")
	return len(fields) > 1 && strings.TrimSpace(fields[1]) == "OK"
}

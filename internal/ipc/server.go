package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"hipot/internal/daemon"
	"hipot/internal/logging"
	"hipot/internal/station"
)

// ServiceName is the RPC receiver name clients call through.
const ServiceName = "Hipot"

// Server serves the daemon over JSON-RPC on a Unix socket. Close drops open
// client connections (a console can stay connected indefinitely) before it
// returns.
type Server struct {
	path   string
	ln     net.Listener
	rpc    *rpc.Server
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer replaces any stale socket at path and registers the daemon's
// operator commands. Commands run under ctx.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	receiver := rpc.NewServer()
	if err := receiver.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return &Server{
		path:   path,
		ln:     ln,
		rpc:    receiver,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.ln.Accept()
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if err != nil {
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI and console commands may fail to connect"),
					logging.String(logging.FieldErrorHint, "check the socket directory permissions"))
				continue
			}
			if !s.track(conn) {
				conn.Close()
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.untrack(conn)
				s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
			}()
		}
	}()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting, disconnects clients, and removes the socket file.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	_ = s.ln.Close()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(s.logger, "socket cleanup failed", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next daemon start replaces the stale socket"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	seq    atomic.Uint64
}

// request returns the command context and a logger tagged with a per-call
// correlation id.
func (s *service) request() (context.Context, *slog.Logger) {
	ctx := station.WithRequestID(s.ctx, "ipc-"+strconv.FormatUint(s.seq.Add(1), 10))
	return ctx, logging.WithContext(ctx, s.logger)
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	ctx, log := s.request()
	if err := s.daemon.StartBatch(ctx); err != nil {
		resp.Message = refusal(err)
		log.Info("batch start refused",
			logging.String(logging.FieldEventType, "batch_start_refused"),
			logging.String("reason", station.Kind(err)))
		return nil
	}
	resp.Started = true
	resp.Message = "batch started"
	log.Info("batch started via IPC",
		logging.String(logging.FieldEventType, "batch_start"))
	return nil
}

func (s *service) Reset(req ResetRequest, resp *ResetResponse) error {
	ctx, log := s.request()
	if err := s.daemon.Reset(ctx, req.CloseReport); err != nil {
		resp.Message = refusal(err)
		log.Info("reset refused",
			logging.String(logging.FieldEventType, "station_reset_refused"),
			logging.String("reason", station.Kind(err)))
		return nil
	}
	resp.Reset = true
	resp.Message = "station reset"
	log.Info("station reset via IPC",
		logging.String(logging.FieldEventType, "station_reset"),
		logging.Bool("close_report", req.CloseReport))
	return nil
}

// EmergencyStop replies before the stop sequence runs; the daemon process
// exits at the end of it.
func (s *service) EmergencyStop(_ EmergencyStopRequest, resp *EmergencyStopResponse) error {
	ctx, log := s.request()
	log.Warn("emergency stop requested via IPC",
		logging.String(logging.FieldEventType, "emergency_stop_requested"))
	go s.daemon.EmergencyStop(ctx)
	resp.Accepted = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockFilePath
	resp.HistoryPath = status.HistoryPath
	resp.ConfigPath = status.ConfigPath
	resp.Hotplug = status.Hotplug
	resp.Batch = status.Batch
	return nil
}

func (s *service) Report(_ ReportRequest, resp *ReportResponse) error {
	report, ok := s.daemon.LastReport()
	resp.Available = ok
	if ok {
		resp.Report = report
	}
	return nil
}

func refusal(err error) string {
	switch {
	case errors.Is(err, station.ErrRunInProgress):
		return "a batch is already running"
	case errors.Is(err, station.ErrStartLocked):
		return "start is locked until the station is reset"
	default:
		return err.Error()
	}
}
